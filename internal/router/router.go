// Package router classifies inbound messages and steers them to the right
// consumer: command invocations go to the dispatcher, media to the downloader,
// and plain chat traffic through anti-spam and group auto-reply.
package router

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/waclaw/internal/antispam"
	"github.com/nextlevelbuilder/waclaw/internal/bus"
	"github.com/nextlevelbuilder/waclaw/internal/command"
	"github.com/nextlevelbuilder/waclaw/internal/config"
	"github.com/nextlevelbuilder/waclaw/internal/dispatch"
	"github.com/nextlevelbuilder/waclaw/internal/metrics"
	"github.com/nextlevelbuilder/waclaw/internal/ratelimit"
	"github.com/nextlevelbuilder/waclaw/internal/store"
)

// Message kinds for classification metrics.
const (
	kindCommand = "command"
	kindMedia   = "media"
	kindText    = "text"
)

// Downloader fetches media attachments to local storage.
type Downloader interface {
	Download(ctx context.Context, url string) (string, error)
}

// Router consumes the inbound side of the message bus.
type Router struct {
	cfg        *config.Config
	registry   *command.Registry
	dispatcher *dispatch.Dispatcher
	spam       *antispam.Engine
	enforcer   *antispam.Enforcer
	limiter    *ratelimit.Limiter
	store      store.Store
	transport  dispatch.Transport
	downloader Downloader // nil disables media handling
}

// New wires a Router.
func New(
	cfg *config.Config,
	registry *command.Registry,
	dispatcher *dispatch.Dispatcher,
	spam *antispam.Engine,
	enforcer *antispam.Enforcer,
	limiter *ratelimit.Limiter,
	st store.Store,
	transport dispatch.Transport,
	downloader Downloader,
) *Router {
	return &Router{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		spam:       spam,
		enforcer:   enforcer,
		limiter:    limiter,
		store:      st,
		transport:  transport,
		downloader: downloader,
	}
}

// Run consumes inbound messages until ctx is cancelled. Each message is
// handled in its own goroutine so one slow handler cannot block the bus.
func (r *Router) Run(ctx context.Context, mb bus.MessageRouter) {
	for {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go r.Handle(ctx, msg)
	}
}

// Handle routes a single inbound message.
func (r *Router) Handle(ctx context.Context, msg bus.InboundMessage) {
	kind := r.classify(msg)
	metrics.MessagesInbound.WithLabelValues(msg.Channel, kind).Inc()

	// Seen-bookkeeping first, so even rejected traffic updates LastSeen.
	if err := r.store.TouchUser(ctx, msg.SenderID, msg.SenderName); err != nil {
		slog.Debug("touch user failed", "sender_id", msg.SenderID, "error", err)
	}

	switch kind {
	case kindCommand:
		r.handleCommand(ctx, msg)
	case kindMedia:
		r.handleMedia(ctx, msg)
	default:
		r.handleText(ctx, msg)
	}
}

// classify decides the message kind. A prefixed text wins over attached
// media, so captioned "!sticker" style invocations stay commands.
func (r *Router) classify(msg bus.InboundMessage) string {
	if name, _, ok := dispatch.SplitInvocation(msg.RawContent, r.cfg.Prefix()); ok && name != "" {
		return kindCommand
	}
	if len(msg.Media) > 0 {
		return kindMedia
	}
	return kindText
}

func (r *Router) handleCommand(ctx context.Context, msg bus.InboundMessage) {
	name, args, ok := dispatch.SplitInvocation(msg.RawContent, r.cfg.Prefix())
	if !ok {
		return
	}

	cmd, found := r.registry.Resolve(name)
	if !found {
		slog.Debug("unknown command", "name", name, "sender_id", msg.SenderID)
		// Only hint in private chats; groups see enough unknown-prefix noise.
		if !msg.IsGroupChat {
			text := "Unknown command. Send " + r.cfg.Prefix() + "help for the list."
			if err := r.transport.SendText(ctx, msg.ChatID, text); err != nil {
				slog.Debug("unknown command hint failed", "chat_id", msg.ChatID, "error", err)
			}
		}
		return
	}

	user, group, err := r.loadRecords(ctx, msg)
	if err != nil {
		slog.Warn("record load failed, dropping command", "command", name, "sender_id", msg.SenderID, "error", err)
		return
	}

	r.dispatcher.Dispatch(ctx, cmd, msg, args, user, group)
}

// handleMedia rate-limits and fetches attachments. Without a downloader the
// message degrades to plain text handling.
func (r *Router) handleMedia(ctx context.Context, msg bus.InboundMessage) {
	if r.downloader == nil {
		r.handleText(ctx, msg)
		return
	}

	if res := r.limiter.Check(msg.SenderID, "media"); !res.Allowed {
		text := "Media limit reached. Try again in " + ratelimit.FormatReset(res.ResetAfter) + "."
		if err := r.transport.SendText(ctx, msg.ChatID, text); err != nil {
			slog.Debug("media limit reply failed", "chat_id", msg.ChatID, "error", err)
		}
		return
	}

	for _, url := range msg.Media {
		path, err := r.downloader.Download(ctx, url)
		if err != nil {
			slog.Warn("media download failed", "sender_id", msg.SenderID, "error", err)
			continue
		}
		slog.Info("media stored", "sender_id", msg.SenderID, "path", path)
	}
}

// handleText runs non-command traffic through anti-spam and, when clean, the
// group's auto-reply.
func (r *Router) handleText(ctx context.Context, msg bus.InboundMessage) {
	user, group, err := r.loadRecords(ctx, msg)
	if err != nil {
		slog.Debug("record load failed for text message", "sender_id", msg.SenderID, "error", err)
		return
	}
	if user.Banned || (group != nil && group.Banned) {
		return
	}

	if r.spamEnabledFor(group) {
		sctx := antispam.SubjectContext{
			ChatID:       msg.ChatID,
			IsGroupChat:  msg.IsGroupChat,
			IsGroupAdmin: group != nil && group.IsAdmin(msg.SenderID),
		}
		verdict := r.spam.Check(msg.SenderID, msg.RawContent, sctx)
		if verdict.IsSpam {
			if err := r.enforcer.ProcessAction(ctx, msg.SenderID, verdict, sctx); err != nil {
				slog.Warn("spam enforcement failed", "sender_id", msg.SenderID, "error", err)
			}
			return
		}
	}

	if group != nil && group.Settings.AutoReply != "" {
		if err := r.transport.SendText(ctx, msg.ChatID, group.Settings.AutoReply); err != nil {
			slog.Debug("auto-reply failed", "chat_id", msg.ChatID, "error", err)
		}
	}
}

// spamEnabledFor combines the global toggle with the per-group setting.
// Private chats follow the global toggle alone.
func (r *Router) spamEnabledFor(group *store.Group) bool {
	if !r.cfg.AntiSpamEnabled() {
		return false
	}
	if group == nil {
		return true
	}
	return group.Settings.AntiSpam
}

// loadRecords resolves the user and (for group chats) group documents,
// creating them on first contact.
func (r *Router) loadRecords(ctx context.Context, msg bus.InboundMessage) (*store.User, *store.Group, error) {
	user, err := r.store.GetUser(ctx, msg.SenderID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		user, err = r.store.UpsertUser(ctx, msg.SenderID, store.UserPatch{Name: store.Ptr(msg.SenderName)})
		if err != nil {
			return nil, nil, err
		}
	}

	if !msg.IsGroupChat {
		return user, nil, nil
	}

	group, err := r.store.GetGroup(ctx, msg.ChatID)
	if err != nil {
		return nil, nil, err
	}
	if group == nil {
		group, err = r.store.UpsertGroup(ctx, msg.ChatID, store.GroupPatch{})
		if err != nil {
			return nil, nil, err
		}
	}
	return user, group, nil
}
