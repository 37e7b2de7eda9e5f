// Package dispatch runs resolved commands through an ordered gate pipeline
// before execution: bans, permissions, chat-type restrictions, cooldown, rate
// limit, anti-spam, argument count. Every rejection tells the user why in its
// own words; every execution is timed, panic-guarded, and logged.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/waclaw/internal/antispam"
	"github.com/nextlevelbuilder/waclaw/internal/bus"
	"github.com/nextlevelbuilder/waclaw/internal/command"
	"github.com/nextlevelbuilder/waclaw/internal/config"
	"github.com/nextlevelbuilder/waclaw/internal/metrics"
	"github.com/nextlevelbuilder/waclaw/internal/ratelimit"
	"github.com/nextlevelbuilder/waclaw/internal/store"
)

const slowCommandThreshold = 5 * time.Second

// Gate names used in logs and rejection metrics.
const (
	gateUserBan    = "user_ban"
	gateGroupBan   = "group_ban"
	gatePermission = "permission"
	gateOwnerChat  = "owner_chat"
	gateCooldown   = "cooldown"
	gateRateLimit  = "rate_limit"
	gateAntiSpam   = "anti_spam"
	gateArgs       = "args"
)

// Transport is the outbound surface the dispatcher needs from a channel.
type Transport interface {
	command.Responder
	SendPresence(ctx context.Context, chatID, state string) error
}

// Dispatcher validates and executes commands.
type Dispatcher struct {
	cfg       *config.Config
	limiter   *ratelimit.Limiter
	spam      *antispam.Engine
	store     store.Store
	transport Transport
	cooldowns *cooldownTracker
}

// New wires a Dispatcher.
func New(cfg *config.Config, limiter *ratelimit.Limiter, spam *antispam.Engine, st store.Store, transport Transport) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		limiter:   limiter,
		spam:      spam,
		store:     st,
		transport: transport,
		cooldowns: newCooldownTracker(),
	}
}

// PruneCooldowns drops stale cooldown entries. Called from maintenance.
func (d *Dispatcher) PruneCooldowns(maxAge time.Duration) int {
	return d.cooldowns.Prune(maxAge)
}

// Dispatch runs one resolved command invocation through the gates and, if all
// pass, executes the handler. The user record is always present; group is nil
// in private chats.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *command.Command, msg bus.InboundMessage, args []string, user *store.User, group *store.Group) {
	subjectID := msg.SenderID

	if !d.runGates(ctx, cmd, msg, args, user, group) {
		return
	}

	// The user sees the bot typing while the handler runs, and the state is
	// always cleared afterwards, even on panic.
	if err := d.transport.SendPresence(ctx, msg.ChatID, bus.PresenceComposing); err != nil {
		slog.Debug("composing presence failed", "chat_id", msg.ChatID, "error", err)
	}
	defer func() {
		if err := d.transport.SendPresence(ctx, msg.ChatID, bus.PresencePaused); err != nil {
			slog.Debug("paused presence failed", "chat_id", msg.ChatID, "error", err)
		}
	}()

	start := time.Now()
	err := d.runHandler(ctx, cmd, msg, args, user, group)
	elapsed := time.Since(start)

	d.cooldowns.Touch(cmd.Name, subjectID)

	status := "ok"
	if err != nil {
		status = "error"
		slog.Error("command failed", "command", cmd.Name, "subject_id", subjectID, "error", err)
		text := "Something went wrong running that command. Try again later."
		if sendErr := d.transport.SendText(ctx, msg.ChatID, text); sendErr != nil {
			slog.Warn("error reply failed", "chat_id", msg.ChatID, "error", sendErr)
		}
	}

	if elapsed > slowCommandThreshold {
		slog.Warn("slow command", "command", cmd.Name, "duration", elapsed)
	}

	metrics.CommandsProcessed.WithLabelValues(cmd.Name, status).Inc()
	metrics.CommandDuration.WithLabelValues(cmd.Name).Observe(elapsed.Seconds())

	d.recordOutcome(ctx, cmd, msg, err == nil, elapsed)
}

// runHandler executes the handler with panic containment. A panicking handler
// is reported as a command error, never a crashed process.
func (d *Dispatcher) runHandler(ctx context.Context, cmd *command.Command, msg bus.InboundMessage, args []string, user *store.User, group *store.Group) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("command handler panicked",
				"command", cmd.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	req := command.NewRequest(msg, args, user, group, d.transport)
	return cmd.Handler(ctx, req)
}

// runGates applies the rejection gates in order. Returns true when the
// command may execute.
func (d *Dispatcher) runGates(ctx context.Context, cmd *command.Command, msg bus.InboundMessage, args []string, user *store.User, group *store.Group) bool {
	subjectID := msg.SenderID

	// Banned user: permanent store ban or active rate-limit temp ban.
	if user.Banned {
		d.reject(ctx, cmd, msg, gateUserBan, "You are banned from using this bot.")
		return false
	}
	if banned, ban := d.limiter.IsTemporarilyBanned(subjectID); banned {
		text := fmt.Sprintf("You are temporarily banned for %s (%s).",
			ratelimit.FormatReset(ban.Remaining(time.Now())), ban.Reason)
		d.reject(ctx, cmd, msg, gateUserBan, text)
		return false
	}

	if group != nil && group.Banned {
		d.reject(ctx, cmd, msg, gateGroupBan, "This group is banned from using the bot.")
		return false
	}

	if !d.hasPermission(cmd, msg, user, group) {
		d.reject(ctx, cmd, msg, gatePermission, "You don't have permission to use this command.")
		return false
	}

	// Owner-category commands stay out of group chats, so owner tooling
	// never leaks into shared conversations.
	if cmd.Category == command.CategoryOwner && msg.IsGroupChat {
		d.reject(ctx, cmd, msg, gateOwnerChat, "That command only works in a private chat with the bot.")
		return false
	}

	if left := d.cooldowns.Remaining(cmd.Name, subjectID, cmd.Cooldown); left > 0 {
		text := fmt.Sprintf("Slow down! You can use !%s again in %s.", cmd.Name, ratelimit.FormatReset(left))
		d.reject(ctx, cmd, msg, gateCooldown, text)
		return false
	}

	// Owners skip rate limiting entirely.
	if !d.cfg.IsOwner(subjectID) {
		rlCategory := "commands"
		if cmd.Category == command.CategoryMedia {
			rlCategory = "media"
		}
		if res := d.limiter.Check(subjectID, rlCategory); !res.Allowed {
			text := fmt.Sprintf("Rate limit reached. Try again in %s.", ratelimit.FormatReset(res.ResetAfter))
			d.reject(ctx, cmd, msg, gateRateLimit, text)
			return false
		}
	}

	if d.cfg.AntiSpamEnabled() {
		sctx := antispam.SubjectContext{
			ChatID:       msg.ChatID,
			IsGroupChat:  msg.IsGroupChat,
			IsGroupAdmin: group != nil && group.IsAdmin(subjectID),
		}
		if verdict := d.spam.Check(subjectID, msg.RawContent, sctx); verdict.IsSpam {
			text := "That looks like spam. The command was not executed."
			if verdict.Action == antispam.ActionThrottle && verdict.WaitTime > 0 {
				text = fmt.Sprintf("That looks like spam. Wait %s and try again.", ratelimit.FormatReset(verdict.WaitTime))
			}
			d.reject(ctx, cmd, msg, gateAntiSpam, text)
			return false
		}
	}

	if len(args) < cmd.MinArgs || (cmd.MaxArgs > 0 && len(args) > cmd.MaxArgs) {
		usage := cmd.Usage
		if usage == "" {
			usage = "!" + cmd.Name
		}
		d.reject(ctx, cmd, msg, gateArgs, "Usage: "+usage)
		return false
	}

	return true
}

// hasPermission applies OR semantics over the command's permission tags: the
// caller passes if ANY tag is satisfied. No tags means everyone.
func (d *Dispatcher) hasPermission(cmd *command.Command, msg bus.InboundMessage, user *store.User, group *store.Group) bool {
	if len(cmd.Permissions) == 0 {
		return true
	}

	for _, perm := range cmd.Permissions {
		switch perm {
		case command.PermOwner:
			if d.cfg.IsOwner(msg.SenderID) {
				return true
			}
		case command.PermBotAdmin:
			if d.cfg.IsBotAdmin(msg.SenderID) {
				return true
			}
		case command.PermAdmin:
			if group != nil && group.IsAdmin(msg.SenderID) {
				return true
			}
		case command.PermPremium:
			if user.Premium {
				return true
			}
		case command.PermGroup:
			if msg.IsGroupChat {
				return true
			}
		case command.PermPrivate:
			if !msg.IsGroupChat {
				return true
			}
		}
	}
	return false
}

// reject counts the gate rejection and tells the user why.
func (d *Dispatcher) reject(ctx context.Context, cmd *command.Command, msg bus.InboundMessage, gate, text string) {
	metrics.GateRejections.WithLabelValues(gate).Inc()
	slog.Debug("command rejected", "command", cmd.Name, "gate", gate, "subject_id", msg.SenderID)

	if err := d.transport.SendText(ctx, msg.ChatID, text); err != nil {
		slog.Warn("rejection reply failed", "chat_id", msg.ChatID, "error", err)
	}
}

// recordOutcome persists usage bookkeeping. Best-effort: storage trouble is
// logged and never affects the user-visible outcome.
func (d *Dispatcher) recordOutcome(ctx context.Context, cmd *command.Command, msg bus.InboundMessage, success bool, elapsed time.Duration) {
	groupID := ""
	if msg.IsGroupChat {
		groupID = msg.ChatID
	}
	if err := d.store.RecordCommand(ctx, msg.SenderID, groupID); err != nil {
		slog.Debug("command counter update failed", "subject_id", msg.SenderID, "error", err)
	}

	entry := store.CommandLogEntry{
		ID:        uuid.NewString(),
		Command:   cmd.Name,
		SubjectID: msg.SenderID,
		ChatID:    msg.ChatID,
		Success:   success,
		Duration:  elapsed,
		At:        time.Now(),
	}
	if err := d.store.AppendCommandLog(ctx, entry); err != nil {
		slog.Debug("command log append failed", "command", cmd.Name, "error", err)
	}
}

// SplitInvocation strips the prefix and splits a raw command message into the
// command name and its arguments.
func SplitInvocation(raw, prefix string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(raw, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(raw, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
