package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/waclaw/internal/command"
	"github.com/nextlevelbuilder/waclaw/internal/queue"
	"github.com/nextlevelbuilder/waclaw/internal/store"
)

// BroadcastPayload is one queued broadcast delivery.
type BroadcastPayload struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func banCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "ban",
		Description: "Ban a user from the bot",
		Usage:       "!ban <user> [reason]",
		Category:    command.CategoryOwner,
		Permissions: []string{command.PermOwner, command.PermBotAdmin},
		MinArgs:     1,
		Handler: func(ctx context.Context, req *command.Request) error {
			targetID := normalizeSubjectID(req.Args[0])
			reason := "banned by operator"
			if len(req.Args) > 1 {
				reason = strings.Join(req.Args[1:], " ")
			}

			patch := store.UserPatch{
				Banned:    store.Ptr(true),
				BanReason: store.Ptr(reason),
			}
			if _, err := d.Store.UpsertUser(ctx, targetID, patch); err != nil {
				return fmt.Errorf("ban user %s: %w", targetID, err)
			}
			return req.Reply(ctx, "User banned: "+targetID)
		},
	}
}

func unbanCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "unban",
		Description: "Lift a user ban",
		Usage:       "!unban <user>",
		Category:    command.CategoryOwner,
		Permissions: []string{command.PermOwner, command.PermBotAdmin},
		MinArgs:     1,
		MaxArgs:     1,
		Handler: func(ctx context.Context, req *command.Request) error {
			targetID := normalizeSubjectID(req.Args[0])
			patch := store.UserPatch{
				Banned:    store.Ptr(false),
				BanReason: store.Ptr(""),
				Warnings:  store.Ptr(0),
			}
			if _, err := d.Store.UpsertUser(ctx, targetID, patch); err != nil {
				return fmt.Errorf("unban user %s: %w", targetID, err)
			}
			return req.Reply(ctx, "User unbanned: "+targetID)
		},
	}
}

func bangroupCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "bangroup",
		Description: "Make the bot ignore a group",
		Usage:       "!bangroup <groupID> [reason]",
		Category:    command.CategoryOwner,
		Permissions: []string{command.PermOwner},
		MinArgs:     1,
		Handler: func(ctx context.Context, req *command.Request) error {
			groupID := req.Args[0]
			reason := "banned by operator"
			if len(req.Args) > 1 {
				reason = strings.Join(req.Args[1:], " ")
			}

			patch := store.GroupPatch{
				Banned:    store.Ptr(true),
				BanReason: store.Ptr(reason),
			}
			if _, err := d.Store.UpsertGroup(ctx, groupID, patch); err != nil {
				return fmt.Errorf("ban group %s: %w", groupID, err)
			}
			return req.Reply(ctx, "Group banned: "+groupID)
		},
	}
}

func unbangroupCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "unbangroup",
		Description: "Lift a group ban",
		Usage:       "!unbangroup <groupID>",
		Category:    command.CategoryOwner,
		Permissions: []string{command.PermOwner},
		MinArgs:     1,
		MaxArgs:     1,
		Handler: func(ctx context.Context, req *command.Request) error {
			patch := store.GroupPatch{
				Banned:    store.Ptr(false),
				BanReason: store.Ptr(""),
			}
			if _, err := d.Store.UpsertGroup(ctx, req.Args[0], patch); err != nil {
				return fmt.Errorf("unban group %s: %w", req.Args[0], err)
			}
			return req.Reply(ctx, "Group unbanned: "+req.Args[0])
		},
	}
}

func premiumCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "premium",
		Description: "Grant or revoke premium access",
		Usage:       "!premium <user> <on|off>",
		Category:    command.CategoryOwner,
		Permissions: []string{command.PermOwner},
		MinArgs:     2,
		MaxArgs:     2,
		Handler: func(ctx context.Context, req *command.Request) error {
			targetID := normalizeSubjectID(req.Args[0])
			enable := strings.EqualFold(req.Args[1], "on")

			patch := store.UserPatch{Premium: store.Ptr(enable)}
			if _, err := d.Store.UpsertUser(ctx, targetID, patch); err != nil {
				return fmt.Errorf("set premium for %s: %w", targetID, err)
			}
			state := "revoked"
			if enable {
				state = "granted"
			}
			return req.Reply(ctx, fmt.Sprintf("Premium %s for %s", state, targetID))
		},
	}
}

// broadcastCommand fans a message out to every non-banned group through the
// broadcast queue, so delivery is paced and retried instead of hammered out
// in one burst.
func broadcastCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "broadcast",
		Aliases:     []string{"bc"},
		Description: "Send a message to all groups",
		Usage:       "!broadcast <text>",
		Category:    command.CategoryOwner,
		Permissions: []string{command.PermOwner},
		MinArgs:     1,
		Handler: func(ctx context.Context, req *command.Request) error {
			text := strings.Join(req.Args, " ")

			groups, err := d.Store.ListGroups(ctx)
			if err != nil {
				return fmt.Errorf("list groups: %w", err)
			}

			enqueued := 0
			for _, g := range groups {
				if g.Banned {
					continue
				}
				payload, err := json.Marshal(BroadcastPayload{ChatID: g.ID, Text: text})
				if err != nil {
					return err
				}
				if _, err := d.Queue.Add(BroadcastQueue, payload, queue.Options{}); err != nil {
					return fmt.Errorf("enqueue broadcast: %w", err)
				}
				enqueued++
			}
			return req.Reply(ctx, fmt.Sprintf("Broadcast queued for %d groups.", enqueued))
		},
	}
}

func statusCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "status",
		Description: "Show runtime health (queues, cache)",
		Usage:       "!status",
		Category:    command.CategoryOwner,
		Permissions: []string{command.PermOwner, command.PermBotAdmin},
		Handler: func(ctx context.Context, req *command.Request) error {
			var b strings.Builder
			b.WriteString("*Runtime status*\n")

			if d.Cache.Degraded() {
				b.WriteString("Cache: DEGRADED (persistent tier down)\n")
			} else {
				b.WriteString("Cache: healthy\n")
			}

			stats := d.Queue.StatsAll()
			if len(stats) == 0 {
				b.WriteString("Queues: none active")
			}
			for _, s := range stats {
				fmt.Fprintf(&b, "Queue %s: %d pending, %d in flight", s.Name, s.Pending, s.Inflight)
				if s.Paused {
					b.WriteString(" (paused)")
				}
				if s.Backlogged {
					b.WriteString(" (backlogged)")
				}
				b.WriteString("\n")
			}
			return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
		},
	}
}
