package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/command"
	"github.com/nextlevelbuilder/waclaw/internal/store"
)

// warnBanThreshold is the warning count at which a user is banned.
const warnBanThreshold = 3

func groupCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "group",
		Aliases:     []string{"groupsettings"},
		Description: "Change group settings (antispam, welcome, autoreply)",
		Usage:       "!group <antispam|welcome> <on|off> | !group autoreply <text|off>",
		Category:    command.CategoryAdmin,
		Permissions: []string{command.PermAdmin, command.PermOwner},
		MinArgs:     2,
		Handler: func(ctx context.Context, req *command.Request) error {
			if req.Group == nil {
				return req.Reply(ctx, "This command only works in a group.")
			}

			settings := req.Group.Settings
			setting, value := strings.ToLower(req.Args[0]), req.Args[1]

			switch setting {
			case "antispam":
				settings.AntiSpam = value == "on"
			case "welcome":
				settings.Welcome = value == "on"
			case "autoreply":
				text := strings.Join(req.Args[1:], " ")
				if strings.EqualFold(text, "off") {
					text = ""
				}
				settings.AutoReply = text
			default:
				return req.Reply(ctx, "Unknown setting. Use antispam, welcome or autoreply.")
			}

			patch := store.GroupPatch{Settings: &settings}
			if _, err := d.Store.UpsertGroup(ctx, req.Group.ID, patch); err != nil {
				return fmt.Errorf("update group settings: %w", err)
			}
			return req.Reply(ctx, "Group setting updated: "+setting)
		},
	}
}

func warnCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "warn",
		Description: "Warn a user; repeated warnings lead to a ban",
		Usage:       "!warn <user> [reason]",
		Category:    command.CategoryAdmin,
		Permissions: []string{command.PermAdmin, command.PermBotAdmin, command.PermOwner},
		Cooldown:    3 * time.Second,
		MinArgs:     1,
		Handler: func(ctx context.Context, req *command.Request) error {
			targetID := normalizeSubjectID(req.Args[0])

			target, err := d.Store.GetUser(ctx, targetID)
			if err != nil {
				return fmt.Errorf("load user %s: %w", targetID, err)
			}
			warnings := 1
			if target != nil {
				warnings = target.Warnings + 1
			}

			patch := store.UserPatch{Warnings: store.Ptr(warnings)}
			if warnings >= warnBanThreshold {
				patch.Banned = store.Ptr(true)
				patch.BanReason = store.Ptr(fmt.Sprintf("%d warnings", warnings))
			}
			if _, err := d.Store.UpsertUser(ctx, targetID, patch); err != nil {
				return fmt.Errorf("warn user %s: %w", targetID, err)
			}

			if warnings >= warnBanThreshold {
				return req.Reply(ctx, fmt.Sprintf("User banned after %d warnings.", warnings), targetID)
			}
			return req.Reply(ctx,
				fmt.Sprintf("Warning %d/%d issued.", warnings, warnBanThreshold), targetID)
		},
	}
}

// normalizeSubjectID accepts both raw IDs and @-mention forms.
func normalizeSubjectID(arg string) string {
	return strings.TrimPrefix(arg, "@")
}
