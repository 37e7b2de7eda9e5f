package antispam

import (
	"context"
	"fmt"
	"log/slog"
)

// Sender delivers a plain text reply to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID, text string, mentions ...string) error
}

// Moderator removes a participant from a group chat.
type Moderator interface {
	RemoveParticipant(ctx context.Context, chatID, subjectID string) error
}

// Banner marks a subject as banned in persistent storage (private chats,
// where there is no group to remove them from).
type Banner interface {
	BanUser(ctx context.Context, subjectID, reason string) error
}

// Enforcer executes the action recommended by a Verdict. Kept separate from
// detection so callers decide when (and whether) to enforce.
type Enforcer struct {
	sender    Sender
	moderator Moderator
	banner    Banner
}

// NewEnforcer wires the enforcement collaborators. moderator and banner may
// be nil; the corresponding ban paths then degrade to a warning.
func NewEnforcer(sender Sender, moderator Moderator, banner Banner) *Enforcer {
	return &Enforcer{sender: sender, moderator: moderator, banner: banner}
}

// ProcessAction applies the verdict's enforcement action against the subject.
func (e *Enforcer) ProcessAction(ctx context.Context, subjectID string, verdict Verdict, sctx SubjectContext) error {
	if !verdict.IsSpam {
		return nil
	}

	switch verdict.Action {
	case ActionThrottle:
		text := fmt.Sprintf("Please slow down. Wait %s before sending more messages.", verdict.WaitTime.Round(1e9))
		return e.sender.SendText(ctx, sctx.ChatID, text, subjectID)

	case ActionWarn:
		text := "Warning: your messages look like spam. Further violations will get you removed."
		return e.sender.SendText(ctx, sctx.ChatID, text, subjectID)

	case ActionBan:
		if sctx.IsGroupChat && e.moderator != nil {
			if err := e.moderator.RemoveParticipant(ctx, sctx.ChatID, subjectID); err != nil {
				return fmt.Errorf("remove participant: %w", err)
			}
			slog.Info("spam ban: removed from group", "subject_id", subjectID, "chat_id", sctx.ChatID)
			return nil
		}
		if e.banner != nil {
			if err := e.banner.BanUser(ctx, subjectID, "repeated spam"); err != nil {
				return fmt.Errorf("ban user: %w", err)
			}
			slog.Info("spam ban: user banned", "subject_id", subjectID)
			return nil
		}
		// No ban capability wired — fall back to a warning.
		return e.sender.SendText(ctx, sctx.ChatID, "Repeated spam detected. You have been reported.", subjectID)

	default:
		return nil
	}
}
