// Package store defines the document storage collaborator for user and
// group records. The dispatch core only ever does single-key fetch/patch;
// backends are SQLite (standalone) or Postgres (managed).
package store

import (
	"context"
	"time"
)

// User is the persisted per-subject document.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Banned       bool      `json:"banned"`
	BanReason    string    `json:"ban_reason,omitempty"`
	Premium      bool      `json:"premium"`
	CommandCount int64     `json:"command_count"`
	MessageCount int64     `json:"message_count"`
	Warnings     int       `json:"warnings"`
	LastSeen     time.Time `json:"last_seen"`
}

// GroupSettings holds per-group feature toggles.
type GroupSettings struct {
	AntiSpam  bool   `json:"anti_spam"`
	Welcome   bool   `json:"welcome"`
	AutoReply string `json:"auto_reply,omitempty"`
}

// Group is the persisted per-group document.
type Group struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	Banned       bool          `json:"banned"`
	BanReason    string        `json:"ban_reason,omitempty"`
	Admins       []string      `json:"admins,omitempty"`
	Settings     GroupSettings `json:"settings"`
	CommandCount int64         `json:"command_count"`
}

// IsAdmin reports whether a subject is a group admin.
func (g *Group) IsAdmin(subjectID string) bool {
	for _, id := range g.Admins {
		if id == subjectID {
			return true
		}
	}
	return false
}

// CommandLogEntry records one command dispatch outcome.
type CommandLogEntry struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	SubjectID string        `json:"subject_id"`
	ChatID    string        `json:"chat_id"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// UserPatch carries the fields of a user document to update.
// Nil fields are left untouched.
type UserPatch struct {
	Name      *string
	Banned    *bool
	BanReason *string
	Premium   *bool
	Warnings  *int
}

// GroupPatch carries the fields of a group document to update.
type GroupPatch struct {
	Name      *string
	Banned    *bool
	BanReason *string
	Admins    *[]string
	Settings  *GroupSettings
}

// Store is the CRUD contract the core consumes. GetUser/GetGroup return
// (nil, nil) for unknown IDs — absence is not an error.
type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, id string, patch UserPatch) (*User, error)
	GetGroup(ctx context.Context, id string) (*Group, error)
	UpsertGroup(ctx context.Context, id string, patch GroupPatch) (*Group, error)

	// TouchUser bumps LastSeen/MessageCount; RecordCommand bumps command
	// counters. Both are best-effort bookkeeping calls.
	TouchUser(ctx context.Context, id, name string) error
	RecordCommand(ctx context.Context, userID, groupID string) error

	AppendCommandLog(ctx context.Context, entry CommandLogEntry) error

	// ListUsers/ListGroups exist for backups and owner stats only.
	ListUsers(ctx context.Context) ([]User, error)
	ListGroups(ctx context.Context) ([]Group, error)

	Close() error
}

// ApplyUserPatch merges a patch into a user document.
func ApplyUserPatch(u *User, p UserPatch) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Banned != nil {
		u.Banned = *p.Banned
	}
	if p.BanReason != nil {
		u.BanReason = *p.BanReason
	}
	if p.Premium != nil {
		u.Premium = *p.Premium
	}
	if p.Warnings != nil {
		u.Warnings = *p.Warnings
	}
}

// ApplyGroupPatch merges a patch into a group document.
func ApplyGroupPatch(g *Group, p GroupPatch) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Banned != nil {
		g.Banned = *p.Banned
	}
	if p.BanReason != nil {
		g.BanReason = *p.BanReason
	}
	if p.Admins != nil {
		g.Admins = *p.Admins
	}
	if p.Settings != nil {
		g.Settings = *p.Settings
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }
