// Package command defines the command descriptor and the static registry the
// dispatcher resolves against. Commands are declared in code and registered at
// startup; there is no runtime plugin loading.
package command

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/bus"
	"github.com/nextlevelbuilder/waclaw/internal/store"
)

// Permission tags gate who may invoke a command. A command listing several
// tags accepts a caller satisfying ANY of them.
const (
	PermOwner    = "owner"    // bot owner IDs from config
	PermAdmin    = "admin"    // group admin in the current group
	PermBotAdmin = "botadmin" // bot-wide admin IDs from config
	PermPremium  = "premium"  // premium flag on the user record
	PermGroup    = "group"    // usable only in group chats
	PermPrivate  = "private"  // usable only in private chats
)

// Categories group commands for help listings and rate limiting.
const (
	CategoryGeneral = "general"
	CategoryAdmin   = "admin"
	CategoryOwner   = "owner"
	CategoryMedia   = "media"
	CategoryFun     = "fun"
)

// Responder sends replies on behalf of a command handler.
type Responder interface {
	SendText(ctx context.Context, chatID, text string, mentions ...string) error
}

// Request carries everything a handler needs about one invocation.
type Request struct {
	Message bus.InboundMessage
	Args    []string
	User    *store.User  // always resolved
	Group   *store.Group // nil in private chats

	responder Responder
}

// NewRequest builds a Request bound to a responder.
func NewRequest(msg bus.InboundMessage, args []string, user *store.User, group *store.Group, responder Responder) *Request {
	return &Request{
		Message:   msg,
		Args:      args,
		User:      user,
		Group:     group,
		responder: responder,
	}
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string, mentions ...string) error {
	return r.responder.SendText(ctx, r.Message.ChatID, text, mentions...)
}

// HandlerFunc executes a command.
type HandlerFunc func(ctx context.Context, req *Request) error

// Command describes one registered command.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Category    string
	Permissions []string      // empty = everyone
	Cooldown    time.Duration // per-subject, 0 = none
	MinArgs     int
	MaxArgs     int // 0 = unlimited
	Handler     HandlerFunc
}

// validPermissions is the closed set of recognized permission tags.
var validPermissions = map[string]bool{
	PermOwner:    true,
	PermAdmin:    true,
	PermBotAdmin: true,
	PermPremium:  true,
	PermGroup:    true,
	PermPrivate:  true,
}

// validate reports the first structural problem with the descriptor.
func (c *Command) validate() error {
	switch {
	case c.Name == "":
		return errEmptyName
	case c.Handler == nil:
		return errNilHandler
	case c.MinArgs < 0:
		return errNegativeMinArgs
	case c.MaxArgs != 0 && c.MaxArgs < c.MinArgs:
		return errMaxBelowMin
	}
	for _, p := range c.Permissions {
		if !validPermissions[p] {
			return &unknownPermissionError{Tag: p}
		}
	}
	return nil
}
