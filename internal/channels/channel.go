// Package channels connects external messaging platforms to the bot runtime
// via the message bus. A channel owns its transport connection; the manager
// owns lifecycle and outbound dispatch.
package channels

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/waclaw/internal/bus"
)

// Group message policies.
const (
	GroupPolicyOpen      = "open"
	GroupPolicyAllowlist = "allowlist"
	GroupPolicyDisabled  = "disabled"
)

// Channel is the transport abstraction the runtime drives.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// SendPresence signals a chat state ("composing", "paused") to a chat.
	SendPresence(ctx context.Context, chatID, state string) error

	// IsRunning reports whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks the channel's sender allowlist.
	IsAllowed(senderID string) bool
}

// BaseChannel provides the shared plumbing channel implementations embed.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   bool
	allowList []string
}

// NewBaseChannel creates a BaseChannel.
func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning reports the running state.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// IsAllowed checks the allowlist. An empty allowlist admits everyone; "@" is
// stripped from configured entries so mention-style config values match.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if senderID == strings.TrimPrefix(allowed, "@") {
			return true
		}
	}
	return false
}

// CheckGroupPolicy evaluates the group policy for a sender.
func (c *BaseChannel) CheckGroupPolicy(policy, senderID string) bool {
	switch policy {
	case GroupPolicyDisabled:
		return false
	case GroupPolicyAllowlist:
		return c.IsAllowed(senderID)
	default:
		return true
	}
}

// Publish forwards a received message to the bus after the allowlist check.
func (c *BaseChannel) Publish(msg bus.InboundMessage) {
	if !c.IsAllowed(msg.SenderID) {
		return
	}
	msg.Channel = c.name
	c.bus.PublishInbound(msg)
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
