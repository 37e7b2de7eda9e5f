package bus

import "context"

// InboundMessage is a normalized message event delivered by a transport
// channel (the WhatsApp bridge). RawContent is classified later by the router.
type InboundMessage struct {
	ID          string            `json:"id"`
	Channel     string            `json:"channel"`
	ChatID      string            `json:"chat_id"`
	SenderID    string            `json:"sender_id"`
	SenderName  string            `json:"sender_name,omitempty"`
	IsGroupChat bool              `json:"is_group_chat"`
	RawContent  string            `json:"raw_content"`
	Media       []string          `json:"media,omitempty"`
	QuotedID    string            `json:"quoted_id,omitempty"`
	QuotedText  string            `json:"quoted_text,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a reply to be delivered through a channel.
// Delivery is fire-and-forget; confirmation is not modeled.
type OutboundMessage struct {
	Channel  string   `json:"channel"`
	ChatID   string   `json:"chat_id"`
	Text     string   `json:"text"`
	Mentions []string `json:"mentions,omitempty"`
}

// Presence states signalled to a chat while the bot works on a command.
const (
	PresenceComposing = "composing"
	PresencePaused    = "paused"
)

// MessageRouter abstracts inbound/outbound message routing between channels
// and the bot runtime.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	ConsumeOutbound(ctx context.Context) (OutboundMessage, bool)
}
