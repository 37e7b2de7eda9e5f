// Package whatsapp connects to a WhatsApp bridge over WebSocket. The bridge
// (whatsapp-web.js based) speaks the actual WhatsApp protocol; this channel
// exchanges JSON frames with it and keeps the connection alive.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/waclaw/internal/bus"
	"github.com/nextlevelbuilder/waclaw/internal/channels"
	"github.com/nextlevelbuilder/waclaw/internal/config"
)

const (
	handshakeTimeout = 10 * time.Second
	maxReconnectWait = 30 * time.Second
	groupSuffix      = "@g.us"
)

// bridgeFrame is the JSON frame exchanged with the bridge, both directions.
type bridgeFrame struct {
	Type        string   `json:"type"`
	ID          string   `json:"id,omitempty"`
	From        string   `json:"from,omitempty"`
	FromName    string   `json:"from_name,omitempty"`
	Chat        string   `json:"chat,omitempty"`
	To          string   `json:"to,omitempty"`
	Content     string   `json:"content,omitempty"`
	Media       []string `json:"media,omitempty"`
	Mentions    []string `json:"mentions,omitempty"`
	State       string   `json:"state,omitempty"`
	Participant string   `json:"participant,omitempty"`
	QuotedID    string   `json:"quoted_id,omitempty"`
	QuotedText  string   `json:"quoted_text,omitempty"`
}

// Channel is the WhatsApp bridge channel.
type Channel struct {
	*channels.BaseChannel
	cfg       config.WhatsAppConfig
	mu        sync.Mutex
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	sendLimit *rate.Limiter
}

// New creates the channel from config.
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}

	rps := cfg.SendRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 10
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus, cfg.AllowFrom),
		cfg:         cfg,
		sendLimit:   rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// Start connects to the bridge and begins listening. A failed initial dial is
// not fatal; the listen loop keeps reconnecting.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.cfg.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop shuts the channel down.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message, paced by the channel's send limiter so
// broadcasts cannot flood the bridge.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if err := c.sendLimit.Wait(ctx); err != nil {
		return err
	}
	return c.writeFrame(bridgeFrame{
		Type:     "message",
		To:       msg.ChatID,
		Content:  msg.Text,
		Mentions: msg.Mentions,
	})
}

// SendPresence signals "composing"/"paused" to a chat. Unpaced: presence is
// tiny and time-sensitive.
func (c *Channel) SendPresence(_ context.Context, chatID, state string) error {
	return c.writeFrame(bridgeFrame{
		Type:  "presence",
		To:    chatID,
		State: state,
	})
}

// RemoveParticipant asks the bridge to remove a member from a group. Requires
// the bot to be a group admin on the WhatsApp side.
func (c *Channel) RemoveParticipant(_ context.Context, chatID, participantID string) error {
	return c.writeFrame(bridgeFrame{
		Type:        "remove_participant",
		Chat:        chatID,
		Participant: participantID,
	})
}

func (c *Channel) writeFrame(frame bridgeFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal bridge frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write to whatsapp bridge: %w", err)
	}
	return nil
}

// connect establishes the WebSocket connection.
func (c *Channel) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.Dial(c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.cfg.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.cfg.BridgeURL)
	return nil
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxReconnectWait)
				continue
			}

			backoff = time.Second
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp read error, will reconnect", "error", err)

			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid whatsapp bridge frame", "error", err)
			continue
		}
		if frame.Type == "message" {
			c.handleIncoming(frame)
		}
	}
}

// handleIncoming converts a bridge message frame to an InboundMessage and
// publishes it.
func (c *Channel) handleIncoming(frame bridgeFrame) {
	if frame.From == "" {
		return
	}

	chatID := frame.Chat
	if chatID == "" {
		chatID = frame.From
	}
	isGroup := strings.HasSuffix(chatID, groupSuffix)

	if isGroup && !c.CheckGroupPolicy(c.cfg.GroupPolicy, frame.From) {
		slog.Debug("whatsapp group message rejected by policy", "sender_id", frame.From)
		return
	}

	slog.Debug("whatsapp message received",
		"sender_id", frame.From,
		"chat_id", chatID,
		"preview", channels.Truncate(frame.Content, 50),
	)

	c.Publish(bus.InboundMessage{
		ID:          frame.ID,
		ChatID:      chatID,
		SenderID:    frame.From,
		SenderName:  frame.FromName,
		IsGroupChat: isGroup,
		RawContent:  frame.Content,
		Media:       frame.Media,
		QuotedID:    frame.QuotedID,
		QuotedText:  frame.QuotedText,
	})
}
