package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/waclaw/internal/bus"
)

// Manager owns the registered channels and the outbound dispatch loop. It
// also serves as the runtime's outbound surface: replies go through the bus
// so senders never block on a slow transport.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      *bus.MessageBus
	primary  string // channel replies default to
}

// NewManager creates a channel manager.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// Register adds a channel. The first registered channel becomes the primary.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
	if m.primary == "" {
		m.primary = ch.Name()
	}
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts every registered channel. A channel that fails to start is
// reported but does not prevent the others from running.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	started := 0
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			slog.Error("channel start failed", "channel", name, "error", err)
			continue
		}
		started++
	}
	if started == 0 && len(m.channels) > 0 {
		return fmt.Errorf("no channel started (%d registered)", len(m.channels))
	}
	return nil
}

// StopAll stops every running channel.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			slog.Warn("channel stop failed", "channel", name, "error", err)
		}
	}
}

// RunOutbound consumes outbound messages from the bus and delivers them to
// the owning channel. Blocks until ctx is cancelled.
func (m *Manager) RunOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}

		ch, found := m.Get(msg.Channel)
		if !found {
			slog.Warn("outbound message for unknown channel dropped", "channel", msg.Channel)
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			slog.Warn("outbound send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

// SendText queues a reply on the primary channel.
func (m *Manager) SendText(_ context.Context, chatID, text string, mentions ...string) error {
	m.mu.RLock()
	primary := m.primary
	m.mu.RUnlock()

	if primary == "" {
		return fmt.Errorf("no channel registered")
	}
	m.bus.PublishOutbound(bus.OutboundMessage{
		Channel:  primary,
		ChatID:   chatID,
		Text:     text,
		Mentions: mentions,
	})
	return nil
}

// SendPresence signals a chat state on the primary channel. Presence is
// delivered directly, not queued: a late "composing" is worthless.
func (m *Manager) SendPresence(ctx context.Context, chatID, state string) error {
	m.mu.RLock()
	primary := m.primary
	m.mu.RUnlock()

	ch, ok := m.Get(primary)
	if !ok {
		return fmt.Errorf("no channel registered")
	}
	return ch.SendPresence(ctx, chatID, state)
}
