package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const persistTTL = 24 * time.Hour

func persistKey(queueName string) string { return "queue_" + queueName }

// Persist snapshots the pending (not in-flight) messages of every queue into
// the cache. Best-effort: a failed write is logged, never fatal.
func (m *Manager) Persist() {
	if m.store == nil {
		return
	}

	m.mu.Lock()
	snapshots := make(map[string][]Message, len(m.queues))
	for name, q := range m.queues {
		msgs := make([]Message, 0, q.pending.Len())
		for _, msg := range q.pending {
			msgs = append(msgs, *msg)
		}
		snapshots[name] = msgs
	}
	m.mu.Unlock()

	for name, msgs := range snapshots {
		raw, err := json.Marshal(msgs)
		if err != nil {
			slog.Warn("queue snapshot encode failed", "queue", name, "error", err)
			continue
		}
		if err := m.store.Set(persistKey(name), raw, persistTTL); err != nil {
			slog.Warn("queue snapshot write failed", "queue", name, "error", err)
			continue
		}
		slog.Debug("queue snapshot written", "queue", name, "messages", len(msgs))
	}
}

// Restore reloads a queue's persisted snapshot and re-enqueues its messages.
// The snapshot is deleted after a successful restore so a crash loop cannot
// double-enqueue. Restored messages keep their attempt counts.
func (m *Manager) Restore(queueName string) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	raw, ok, err := m.store.Get(persistKey(queueName))
	if err != nil {
		return 0, fmt.Errorf("read queue snapshot %s: %w", queueName, err)
	}
	if !ok {
		return 0, nil
	}

	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		// A corrupt snapshot is unrecoverable; drop it.
		_ = m.store.Del(persistKey(queueName))
		return 0, fmt.Errorf("decode queue snapshot %s: %w", queueName, err)
	}

	restored := 0
	now := time.Now()
	for i := range msgs {
		msg := msgs[i]
		msg.Queue = queueName
		msg.ScheduledFor = now
		if err := m.enqueue(&msg); err != nil {
			return restored, err
		}
		restored++
	}

	_ = m.store.Del(persistKey(queueName))
	if restored > 0 {
		slog.Info("queue restored from snapshot", "queue", queueName, "messages", restored)
	}
	return restored, nil
}
