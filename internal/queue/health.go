package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/metrics"
)

// Stats is a point-in-time view of one queue.
type Stats struct {
	Name       string
	Pending    int
	Inflight   int
	Paused     bool
	Backlogged bool
}

// StatsAll returns stats for every known queue.
func (m *Manager) StatsAll() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Stats, 0, len(m.queues))
	for _, q := range m.queues {
		out = append(out, Stats{
			Name:       q.name,
			Pending:    q.pending.Len(),
			Inflight:   len(q.inflight),
			Paused:     q.paused,
			Backlogged: q.pending.Len() > m.cfg.BacklogLimit,
		})
	}
	return out
}

// RunHealthLoop periodically inspects every queue: flags backlog past the
// configured limit and restarts draining on a stalled queue (pending work,
// nothing in flight, not paused). Blocks until ctx is cancelled.
func (m *Manager) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Manager) checkHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, q := range m.queues {
		pending := q.pending.Len()

		backlogged := 0.0
		if pending > m.cfg.BacklogLimit {
			backlogged = 1
			slog.Warn("queue backlogged", "queue", name, "pending", pending, "limit", m.cfg.BacklogLimit)
		}
		metrics.QueueBacklogged.WithLabelValues(name).Set(backlogged)

		// A queue with ready work but nothing running has lost its drain
		// trigger (e.g. a missed wakeup). Kick it.
		if pending > 0 && len(q.inflight) == 0 && !q.paused {
			if q.pending.readyIndex(time.Now()) >= 0 {
				slog.Warn("queue stalled, restarting drain", "queue", name, "pending", pending)
				m.drainLocked(q)
			}
		}
	}
}
