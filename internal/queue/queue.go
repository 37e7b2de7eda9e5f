// Package queue implements named priority queues that decouple enqueue from
// execution. Each queue guarantees bounded concurrent processing, readiness
// ordering by (priority desc, scheduled-for asc), and retry with exponential
// backoff. Results are handed back over a channel of events, never silently
// dropped.
package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/waclaw/internal/cache"
	"github.com/nextlevelbuilder/waclaw/internal/metrics"
)

// Message is one unit of deferred work. Owned exclusively by the queue that
// holds it; callers keep only the ID.
type Message struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	Attempts     int             `json:"attempts"`
	MaxRetries   int             `json:"max_retries"`
	Delay        time.Duration   `json:"delay"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
}

// EventKind classifies queue lifecycle events.
type EventKind string

const (
	EventCompleted EventKind = "completed"
	EventRetry     EventKind = "retry"
	EventFailed    EventKind = "failed"
)

// Event reports a terminal or retry outcome for a message.
type Event struct {
	Kind           EventKind
	Queue          string
	Message        Message
	Err            error
	Attempts       int
	ProcessingTime time.Duration
	NextAttemptIn  time.Duration // only for EventRetry
}

// Executor is the caller-supplied execution hook for a named queue.
type Executor func(ctx context.Context, msg Message) error

// Options tune a single enqueue call.
type Options struct {
	ID         string        // caller-supplied id ("" = generated)
	Priority   int           // higher = served first
	Delay      time.Duration // defers the first run; also the retry backoff base (default 1s)
	MaxRetries int           // default 3
}

// Config tunes the manager.
type Config struct {
	MaxConcurrent  int           // per-queue in-flight bound (default 5)
	MaxRetries     int           // default when Options omit it (default 3)
	BaseDelay      time.Duration // default when Options omit it (default 1s)
	BacklogLimit   int           // backlog flag threshold (default 1000)
	HealthInterval time.Duration // health check period (default 30s)
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.BacklogLimit <= 0 {
		c.BacklogLimit = 1000
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
}

// namedQueue holds per-queue state. All fields are guarded by Manager.mu.
type namedQueue struct {
	name     string
	pending  messageHeap
	inflight map[string]bool
	executor Executor
	paused   bool
	wakeup   *time.Timer // fires when the earliest future message is ready
}

// Manager owns all named queues.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*namedQueue
	cfg    Config
	store  cache.Store // queue persistence, best-effort
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a queue manager. store may be nil (no persistence).
func NewManager(cfg Config, store cache.Store) *Manager {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		queues: make(map[string]*namedQueue),
		cfg:    cfg,
		store:  store,
		events: make(chan Event, 256),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Events returns the channel carrying completed/retry/failed events.
func (m *Manager) Events() <-chan Event { return m.events }

// RegisterQueue binds an executor to a named queue. Must be called before
// messages for that queue are added.
func (m *Manager) RegisterQueue(name string, executor Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureQueueLocked(name).executor = executor
}

func (m *Manager) ensureQueueLocked(name string) *namedQueue {
	q, ok := m.queues[name]
	if !ok {
		q = &namedQueue{
			name:     name,
			inflight: make(map[string]bool),
		}
		heap.Init(&q.pending)
		m.queues[name] = q
	}
	return q
}

// Add enqueues a payload on the named queue and triggers a drain attempt.
// Returns the message ID.
func (m *Manager) Add(queueName string, payload json.RawMessage, opts Options) (string, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = m.cfg.MaxRetries
	}

	now := time.Now()
	// An explicit delay defers the first run; the zero value means ready
	// immediately, with BaseDelay as the backoff base.
	scheduledFor := now.Add(opts.Delay)
	if opts.Delay <= 0 {
		opts.Delay = m.cfg.BaseDelay
	}

	msg := &Message{
		ID:           opts.ID,
		Queue:        queueName,
		Payload:      payload,
		Priority:     opts.Priority,
		ScheduledFor: scheduledFor,
		MaxRetries:   opts.MaxRetries,
		Delay:        opts.Delay,
		EnqueuedAt:   now,
	}

	if err := m.enqueue(msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// enqueue pushes a fully-built message onto its queue and triggers a drain.
// Restore uses it directly so restored messages keep their attempt counts.
func (m *Manager) enqueue(msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.ensureQueueLocked(msg.Queue)
	if q.executor == nil {
		return fmt.Errorf("queue %s has no registered executor", msg.Queue)
	}
	heap.Push(&q.pending, msg)
	metrics.QueuePending.WithLabelValues(msg.Queue).Set(float64(q.pending.Len()))
	m.drainLocked(q)
	return nil
}

// Remove cancels a not-yet-dispatched message. In-flight messages cannot be
// cancelled. Returns whether the message was found and removed.
func (m *Manager) Remove(queueName, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[queueName]
	if !ok || q.inflight[id] {
		return false
	}
	for i, msg := range q.pending {
		if msg.ID == id {
			heap.Remove(&q.pending, i)
			metrics.QueuePending.WithLabelValues(queueName).Set(float64(q.pending.Len()))
			return true
		}
	}
	return false
}

// Pause suspends draining for a queue. In-flight messages run to completion.
func (m *Manager) Pause(queueName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[queueName]; ok {
		q.paused = true
	}
}

// Resume re-enables draining and immediately attempts it.
func (m *Manager) Resume(queueName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[queueName]; ok {
		q.paused = false
		m.drainLocked(q)
	}
}

// Pending returns the queued (not in-flight) message count.
func (m *Manager) Pending(queueName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[queueName]; ok {
		return q.pending.Len()
	}
	return 0
}

// Inflight returns the count of messages currently executing.
func (m *Manager) Inflight(queueName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[queueName]; ok {
		return len(q.inflight)
	}
	return 0
}

// Drain waits until the named queue is empty (no pending, no in-flight) or
// the timeout elapses. Only the wait fails on timeout, not the work.
func (m *Manager) Drain(queueName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		q, ok := m.queues[queueName]
		empty := !ok || (q.pending.Len() == 0 && len(q.inflight) == 0)
		m.mu.Unlock()

		if empty {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("drain %s: timeout after %s", queueName, timeout)
		}
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// drainLocked dispatches ready messages while under the concurrency bound.
// The heap head is not necessarily ready (a retrying high-priority message
// may be scheduled in the future), so each pass picks the best message among
// the ready subset and arms a wakeup for whatever remains scheduled ahead.
// Callers must hold m.mu.
func (m *Manager) drainLocked(q *namedQueue) {
	if q.paused || q.executor == nil {
		return
	}

	now := time.Now()
	for len(q.inflight) < m.cfg.MaxConcurrent && q.pending.Len() > 0 {
		idx := q.pending.readyIndex(now)
		if idx < 0 {
			break
		}

		next := heap.Remove(&q.pending, idx).(*Message)
		next.Attempts++
		q.inflight[next.ID] = true

		metrics.QueuePending.WithLabelValues(q.name).Set(float64(q.pending.Len()))
		metrics.QueueInflight.WithLabelValues(q.name).Set(float64(len(q.inflight)))

		m.wg.Add(1)
		go m.execute(q, *next)
	}

	if at, ok := q.pending.earliestScheduled(); ok && at.After(now) {
		m.scheduleWakeupLocked(q, at.Sub(now))
	}
}

// scheduleWakeupLocked arms a timer for the next future-scheduled message.
func (m *Manager) scheduleWakeupLocked(q *namedQueue, in time.Duration) {
	if q.wakeup != nil {
		q.wakeup.Stop()
	}
	q.wakeup = time.AfterFunc(in, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.drainLocked(q)
	})
}

// execute runs one message through the queue's executor and handles the result.
func (m *Manager) execute(q *namedQueue, msg Message) {
	defer m.wg.Done()

	start := time.Now()
	err := q.executor(m.ctx, msg)
	elapsed := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(q.inflight, msg.ID)
	metrics.QueueInflight.WithLabelValues(q.name).Set(float64(len(q.inflight)))

	if err == nil {
		m.emit(Event{
			Kind:           EventCompleted,
			Queue:          q.name,
			Message:        msg,
			Attempts:       msg.Attempts,
			ProcessingTime: elapsed,
		})
		m.drainLocked(q)
		return
	}

	if msg.Attempts < msg.MaxRetries {
		// Exponential backoff: delay * 2^(attempts-1).
		backoff := msg.Delay << (msg.Attempts - 1)
		msg.ScheduledFor = time.Now().Add(backoff)

		retry := msg
		heap.Push(&q.pending, &retry)
		metrics.QueuePending.WithLabelValues(q.name).Set(float64(q.pending.Len()))

		slog.Warn("queue message failed, retrying",
			"queue", q.name, "id", msg.ID, "attempt", msg.Attempts, "backoff", backoff, "error", err)
		m.emit(Event{
			Kind:          EventRetry,
			Queue:         q.name,
			Message:       msg,
			Err:           err,
			Attempts:      msg.Attempts,
			NextAttemptIn: backoff,
		})
		m.drainLocked(q)
		return
	}

	slog.Error("queue message failed permanently",
		"queue", q.name, "id", msg.ID, "attempts", msg.Attempts, "error", err)
	m.emit(Event{
		Kind:           EventFailed,
		Queue:          q.name,
		Message:        msg,
		Err:            err,
		Attempts:       msg.Attempts,
		ProcessingTime: elapsed,
	})
	m.drainLocked(q)
}

// emit delivers an event without blocking queue progress.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		slog.Warn("queue event channel full, dropping event", "queue", ev.Queue, "kind", ev.Kind)
	}
}

// Close stops health checks and waits for in-flight work to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
