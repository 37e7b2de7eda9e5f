package cache

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/metrics"
)

// Tiered layers the memory store over an optional persistent tier.
// Reads prefer memory and fall back to the persistent tier; writes go to
// both. A persistent-tier failure flips an explicit degraded flag — the
// cache keeps serving from memory and the condition is visible to
// observability rather than silently swallowed.
type Tiered struct {
	memory     *Memory
	persistent Store
	degraded   atomic.Bool
}

// NewTiered creates a tiered cache. persistent may be nil (memory only).
func NewTiered(memory *Memory, persistent Store) *Tiered {
	return &Tiered{memory: memory, persistent: persistent}
}

// Degraded reports whether the persistent tier is currently unavailable.
func (t *Tiered) Degraded() bool {
	return t.degraded.Load()
}

func (t *Tiered) markDegraded(op string, err error) {
	if t.degraded.CompareAndSwap(false, true) {
		slog.Error("cache entering degraded mode", "op", op, "error", err)
	}
	metrics.CacheDegraded.Set(1)
}

func (t *Tiered) markHealthy() {
	if t.degraded.CompareAndSwap(true, false) {
		slog.Info("cache persistent tier recovered")
	}
	metrics.CacheDegraded.Set(0)
}

func (t *Tiered) Get(key string) ([]byte, bool, error) {
	if val, ok, _ := t.memory.Get(key); ok {
		return val, true, nil
	}
	if t.persistent == nil {
		return nil, false, nil
	}

	val, ok, err := t.persistent.Get(key)
	if err != nil {
		t.markDegraded("get", err)
		return nil, false, err
	}
	t.markHealthy()
	if ok {
		_ = t.memory.Set(key, val, t.promotionTTL(key))
	}
	return val, ok, nil
}

// promotionTTL asks the persistent tier for the entry's remaining lifetime so
// the promoted memory copy expires in step with it. Tiers that cannot report
// a TTL promote without one.
func (t *Tiered) promotionTTL(key string) time.Duration {
	r, ok := t.persistent.(TTLReporter)
	if !ok {
		return 0
	}
	left, found, err := r.TTL(key)
	if err != nil || !found {
		return 0
	}
	return left
}

func (t *Tiered) Set(key string, value []byte, ttl time.Duration) error {
	_ = t.memory.Set(key, value, ttl)
	if t.persistent == nil {
		return nil
	}
	if err := t.persistent.Set(key, value, ttl); err != nil {
		t.markDegraded("set", err)
		return err
	}
	t.markHealthy()
	return nil
}

func (t *Tiered) Del(key string) error {
	_ = t.memory.Del(key)
	if t.persistent == nil {
		return nil
	}
	if err := t.persistent.Del(key); err != nil {
		t.markDegraded("del", err)
		return err
	}
	t.markHealthy()
	return nil
}

// Prune discards expired entries from both tiers and reports how many were
// removed. Called from maintenance.
func (t *Tiered) Prune() int {
	removed := t.memory.Sweep()
	if b, ok := t.persistent.(*Bolt); ok {
		n, err := b.Compact()
		if err != nil {
			t.markDegraded("compact", err)
		} else {
			removed += n
		}
	}
	return removed
}

func (t *Tiered) Keys(prefix string) ([]string, error) {
	memKeys, _ := t.memory.Keys(prefix)
	if t.persistent == nil {
		return memKeys, nil
	}

	persKeys, err := t.persistent.Keys(prefix)
	if err != nil {
		t.markDegraded("keys", err)
		return memKeys, err
	}
	t.markHealthy()

	seen := make(map[string]bool, len(memKeys))
	for _, k := range memKeys {
		seen[k] = true
	}
	merged := memKeys
	for _, k := range persKeys {
		if !seen[k] {
			merged = append(merged, k)
		}
	}
	return merged, nil
}
