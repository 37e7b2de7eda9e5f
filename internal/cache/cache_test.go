package cache

import (
	"errors"
	"sort"
	"testing"
	"time"
)

func TestMemory_SetGetDel(t *testing.T) {
	m := NewMemory(0)

	if err := m.Set("k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	val, ok, err := m.Get("k")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("Get = (%q, %v, %v), want (v, true, nil)", val, ok, err)
	}

	if err := m.Del("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get("k"); ok {
		t.Error("deleted key still present")
	}

	// Deleting a missing key is not an error.
	if err := m.Del("never-existed"); err != nil {
		t.Errorf("Del missing key = %v", err)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := NewMemory(0)

	m.Set("short", []byte("x"), time.Millisecond)
	m.Set("forever", []byte("y"), 0)

	time.Sleep(10 * time.Millisecond)

	if _, ok, _ := m.Get("short"); ok {
		t.Error("expired key still readable")
	}
	if _, ok, _ := m.Get("forever"); !ok {
		t.Error("ttl-less key expired")
	}
}

func TestMemory_KeysPrefix(t *testing.T) {
	m := NewMemory(0)
	m.Set("rl_user1", nil, 0)
	m.Set("rl_user2", nil, 0)
	m.Set("spam_user1", nil, 0)
	m.Set("rl_gone", nil, time.Millisecond)

	time.Sleep(10 * time.Millisecond)

	keys, err := m.Keys("rl_")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	want := []string{"rl_user1", "rl_user2"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("Keys = %v, want %v", keys, want)
	}
}

func TestMemory_CapEviction(t *testing.T) {
	m := NewMemory(4)

	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		if err := m.Set(k, []byte(k), 0); err != nil {
			t.Fatal(err)
		}
	}

	keys, _ := m.Keys("")
	if len(keys) > 4 {
		t.Errorf("live keys = %d, want <= cap 4", len(keys))
	}
	// The most recent write always lands.
	if _, ok, _ := m.Get("f"); !ok {
		t.Error("latest write evicted")
	}
}

func TestMemory_Sweep(t *testing.T) {
	m := NewMemory(0)
	m.Set("stale1", nil, time.Millisecond)
	m.Set("stale2", nil, time.Millisecond)
	m.Set("live", nil, 0)

	time.Sleep(10 * time.Millisecond)

	if removed := m.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if _, ok, _ := m.Get("live"); !ok {
		t.Error("Sweep removed a live key")
	}
}

// flakyStore is a persistent-tier stand-in whose failure mode can be toggled.
type flakyStore struct {
	*Memory
	failing bool
}

var errTierDown = errors.New("tier down")

func (f *flakyStore) Get(key string) ([]byte, bool, error) {
	if f.failing {
		return nil, false, errTierDown
	}
	return f.Memory.Get(key)
}

func (f *flakyStore) Set(key string, value []byte, ttl time.Duration) error {
	if f.failing {
		return errTierDown
	}
	return f.Memory.Set(key, value, ttl)
}

func (f *flakyStore) Del(key string) error {
	if f.failing {
		return errTierDown
	}
	return f.Memory.Del(key)
}

func (f *flakyStore) Keys(prefix string) ([]string, error) {
	if f.failing {
		return nil, errTierDown
	}
	return f.Memory.Keys(prefix)
}

func TestTiered_MemoryOnly(t *testing.T) {
	c := NewTiered(NewMemory(0), nil)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if val, ok, _ := c.Get("k"); !ok || string(val) != "v" {
		t.Errorf("Get = (%q, %v)", val, ok)
	}
	if c.Degraded() {
		t.Error("memory-only cache must never be degraded")
	}
	if c.Prune() != 0 {
		t.Error("nothing to prune")
	}
}

func TestTiered_PromotesFromPersistentTier(t *testing.T) {
	persistent := &flakyStore{Memory: NewMemory(0)}
	persistent.Set("warm", []byte("v"), 0)

	c := NewTiered(NewMemory(0), persistent)

	// Miss in memory, hit in the persistent tier.
	val, ok, err := c.Get("warm")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("Get = (%q, %v, %v)", val, ok, err)
	}

	// Promoted: a second read survives the persistent tier going down.
	persistent.failing = true
	if val, ok, _ := c.Get("warm"); !ok || string(val) != "v" {
		t.Error("promoted entry not served from memory")
	}
}

// ttlStore is a persistent-tier stand-in that reports per-key lifetimes.
type ttlStore struct {
	*Memory
	ttl map[string]time.Duration
}

func (s *ttlStore) TTL(key string) (time.Duration, bool, error) {
	left, ok := s.ttl[key]
	return left, ok, nil
}

func TestTiered_PromotionCarriesRemainingTTL(t *testing.T) {
	persistent := &ttlStore{
		Memory: NewMemory(0),
		ttl:    map[string]time.Duration{"warm": 30 * time.Millisecond},
	}
	if err := persistent.Set("warm", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	c := NewTiered(NewMemory(0), persistent)

	if _, ok, _ := c.Get("warm"); !ok {
		t.Fatal("warm entry missing")
	}
	// Only the promoted memory copy remains.
	if err := persistent.Memory.Del("warm"); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := c.Get("warm"); !ok {
		t.Fatal("promoted copy gone before its lifetime elapsed")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok, _ := c.Get("warm"); ok {
		t.Error("promoted copy outlived the persistent entry's lifetime")
	}
}

func TestBolt_TTL(t *testing.T) {
	b, err := NewBolt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	left, ok, err := b.TTL("k")
	if err != nil || !ok {
		t.Fatalf("TTL = (%v, %v, %v)", left, ok, err)
	}
	if left <= 0 || left > time.Minute {
		t.Errorf("remaining = %v, want within the original minute", left)
	}

	if err := b.Set("forever", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if left, ok, _ := b.TTL("forever"); !ok || left != 0 {
		t.Errorf("no-expiry TTL = (%v, %v), want (0, true)", left, ok)
	}
	if _, ok, _ := b.TTL("missing"); ok {
		t.Error("missing key reported a TTL")
	}
}

func TestTiered_DegradedModeAndRecovery(t *testing.T) {
	persistent := &flakyStore{Memory: NewMemory(0)}
	c := NewTiered(NewMemory(0), persistent)

	if c.Degraded() {
		t.Fatal("fresh cache already degraded")
	}

	persistent.failing = true
	if err := c.Set("k", []byte("v"), 0); err == nil {
		t.Fatal("want error from failing persistent tier")
	}
	if !c.Degraded() {
		t.Fatal("cache not marked degraded after tier failure")
	}

	// Memory still serves while degraded.
	if val, ok, _ := c.Get("k"); !ok || string(val) != "v" {
		t.Error("memory tier stopped serving in degraded mode")
	}

	// First successful persistent operation clears the flag.
	persistent.failing = false
	if err := c.Set("k2", []byte("v2"), 0); err != nil {
		t.Fatal(err)
	}
	if c.Degraded() {
		t.Error("cache still degraded after recovery")
	}
}

func TestTiered_KeysMergesTiers(t *testing.T) {
	persistent := &flakyStore{Memory: NewMemory(0)}
	persistent.Set("p_only", nil, 0)
	persistent.Set("both", nil, 0)

	c := NewTiered(NewMemory(0), persistent)
	c.memory.Set("m_only", nil, 0)
	c.memory.Set("both", nil, 0)

	keys, err := c.Keys("")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	want := []string{"both", "m_only", "p_only"}
	if len(keys) != 3 || keys[0] != want[0] || keys[1] != want[1] || keys[2] != want[2] {
		t.Errorf("Keys = %v, want %v", keys, want)
	}
}

func TestTiered_KeysFallsBackToMemoryOnTierFailure(t *testing.T) {
	persistent := &flakyStore{Memory: NewMemory(0), failing: true}
	c := NewTiered(NewMemory(0), persistent)
	c.memory.Set("m1", nil, 0)

	keys, err := c.Keys("")
	if err == nil {
		t.Fatal("want tier error surfaced")
	}
	if len(keys) != 1 || keys[0] != "m1" {
		t.Errorf("Keys = %v, want memory keys despite tier failure", keys)
	}
	if !c.Degraded() {
		t.Error("failed Keys must mark the cache degraded")
	}
}
