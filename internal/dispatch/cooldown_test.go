package dispatch

import (
	"testing"
	"time"
)

func newTestTracker(now *time.Time) *cooldownTracker {
	t := newCooldownTracker()
	t.now = func() time.Time { return *now }
	return t
}

func TestCooldown_RemainingAndExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(&now)

	// Untouched pair has no cooldown.
	if left := tracker.Remaining("ping", "u1", 10*time.Second); left != 0 {
		t.Fatalf("remaining before touch = %v, want 0", left)
	}

	tracker.Touch("ping", "u1")

	now = now.Add(4 * time.Second)
	if left := tracker.Remaining("ping", "u1", 10*time.Second); left != 6*time.Second {
		t.Errorf("remaining = %v, want 6s", left)
	}

	// Other commands and subjects are independent.
	if left := tracker.Remaining("help", "u1", 10*time.Second); left != 0 {
		t.Error("cooldown leaked across commands")
	}
	if left := tracker.Remaining("ping", "u2", 10*time.Second); left != 0 {
		t.Error("cooldown leaked across subjects")
	}

	now = now.Add(7 * time.Second)
	if left := tracker.Remaining("ping", "u1", 10*time.Second); left != 0 {
		t.Errorf("remaining after expiry = %v, want 0", left)
	}
}

func TestCooldown_ZeroCooldownAlwaysAllows(t *testing.T) {
	now := time.Now()
	tracker := newTestTracker(&now)

	tracker.Touch("ping", "u1")
	if left := tracker.Remaining("ping", "u1", 0); left != 0 {
		t.Errorf("remaining with zero cooldown = %v", left)
	}
}

func TestCooldown_Prune(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(&now)

	tracker.Touch("old", "u1")
	now = now.Add(25 * time.Hour)
	tracker.Touch("fresh", "u1")

	if removed := tracker.Prune(24 * time.Hour); removed != 1 {
		t.Fatalf("pruned = %d, want 1", removed)
	}
	// The fresh entry still enforces its cooldown.
	if left := tracker.Remaining("fresh", "u1", time.Minute); left != time.Minute {
		t.Errorf("remaining = %v, want full minute", left)
	}
}
