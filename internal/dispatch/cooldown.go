package dispatch

import (
	"sync"
	"time"
)

// cooldownTracker remembers the last successful use of each (command, subject)
// pair. State is in-memory only; a restart clears cooldowns, which is
// acceptable for per-command pacing.
type cooldownTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func newCooldownTracker() *cooldownTracker {
	return &cooldownTracker{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

func cooldownKey(command, subjectID string) string {
	return command + "|" + subjectID
}

// Remaining returns how much of the cooldown is still left. Zero means the
// command may run.
func (t *cooldownTracker) Remaining(command, subjectID string, cooldown time.Duration) time.Duration {
	if cooldown <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[cooldownKey(command, subjectID)]
	if !ok {
		return 0
	}
	left := cooldown - t.now().Sub(last)
	if left < 0 {
		return 0
	}
	return left
}

// Touch marks the command as used now. Called only after the command actually
// ran, so a rejected invocation does not restart the clock.
func (t *cooldownTracker) Touch(command, subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[cooldownKey(command, subjectID)] = t.now()
}

// Prune drops entries older than maxAge. Called from maintenance.
func (t *cooldownTracker) Prune(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxAge)
	removed := 0
	for key, at := range t.last {
		if at.Before(cutoff) {
			delete(t.last, key)
			removed++
		}
	}
	return removed
}
