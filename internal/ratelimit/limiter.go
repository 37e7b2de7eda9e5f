// Package ratelimit bounds the number of actions a subject may perform per
// category within a sliding time window. All state lives in the shared cache;
// cache failures are treated as "allowed" (fail-open) so infrastructure
// trouble never blocks legitimate traffic.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/cache"
	"github.com/nextlevelbuilder/waclaw/internal/metrics"
)

const violationWindow = time.Hour

// Limit is a {max, window} pair for one category.
type Limit struct {
	Max    int
	Window time.Duration
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration // time until the oldest in-window entry expires
}

// TempBan is the persisted temporary-ban record.
type TempBan struct {
	SubjectID string        `json:"subject_id"`
	BannedAt  time.Time     `json:"banned_at"`
	Duration  time.Duration `json:"duration"`
	Reason    string        `json:"reason"`
}

// Expired reports whether the ban has run out.
func (b TempBan) Expired(now time.Time) bool {
	return now.Sub(b.BannedAt) >= b.Duration
}

// Remaining returns the time left on the ban.
func (b TempBan) Remaining(now time.Time) time.Duration {
	left := b.Duration - now.Sub(b.BannedAt)
	if left < 0 {
		return 0
	}
	return left
}

type violation struct {
	At       int64  `json:"at"` // unix milli
	Category string `json:"category"`
}

// Limiter is the sliding-window rate limiter.
type Limiter struct {
	store              cache.Store
	limits             map[string]Limit
	violationThreshold int
	tempBanDuration    time.Duration
	now                func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter with the given per-category limits.
func New(store cache.Store, limits map[string]Limit, violationThreshold int, tempBanDuration time.Duration, opts ...Option) *Limiter {
	if violationThreshold <= 0 {
		violationThreshold = 5
	}
	if tempBanDuration <= 0 {
		tempBanDuration = 10 * time.Minute
	}
	l := &Limiter{
		store:              store,
		limits:             limits,
		violationThreshold: violationThreshold,
		tempBanDuration:    tempBanDuration,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func windowKey(category, subjectID string) string {
	return fmt.Sprintf("ratelimit_%s_%s", category, subjectID)
}

func violationsKey(subjectID string) string {
	return "ratelimit_violations_" + subjectID
}

func tempBanKey(subjectID string) string {
	return "tempban_" + subjectID
}

// Check applies the sliding-window limit for (subject, category).
// An unknown category with no override fails open with a config warning.
func (l *Limiter) Check(subjectID, category string) Result {
	limit, ok := l.limits[category]
	if !ok {
		slog.Warn("rate limit check for unknown category", "category", category)
		return Result{Allowed: true, Remaining: 1}
	}
	return l.CheckWithLimit(subjectID, category, limit)
}

// CheckWithLimit applies an explicit {max, window} override.
func (l *Limiter) CheckWithLimit(subjectID, category string, limit Limit) Result {
	now := l.now()
	key := windowKey(category, subjectID)

	timestamps, err := l.loadTimestamps(key)
	if err != nil {
		slog.Warn("rate limiter cache read failed, allowing", "subject_id", subjectID, "category", category, "error", err)
		metrics.RateLimitChecks.WithLabelValues(category, "true").Inc()
		return Result{Allowed: true, Remaining: limit.Max}
	}

	// Drop entries outside the window.
	cutoff := now.Add(-limit.Window).UnixMilli()
	live := timestamps[:0]
	for _, ts := range timestamps {
		if ts > cutoff {
			live = append(live, ts)
		}
	}

	if len(live) >= limit.Max {
		oldest := time.UnixMilli(live[0])
		reset := oldest.Add(limit.Window).Sub(now)
		if reset < 0 {
			reset = 0
		}
		l.RecordViolation(subjectID, category)
		metrics.RateLimitChecks.WithLabelValues(category, "false").Inc()
		return Result{Allowed: false, Remaining: 0, ResetAfter: reset}
	}

	live = append(live, now.UnixMilli())
	if err := l.saveTimestamps(key, live, limit.Window); err != nil {
		slog.Warn("rate limiter cache write failed", "subject_id", subjectID, "category", category, "error", err)
	}

	metrics.RateLimitChecks.WithLabelValues(category, "true").Inc()
	return Result{Allowed: true, Remaining: limit.Max - len(live)}
}

// RecordViolation appends a violation for the subject. Accumulating
// violationThreshold violations within the trailing hour imposes a temp ban.
func (l *Limiter) RecordViolation(subjectID, category string) {
	now := l.now()
	key := violationsKey(subjectID)

	var violations []violation
	if raw, ok, err := l.store.Get(key); err == nil && ok {
		_ = json.Unmarshal(raw, &violations)
	}

	// Prune to the trailing hour on read.
	cutoff := now.Add(-violationWindow).UnixMilli()
	live := violations[:0]
	for _, v := range violations {
		if v.At > cutoff {
			live = append(live, v)
		}
	}
	live = append(live, violation{At: now.UnixMilli(), Category: category})

	if raw, err := json.Marshal(live); err == nil {
		if err := l.store.Set(key, raw, violationWindow); err != nil {
			slog.Warn("violation record write failed", "subject_id", subjectID, "error", err)
		}
	}

	if len(live) >= l.violationThreshold {
		l.imposeTempBan(subjectID, fmt.Sprintf("%d rate limit violations in the last hour", len(live)))
	}
}

// ViolationCount returns the subject's violations within the trailing hour.
func (l *Limiter) ViolationCount(subjectID string) int {
	raw, ok, err := l.store.Get(violationsKey(subjectID))
	if err != nil || !ok {
		return 0
	}
	var violations []violation
	if json.Unmarshal(raw, &violations) != nil {
		return 0
	}
	cutoff := l.now().Add(-violationWindow).UnixMilli()
	count := 0
	for _, v := range violations {
		if v.At > cutoff {
			count++
		}
	}
	return count
}

func (l *Limiter) imposeTempBan(subjectID, reason string) {
	ban := TempBan{
		SubjectID: subjectID,
		BannedAt:  l.now(),
		Duration:  l.tempBanDuration,
		Reason:    reason,
	}
	raw, err := json.Marshal(ban)
	if err != nil {
		return
	}
	if err := l.store.Set(tempBanKey(subjectID), raw, l.tempBanDuration); err != nil {
		slog.Warn("temp ban write failed", "subject_id", subjectID, "error", err)
		return
	}
	slog.Info("temporary ban imposed", "subject_id", subjectID, "duration", l.tempBanDuration, "reason", reason)
}

// IsTemporarilyBanned reports an active temp ban for the subject.
// An expired ban is cleared on read. Cache failures fail open.
func (l *Limiter) IsTemporarilyBanned(subjectID string) (bool, TempBan) {
	raw, ok, err := l.store.Get(tempBanKey(subjectID))
	if err != nil {
		slog.Warn("temp ban read failed, allowing", "subject_id", subjectID, "error", err)
		return false, TempBan{}
	}
	if !ok {
		return false, TempBan{}
	}

	var ban TempBan
	if err := json.Unmarshal(raw, &ban); err != nil {
		_ = l.store.Del(tempBanKey(subjectID))
		return false, TempBan{}
	}

	if ban.Expired(l.now()) {
		_ = l.store.Del(tempBanKey(subjectID))
		return false, TempBan{}
	}
	return true, ban
}

func (l *Limiter) loadTimestamps(key string) ([]int64, error) {
	raw, ok, err := l.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var timestamps []int64
	if err := json.Unmarshal(raw, &timestamps); err != nil {
		return nil, fmt.Errorf("decode window %s: %w", key, err)
	}
	return timestamps, nil
}

func (l *Limiter) saveTimestamps(key string, timestamps []int64, ttl time.Duration) error {
	raw, err := json.Marshal(timestamps)
	if err != nil {
		return err
	}
	return l.store.Set(key, raw, ttl)
}

// FormatReset renders a reset duration for user-facing messages.
func FormatReset(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs) + "s"
}
