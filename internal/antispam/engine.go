// Package antispam classifies inbound messages with independent heuristics,
// scores severity, and recommends an enforcement action. Detection has no
// side effect beyond recording violation history; enforcement is a separate
// step the caller drives. Cache failures are treated as "not spam" (fail-open).
package antispam

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/cache"
	"github.com/nextlevelbuilder/waclaw/internal/metrics"
)

// Action is the recommended enforcement step.
type Action string

const (
	ActionThrottle Action = "throttle"
	ActionWarn     Action = "warn"
	ActionBan      Action = "ban"
)

const (
	maxSeverity      = 5.0
	historyWindow    = 5 * time.Minute
	violationWindow  = time.Hour
	maxThrottleWait  = 30 * time.Second
	throttlePerPoint = 5 * time.Second
	recentCompareN   = 10
)

// Verdict is the outcome of a spam check.
type Verdict struct {
	IsSpam     bool
	Severity   float64
	Indicators []Indicator
	Action     Action
	WaitTime   time.Duration // only for ActionThrottle
}

// SubjectContext carries the caller-resolved facts the exemption and
// enforcement logic needs.
type SubjectContext struct {
	ChatID       string
	IsGroupChat  bool
	IsGroupAdmin bool
}

// Config tunes the engine.
type Config struct {
	Whitelist       []string
	ExemptAdmins    bool
	FrequencyMax    int           // messages per window before flagging (default 5)
	FrequencyWindow time.Duration // default 10s
}

type historyEntry struct {
	At   int64  `json:"at"` // unix milli
	Text string `json:"text"`
}

type violationRecord struct {
	At       int64    `json:"at"`
	Reasons  []string `json:"reasons"`
	Severity float64  `json:"severity"`
}

// Engine is the spam scoring engine.
type Engine struct {
	store     cache.Store
	cfg       Config
	whitelist map[string]bool
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(store cache.Store, cfg Config, opts ...Option) *Engine {
	if cfg.FrequencyMax <= 0 {
		cfg.FrequencyMax = 5
	}
	if cfg.FrequencyWindow <= 0 {
		cfg.FrequencyWindow = 10 * time.Second
	}
	wl := make(map[string]bool, len(cfg.Whitelist))
	for _, id := range cfg.Whitelist {
		wl[id] = true
	}
	e := &Engine{store: store, cfg: cfg, whitelist: wl, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func historyKey(subjectID string) string    { return "spam_history_" + subjectID }
func violationsKey(subjectID string) string { return "spam_violations_" + subjectID }

// Check classifies a message. Whitelisted subjects and (when configured)
// group admins bypass all heuristics.
func (e *Engine) Check(subjectID, text string, sctx SubjectContext) Verdict {
	if e.whitelist[subjectID] {
		return Verdict{}
	}
	if e.cfg.ExemptAdmins && sctx.IsGroupChat && sctx.IsGroupAdmin {
		return Verdict{}
	}

	now := e.now()
	history := e.loadHistory(subjectID, now)

	var indicators []Indicator

	// Message frequency: count of recent messages including this one.
	cutoff := now.Add(-e.cfg.FrequencyWindow).UnixMilli()
	recentCount := 1
	for _, h := range history {
		if h.At > cutoff {
			recentCount++
		}
	}
	if recentCount > e.cfg.FrequencyMax {
		indicators = append(indicators, Indicator{Reason: ReasonFrequency, Severity: 1})
	}

	// Repeated content vs the subject's recent messages.
	recentTexts := make([]string, 0, recentCompareN)
	for i := len(history) - 1; i >= 0 && len(recentTexts) < recentCompareN; i-- {
		recentTexts = append(recentTexts, history[i].Text)
	}
	if ind, ok := checkRepeatedContent(text, recentTexts); ok {
		indicators = append(indicators, ind)
	}

	for _, check := range []func(string) (Indicator, bool){
		checkExcessiveCaps,
		checkRepeatedChars,
		checkMentionSpam,
		checkURLSpam,
		checkSuspiciousPatterns,
	} {
		if ind, ok := check(text); ok {
			indicators = append(indicators, ind)
		}
	}

	// Record this message for future frequency/similarity checks regardless
	// of the verdict.
	e.appendHistory(subjectID, history, historyEntry{At: now.UnixMilli(), Text: text})

	if len(indicators) == 0 {
		return Verdict{}
	}

	severity := 0.0
	for _, ind := range indicators {
		severity += ind.Severity
	}
	if severity > maxSeverity {
		severity = maxSeverity
	}

	verdict := Verdict{
		IsSpam:     true,
		Severity:   severity,
		Indicators: indicators,
	}
	verdict.Action, verdict.WaitTime = e.determineAction(subjectID, severity, now)

	e.recordViolation(subjectID, indicators, severity, now)
	metrics.SpamDetections.WithLabelValues(string(verdict.Action)).Inc()

	slog.Info("spam detected",
		"subject_id", subjectID,
		"severity", severity,
		"action", verdict.Action,
		"indicators", reasons(indicators),
	)
	return verdict
}

// determineAction escalates based on trailing-hour violation history:
// count >=5 or avg severity >3 => ban; count >=3 or current severity >2 =>
// warn; otherwise throttle with wait = min(severity*5s, 30s).
func (e *Engine) determineAction(subjectID string, severity float64, now time.Time) (Action, time.Duration) {
	count, avg := e.violationStats(subjectID, now)

	switch {
	case count >= 5 || avg > 3:
		return ActionBan, 0
	case count >= 3 || severity > 2:
		return ActionWarn, 0
	default:
		wait := time.Duration(severity * float64(throttlePerPoint))
		if wait > maxThrottleWait {
			wait = maxThrottleWait
		}
		return ActionThrottle, wait
	}
}

// violationStats returns count and average severity of active violations
// (trailing hour, pruned on read).
func (e *Engine) violationStats(subjectID string, now time.Time) (int, float64) {
	raw, ok, err := e.store.Get(violationsKey(subjectID))
	if err != nil {
		slog.Warn("spam violation read failed, treating as clean", "subject_id", subjectID, "error", err)
		return 0, 0
	}
	if !ok {
		return 0, 0
	}

	var records []violationRecord
	if json.Unmarshal(raw, &records) != nil {
		return 0, 0
	}

	cutoff := now.Add(-violationWindow).UnixMilli()
	count, total := 0, 0.0
	for _, r := range records {
		if r.At > cutoff {
			count++
			total += r.Severity
		}
	}
	if count == 0 {
		return 0, 0
	}
	return count, total / float64(count)
}

func (e *Engine) recordViolation(subjectID string, indicators []Indicator, severity float64, now time.Time) {
	key := violationsKey(subjectID)

	var records []violationRecord
	if raw, ok, err := e.store.Get(key); err == nil && ok {
		_ = json.Unmarshal(raw, &records)
	}

	cutoff := now.Add(-violationWindow).UnixMilli()
	live := records[:0]
	for _, r := range records {
		if r.At > cutoff {
			live = append(live, r)
		}
	}
	live = append(live, violationRecord{
		At:       now.UnixMilli(),
		Reasons:  reasons(indicators),
		Severity: severity,
	})

	if raw, err := json.Marshal(live); err == nil {
		if err := e.store.Set(key, raw, violationWindow); err != nil {
			slog.Warn("spam violation write failed", "subject_id", subjectID, "error", err)
		}
	}
}

func (e *Engine) loadHistory(subjectID string, now time.Time) []historyEntry {
	raw, ok, err := e.store.Get(historyKey(subjectID))
	if err != nil {
		slog.Warn("spam history read failed, treating as empty", "subject_id", subjectID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var history []historyEntry
	if json.Unmarshal(raw, &history) != nil {
		return nil
	}

	cutoff := now.Add(-historyWindow).UnixMilli()
	live := history[:0]
	for _, h := range history {
		if h.At > cutoff {
			live = append(live, h)
		}
	}
	return live
}

func (e *Engine) appendHistory(subjectID string, history []historyEntry, entry historyEntry) {
	history = append(history, entry)
	raw, err := json.Marshal(history)
	if err != nil {
		return
	}
	if err := e.store.Set(historyKey(subjectID), raw, historyWindow); err != nil {
		slog.Warn("spam history write failed", "subject_id", subjectID, "error", err)
	}
}

func reasons(indicators []Indicator) []string {
	out := make([]string, len(indicators))
	for i, ind := range indicators {
		out[i] = ind.Reason
	}
	return out
}
