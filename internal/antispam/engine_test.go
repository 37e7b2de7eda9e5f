package antispam

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/cache"
)

const spamText = "FREE MONEY CLICK HERE NOW!!!!!!! http://a.xx http://b.xx http://c.xx http://d.xx"

func newTestEngine(t *testing.T, cfg Config, now *time.Time) *Engine {
	t.Helper()
	return New(cache.NewMemory(0), cfg,
		WithClock(func() time.Time { return *now }))
}

func TestCheck_CleanMessage(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, Config{}, &now)

	verdict := e.Check("user1", "hello, how is everyone doing?", SubjectContext{})
	if verdict.IsSpam {
		t.Fatalf("clean message flagged: %+v", verdict.Indicators)
	}
}

func TestCheck_WhitelistBypassesEverything(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, Config{Whitelist: []string{"vip"}}, &now)

	if verdict := e.Check("vip", spamText, SubjectContext{}); verdict.IsSpam {
		t.Fatal("whitelisted subject flagged")
	}
	if verdict := e.Check("pleb", spamText, SubjectContext{}); !verdict.IsSpam {
		t.Fatal("non-whitelisted subject not flagged")
	}
}

func TestCheck_AdminExemption(t *testing.T) {
	now := time.Now()
	adminCtx := SubjectContext{IsGroupChat: true, IsGroupAdmin: true}

	e := newTestEngine(t, Config{ExemptAdmins: true}, &now)
	if verdict := e.Check("admin", spamText, adminCtx); verdict.IsSpam {
		t.Fatal("exempt admin flagged")
	}

	// Exemption only applies in groups.
	e2 := newTestEngine(t, Config{ExemptAdmins: true}, &now)
	privateCtx := SubjectContext{IsGroupChat: false, IsGroupAdmin: true}
	if verdict := e2.Check("admin", spamText, privateCtx); !verdict.IsSpam {
		t.Fatal("admin flag must not exempt in private chats")
	}
}

func TestCheck_SeverityCapped(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, Config{}, &now)

	// Trip as many heuristics as possible at once.
	text := "FREE MONEY CLICK HERE!!!!!!! AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAyyyyyyyyyyyyyy " +
		"@1 @2 @3 @4 @5 @6 http://a.xx http://b.xx http://c.xx http://d.xx"
	verdict := e.Check("user1", text, SubjectContext{})
	if !verdict.IsSpam {
		t.Fatal("want spam verdict")
	}
	if verdict.Severity > 5 {
		t.Errorf("severity = %v, want capped at 5", verdict.Severity)
	}
	if len(verdict.Indicators) < 3 {
		t.Errorf("want several indicators, got %d", len(verdict.Indicators))
	}
}

func TestCheck_FrequencyHeuristic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{FrequencyMax: 3, FrequencyWindow: 10 * time.Second}, &now)

	// Distinct harmless texts so only frequency can trigger.
	texts := []string{"the weather is nice", "going to the market", "see you tomorrow"}
	for i, text := range texts {
		verdict := e.Check("user1", text, SubjectContext{})
		if verdict.IsSpam {
			t.Fatalf("message %d flagged early: %+v", i, verdict.Indicators)
		}
		now = now.Add(time.Second)
	}

	verdict := e.Check("user1", "now a fourth burst arrives", SubjectContext{})
	if !verdict.IsSpam {
		t.Fatal("fourth rapid message: want frequency flag")
	}
	if verdict.Indicators[0].Reason != ReasonFrequency {
		t.Errorf("reason = %s, want %s", verdict.Indicators[0].Reason, ReasonFrequency)
	}

	// After the window passes, the same pace is fine again.
	now = now.Add(time.Minute)
	if verdict := e.Check("user1", "fresh start message", SubjectContext{}); verdict.IsSpam {
		t.Fatalf("after idle period flagged: %+v", verdict.Indicators)
	}
}

func TestCheck_RepeatedContentAcrossMessages(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{FrequencyMax: 100}, &now)

	e.Check("user1", "join my channel for great deals", SubjectContext{})
	now = now.Add(30 * time.Second)

	verdict := e.Check("user1", "join my channel for great deals", SubjectContext{})
	if !verdict.IsSpam {
		t.Fatal("repeated message: want flagged")
	}
	found := false
	for _, ind := range verdict.Indicators {
		if ind.Reason == ReasonRepeatedContent {
			found = true
		}
	}
	if !found {
		t.Errorf("want %s indicator, got %+v", ReasonRepeatedContent, verdict.Indicators)
	}
}

func TestDetermineAction_Escalation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, Config{FrequencyMax: 100}, &now)

	// Early violations throttle, accumulated history warns, sustained abuse
	// bans. The action is decided from prior violations, so the escalation
	// lags the count by one.
	var actions []Action
	for i := 0; i < 6; i++ {
		verdict := e.Check("user1", "heyyyyyyyyyyyyyyyy", SubjectContext{})
		if !verdict.IsSpam {
			t.Fatalf("violation %d not flagged", i+1)
		}
		actions = append(actions, verdict.Action)
		now = now.Add(time.Minute)
	}

	want := []Action{ActionThrottle, ActionThrottle, ActionThrottle, ActionWarn, ActionWarn, ActionBan}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("violation %d action = %s, want %s (all: %v)", i+1, actions[i], want[i], actions)
		}
	}
}

func TestDetermineAction_ThrottleWaitScalesWithSeverity(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, Config{FrequencyMax: 100}, &now)

	verdict := e.Check("user1", "heyyyyyyyyyyyyyyyy", SubjectContext{})
	if verdict.Action != ActionThrottle {
		t.Fatalf("action = %s, want throttle", verdict.Action)
	}
	if verdict.WaitTime != 5*time.Second {
		t.Errorf("wait = %v, want 5s for severity 1", verdict.WaitTime)
	}
}
