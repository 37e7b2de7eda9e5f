package channels

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/bus"
)

func TestBaseChannel_IsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		sender    string
		want      bool
	}{
		{"empty list admits everyone", nil, "anyone", true},
		{"listed sender", []string{"111", "222"}, "222", true},
		{"unlisted sender", []string{"111"}, "999", false},
		{"mention-style entry matches bare id", []string{"@111"}, "111", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseChannel("test", bus.NewMessageBus(), tt.allowList)
			if got := c.IsAllowed(tt.sender); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.sender, got, tt.want)
			}
		})
	}
}

func TestBaseChannel_CheckGroupPolicy(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(), []string{"111"})

	tests := []struct {
		name   string
		policy string
		sender string
		want   bool
	}{
		{"open admits anyone", GroupPolicyOpen, "999", true},
		{"unknown policy treated as open", "", "999", true},
		{"disabled rejects everyone", GroupPolicyDisabled, "111", false},
		{"allowlist admits listed", GroupPolicyAllowlist, "111", true},
		{"allowlist rejects unlisted", GroupPolicyAllowlist, "999", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.CheckGroupPolicy(tt.policy, tt.sender); got != tt.want {
				t.Errorf("CheckGroupPolicy(%q, %q) = %v, want %v", tt.policy, tt.sender, got, tt.want)
			}
		})
	}
}

func TestBaseChannel_PublishFiltersAndStamps(t *testing.T) {
	mb := bus.NewMessageBus()
	c := NewBaseChannel("whatsapp", mb, []string{"111"})

	c.Publish(bus.InboundMessage{SenderID: "111", RawContent: "hi"})
	c.Publish(bus.InboundMessage{SenderID: "999", RawContent: "blocked"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("allowed message not published")
	}
	if msg.Channel != "whatsapp" {
		t.Errorf("channel = %q, want stamped name", msg.Channel)
	}

	// The blocked message never arrives.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	if _, ok := mb.ConsumeInbound(shortCtx); ok {
		t.Error("disallowed sender's message published")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"this is a longer string", 7, "this is..."},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
