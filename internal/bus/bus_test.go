package bus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	b := NewMessageBus()

	b.PublishInbound(InboundMessage{ID: "m1", ChatID: "c1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok || msg.ID != "m1" {
		t.Fatalf("ConsumeInbound = (%+v, %v)", msg, ok)
	}
}

func TestPublishConsumeOutbound(t *testing.T) {
	b := NewMessageBus()

	b.PublishOutbound(OutboundMessage{ChatID: "c1", Text: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeOutbound(ctx)
	if !ok || msg.Text != "hello" {
		t.Fatalf("ConsumeOutbound = (%+v, %v)", msg, ok)
	}
}

func TestConsume_CancelledContext(t *testing.T) {
	b := NewMessageBus()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("ConsumeInbound returned ok on cancelled context")
	}
	if _, ok := b.ConsumeOutbound(ctx); ok {
		t.Error("ConsumeOutbound returned ok on cancelled context")
	}
}

func TestPublish_FullLaneDropsInsteadOfBlocking(t *testing.T) {
	b := NewMessageBus()

	// Overfill the buffered lane; the publisher must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize+10; i++ {
			b.PublishInbound(InboundMessage{ID: fmt.Sprintf("m%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full lane")
	}

	// The buffered messages are still all consumable.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < defaultBufferSize; i++ {
		if _, ok := b.ConsumeInbound(ctx); !ok {
			t.Fatalf("buffered message %d missing", i)
		}
	}
}
