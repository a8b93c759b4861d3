package channel

import (
	"context"
	"testing"
	"time"

	"surgeflow/models"
)

func TestSendRawNonBlocking(t *testing.T) {
	c := NewChannels(1, 1)
	ctx := context.Background()

	if !c.SendRaw(ctx, models.RawFrame{Venue: "binance"}) {
		t.Fatalf("first send should succeed")
	}
	// buffer full: second send must drop, not block
	if c.SendRaw(ctx, models.RawFrame{Venue: "binance"}) {
		t.Fatalf("second send should drop")
	}

	stats := c.GetStats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendEventBlocksUntilConsumed(t *testing.T) {
	c := NewChannels(1, 1)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.SendEvent(ctx, models.SessionEvent{Venue: "binance", State: models.SessionConnected})
		c.SendEvent(ctx, models.SessionEvent{Venue: "binance", State: models.SessionDisconnected})
	}()

	first := <-c.Events
	if first.State != models.SessionConnected {
		t.Fatalf("unexpected first event: %v", first.State)
	}
	second := <-c.Events
	if second.State != models.SessionDisconnected {
		t.Fatalf("unexpected second event: %v", second.State)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sender did not finish")
	}
}

func TestSendEventCancelledContext(t *testing.T) {
	c := NewChannels(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if c.SendEvent(ctx, models.SessionEvent{Venue: "binance"}) {
		t.Fatalf("send with cancelled context and no consumer should fail")
	}
}
