package broadcast

import (
	"testing"

	"surgeflow/config"
	"surgeflow/models"
)

func testHub() *Hub {
	return NewHub(config.BroadcastConfig{
		Address:         ":0",
		FlushIntervalMs: 100,
		LivenessCheckMs: 30000,
	})
}

// addFakeClient registers a consumer without a live websocket so flush and
// probe behavior can be exercised directly.
func addFakeClient(h *Hub, channels ...string) *client {
	c := newClient(h, nil)
	c.subscribe(channels)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func drainMessages(c *client) []models.ServerMessage {
	var out []models.ServerMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestThrottlerCoalesces(t *testing.T) {
	th := NewThrottler()
	th.Enqueue("markets", "binance:BTC-USDT-PERP", 1)
	th.Enqueue("markets", "binance:BTC-USDT-PERP", 2)
	th.Enqueue("markets", "binance:ETH-USDT-PERP", 3)

	if th.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2 after coalescing", th.Pending())
	}
	drained := th.Drain()
	if v := drained["markets"]["binance:BTC-USDT-PERP"]; v != 2 {
		t.Errorf("coalesced value = %v, want the last write 2", v)
	}
	if th.Pending() != 0 {
		t.Errorf("Drain should empty the throttler, %d left", th.Pending())
	}
}

func TestFlushDeliversToSubscribersOnly(t *testing.T) {
	h := testHub()
	markets := addFakeClient(h, models.ChannelMarkets)
	other := addFakeClient(h, "leaderboard:gainers")

	h.PublishSnapshot(models.MarketSnapshot{
		Venue: "binance", Symbol: "BTC-USDT-PERP", LastPrice: 42000,
	})
	h.Flush()

	got := drainMessages(markets)
	if len(got) != 1 {
		t.Fatalf("subscriber got %d messages, want 1", len(got))
	}
	if got[0].Channel != models.ChannelMarkets || got[0].Event != models.EventUpdate {
		t.Errorf("unexpected message: %+v", got[0])
	}
	if len(drainMessages(other)) != 0 {
		t.Error("non-subscriber must not receive market updates")
	}
}

func TestFlushDerivesPerInstrumentChannels(t *testing.T) {
	h := testHub()
	single := addFakeClient(h, "markets:BTC-USDT-PERP")

	h.PublishSnapshot(models.MarketSnapshot{Venue: "binance", Symbol: "BTC-USDT-PERP"})
	h.PublishSnapshot(models.MarketSnapshot{Venue: "binance", Symbol: "ETH-USDT-PERP"})
	h.Flush()

	got := drainMessages(single)
	if len(got) != 1 {
		t.Fatalf("per-instrument subscriber got %d messages, want 1", len(got))
	}
	if got[0].Channel != "markets:BTC-USDT-PERP" {
		t.Errorf("channel = %s", got[0].Channel)
	}
}

func TestWildcardReceivesEverything(t *testing.T) {
	h := testHub()
	all := addFakeClient(h, models.ChannelWildcard)

	h.PublishSnapshot(models.MarketSnapshot{Venue: "binance", Symbol: "BTC-USDT-PERP"})
	h.PublishSignal(models.Signal{Type: "pumping", Entry: models.LeaderboardEntry{ID: "binance:BTC-USDT-PERP"}})
	h.Flush()

	got := drainMessages(all)
	// markets bulk + derived per-instrument + signals
	if len(got) != 3 {
		t.Fatalf("wildcard got %d messages, want 3", len(got))
	}
}

func TestLeaderboardChannelCarriesBoard(t *testing.T) {
	h := testHub()
	c := addFakeClient(h, "leaderboard:gainers")

	h.PublishLeaderboard(&models.Leaderboard{Name: "gainers", Total: 2})
	h.Flush()

	got := drainMessages(c)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	board, ok := got[0].Data.(*models.Leaderboard)
	if !ok {
		t.Fatalf("leaderboard channel should carry the board, got %T", got[0].Data)
	}
	if board.Name != "gainers" {
		t.Errorf("board name = %s", board.Name)
	}
}

func TestCoalescingAcrossFlush(t *testing.T) {
	h := testHub()
	c := addFakeClient(h, models.ChannelMarkets)

	h.PublishSnapshot(models.MarketSnapshot{Venue: "binance", Symbol: "BTC-USDT-PERP", LastPrice: 1})
	h.PublishSnapshot(models.MarketSnapshot{Venue: "binance", Symbol: "BTC-USDT-PERP", LastPrice: 2})
	h.Flush()

	got := drainMessages(c)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1 coalesced", len(got))
	}
	values, ok := got[0].Data.([]interface{})
	if !ok || len(values) != 1 {
		t.Fatalf("expected one coalesced snapshot, got %+v", got[0].Data)
	}
	snap := values[0].(models.MarketSnapshot)
	if snap.LastPrice != 2 {
		t.Errorf("LastPrice = %v, want the last write 2", snap.LastPrice)
	}
}

func TestMissedProbeDisconnects(t *testing.T) {
	h := testHub()
	c := addFakeClient(h, models.ChannelMarkets)

	if !c.markProbe() {
		t.Fatal("first probe should succeed")
	}
	// no ack arrives; the next probe cycle must evict the client
	h.probe()
	if h.ClientCount() != 0 {
		t.Fatalf("unresponsive client should be evicted, %d left", h.ClientCount())
	}

	// a fresh client that acks in time survives the bookkeeping
	c2 := addFakeClient(h, models.ChannelMarkets)
	if !c2.markProbe() {
		t.Fatal("probe on fresh client should succeed")
	}
	c2.ackProbe()
	if !c2.markProbe() {
		t.Error("acked client should accept the next probe")
	}
}

func TestClientHandleActions(t *testing.T) {
	h := testHub()
	c := addFakeClient(h)

	c.handle(models.ClientMessage{Action: "subscribe", Channels: []string{"markets", "signals"}})
	if !c.subscribedTo("markets") || !c.subscribedTo("signals") {
		t.Error("subscribe should register channels")
	}

	c.handle(models.ClientMessage{Action: "unsubscribe", Channels: []string{"signals"}})
	if c.subscribedTo("signals") {
		t.Error("unsubscribe should remove the channel")
	}

	c.handle(models.ClientMessage{Action: "ping"})
	c.handle(models.ClientMessage{Action: "bogus"})

	got := drainMessages(c)
	if len(got) != 4 {
		t.Fatalf("expected 4 acks, got %d", len(got))
	}
	for i, msg := range got {
		if msg.Channel != models.ChannelControl {
			t.Errorf("ack %d on channel %q, want %q", i, msg.Channel, models.ChannelControl)
		}
	}
	if got[2].Event != models.EventPong {
		t.Errorf("ping should ack with pong, got %s", got[2].Event)
	}
	if got[3].Event != models.EventError {
		t.Errorf("unknown action should ack with error, got %s", got[3].Event)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	h := testHub()
	c := addFakeClient(h, models.ChannelMarkets)

	for i := 0; i < clientSendBuffer; i++ {
		if !c.enqueue(models.ServerMessage{}) {
			t.Fatalf("enqueue %d should fit in the buffer", i)
		}
	}
	if c.enqueue(models.ServerMessage{}) {
		t.Error("overfull buffer should drop, not block")
	}
}
