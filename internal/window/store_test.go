package window

import (
	"fmt"
	"testing"
	"time"

	"surgeflow/config"
	"surgeflow/models"
)

func newTestStore() *Store {
	cfg := config.WindowConfig{BucketSizeMs: 1000, BucketCount: 60}
	return NewStore(cfg, cfg)
}

func TestEnsureCreatesOnce(t *testing.T) {
	s := newTestStore()

	a := s.Ensure("binance", "BTC-USDT-PERP")
	b := s.Ensure("binance", "BTC-USDT-PERP")
	if a != b {
		t.Fatal("Ensure should return the same state for the same key")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestApplySnapshotFeedsWindows(t *testing.T) {
	s := newTestStore()
	now := time.Now().UTC()

	st := s.ApplySnapshot(&models.MarketSnapshot{
		Venue: "binance", Symbol: "BTC-USDT-PERP",
		LastPrice: 42000, SpreadPct: 0.05, UpdatedAt: now,
	})

	if got := st.Price.Aggregate(1).Close; got != 42000 {
		t.Errorf("price window close = %v, want 42000", got)
	}
	if got := st.Spread.Aggregate(1).Close; got != 0.05 {
		t.Errorf("spread window close = %v, want 0.05", got)
	}
}

func TestIterationOrderIsFirstSeen(t *testing.T) {
	s := newTestStore()
	now := time.Now().UTC()

	want := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		sym := fmt.Sprintf("SYM%02d-USDT-PERP", i)
		want = append(want, sym)
		s.ApplySnapshot(&models.MarketSnapshot{
			Venue: "binance", Symbol: sym, LastPrice: 100, UpdatedAt: now,
		})
	}

	// two consecutive reads must both come back in insertion order;
	// downstream tie-breaks depend on it
	for pass := 0; pass < 2; pass++ {
		snaps := s.Snapshots()
		if len(snaps) != len(want) {
			t.Fatalf("pass %d: got %d snapshots, want %d", pass, len(snaps), len(want))
		}
		for i, snap := range snaps {
			if snap.Symbol != want[i] {
				t.Fatalf("pass %d: position %d holds %s, want %s", pass, i, snap.Symbol, want[i])
			}
		}

		got := make([]string, 0, len(want))
		s.ForEach(func(st *InstrumentState) { got = append(got, st.Symbol) })
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("pass %d: ForEach position %d visited %s, want %s", pass, i, got[i], want[i])
			}
		}
	}
}
