package analytics

import (
	"math"
	"testing"
	"time"

	"surgeflow/config"
	"surgeflow/internal/window"
	"surgeflow/models"
)

func testStore() *window.Store {
	cfg := config.WindowConfig{BucketSizeMs: 1000, BucketCount: 3600}
	return window.NewStore(cfg, cfg)
}

func snapAt(price float64, ts time.Time) *models.MarketSnapshot {
	return &models.MarketSnapshot{
		Venue:     "binance",
		Symbol:    "BTC-USDT-PERP",
		LastPrice: price,
		UpdatedAt: ts,
	}
}

func TestPriceChangeAndVelocity(t *testing.T) {
	store := testStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 100 -> 101 -> 102 over 20 seconds
	store.ApplySnapshot(snapAt(100, base))
	store.ApplySnapshot(snapAt(101, base.Add(10*time.Second)))
	store.ApplySnapshot(snapAt(102, base.Add(20*time.Second)))

	engine := New(store)
	engine.Tick(base.Add(20 * time.Second))

	st := store.Get("binance:BTC-USDT-PERP")
	if st.Metrics == nil {
		t.Fatal("expected a metrics record")
	}
	m := st.Metrics

	if m.PriceChange1m != 2 {
		t.Errorf("PriceChange1m = %v, want 2", m.PriceChange1m)
	}
	if math.Abs(m.PriceChangePct1m-2.0) > 1e-9 {
		t.Errorf("PriceChangePct1m = %v, want 2.0", m.PriceChangePct1m)
	}
	// +2% over 20s of actual elapsed time -> 6 %/min
	if math.Abs(m.PriceVelocity-6.0) > 1e-9 {
		t.Errorf("PriceVelocity = %v, want 6.0", m.PriceVelocity)
	}
	if m.PriceVelocity <= 0 {
		t.Error("rising price must yield positive velocity")
	}
}

func TestAccelerationDiffsTwoWindows(t *testing.T) {
	store := testStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// flat for the first minute, rising in the second
	store.ApplySnapshot(snapAt(100, base))
	store.ApplySnapshot(snapAt(100, base.Add(50*time.Second)))
	store.ApplySnapshot(snapAt(100, base.Add(65*time.Second)))
	store.ApplySnapshot(snapAt(103, base.Add(115*time.Second)))

	engine := New(store)
	engine.Tick(base.Add(115 * time.Second))

	m := store.Get("binance:BTC-USDT-PERP").Metrics
	if m.PriceVelocity <= 0 {
		t.Fatalf("PriceVelocity = %v, want > 0", m.PriceVelocity)
	}
	// prior window was flat, so acceleration equals current velocity
	if math.Abs(m.PriceAcceleration-m.PriceVelocity) > 1e-9 {
		t.Errorf("PriceAcceleration = %v, want %v", m.PriceAcceleration, m.PriceVelocity)
	}
}

func TestSingleBucketYieldsZeroChange(t *testing.T) {
	store := testStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.ApplySnapshot(snapAt(100, base))

	engine := New(store)
	engine.Tick(base)

	m := store.Get("binance:BTC-USDT-PERP").Metrics
	if m.PriceChangePct1m != 0 || m.PriceVelocity != 0 || m.PriceAcceleration != 0 {
		t.Errorf("single bucket should yield zeros, got %+v", m)
	}
}

func TestCVDAndTakerRatio(t *testing.T) {
	store := testStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.ApplySnapshot(snapAt(100, base))

	trade := func(qty float64, buy bool, offset time.Duration) {
		store.ApplyTrade(&models.Trade{
			Venue: "binance", Symbol: "BTC-USDT-PERP",
			Price: 100, Quantity: qty, IsBuy: buy,
			Timestamp: base.Add(offset),
		})
	}
	trade(3, true, 1*time.Second)
	trade(1, false, 2*time.Second)
	trade(2, true, 3*time.Second)

	engine := New(store)
	engine.Tick(base.Add(5 * time.Second))

	m := store.Get("binance:BTC-USDT-PERP").Metrics
	if m.CVD1m != 4 {
		t.Errorf("CVD1m = %v, want 4", m.CVD1m)
	}
	if m.Volume1m != 6 {
		t.Errorf("Volume1m = %v, want 6", m.Volume1m)
	}
	if math.Abs(m.TakerBuyRatio-5.0/6.0) > 1e-9 {
		t.Errorf("TakerBuyRatio = %v, want %v", m.TakerBuyRatio, 5.0/6.0)
	}
}

func TestTakerRatioNeutralWithoutVolume(t *testing.T) {
	store := testStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.ApplySnapshot(snapAt(100, base))

	engine := New(store)
	engine.Tick(base)

	m := store.Get("binance:BTC-USDT-PERP").Metrics
	if m.TakerBuyRatio != 0.5 {
		t.Errorf("TakerBuyRatio = %v, want 0.5", m.TakerBuyRatio)
	}
	if m.VolumeSurge != 1.0 {
		t.Errorf("VolumeSurge = %v, want neutral 1.0", m.VolumeSurge)
	}
}

func TestVolumeSurgeDetectsBurst(t *testing.T) {
	store := testStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.ApplySnapshot(snapAt(100, base))

	// 30 quiet 1-unit buckets then 5 busy 10-unit buckets
	for i := 0; i < 30; i++ {
		store.ApplyTrade(&models.Trade{
			Venue: "binance", Symbol: "BTC-USDT-PERP",
			Price: 100, Quantity: 1, IsBuy: true,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	for i := 30; i < 35; i++ {
		store.ApplyTrade(&models.Trade{
			Venue: "binance", Symbol: "BTC-USDT-PERP",
			Price: 100, Quantity: 10, IsBuy: true,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	engine := New(store)
	engine.Tick(base.Add(35 * time.Second))

	m := store.Get("binance:BTC-USDT-PERP").Metrics
	if m.VolumeSurge <= 1.5 {
		t.Errorf("VolumeSurge = %v, want a burst well above 1.5", m.VolumeSurge)
	}
}

func TestFailureKeepsPriorRecord(t *testing.T) {
	store := testStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.ApplySnapshot(snapAt(100, base))

	engine := New(store)
	engine.Tick(base)

	st := store.Get("binance:BTC-USDT-PERP")
	prior := st.Metrics
	if prior == nil {
		t.Fatal("expected an initial record")
	}

	// a nil price window makes computeOne panic; the record must survive
	st.Price = nil
	engine.Tick(base.Add(time.Second))
	if st.Metrics != prior {
		t.Error("failed instrument should keep its prior record")
	}
}
