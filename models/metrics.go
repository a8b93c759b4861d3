package models

import (
	"time"
)

// DerivedMetrics is the per-instrument output of one metrics engine tick. It
// is recomputed wholly from the rolling windows every tick; there is no
// incremental merge with the previous record.
type DerivedMetrics struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`

	PriceChange1m  float64 `json:"price_change_1m"`
	PriceChange5m  float64 `json:"price_change_5m"`
	PriceChange15m float64 `json:"price_change_15m"`
	PriceChange1h  float64 `json:"price_change_1h"`

	PriceChangePct1m  float64 `json:"price_change_pct_1m"`
	PriceChangePct5m  float64 `json:"price_change_pct_5m"`
	PriceChangePct15m float64 `json:"price_change_pct_15m"`
	PriceChangePct1h  float64 `json:"price_change_pct_1h"`

	// PriceVelocity is the trailing 60s change in percent per minute,
	// normalized by the actual elapsed time between the oldest and newest
	// bucket so sparse feeds do not overstate it.
	PriceVelocity float64 `json:"price_velocity"`
	// PriceAcceleration is the current velocity minus the velocity over the
	// preceding 60s window.
	PriceAcceleration float64 `json:"price_acceleration"`

	CVD1m  float64 `json:"cvd_1m"`
	CVD5m  float64 `json:"cvd_5m"`
	CVD15m float64 `json:"cvd_15m"`
	CVD1h  float64 `json:"cvd_1h"`

	Volume1m  float64 `json:"volume_1m"`
	Volume5m  float64 `json:"volume_5m"`
	Volume15m float64 `json:"volume_15m"`
	Volume1h  float64 `json:"volume_1h"`

	VolumeSurge   float64 `json:"volume_surge"`
	TakerBuyRatio float64 `json:"taker_buy_ratio"`
	AvgSpreadPct  float64 `json:"avg_spread_pct"`

	ComputedAt time.Time `json:"computed_at"`
}
