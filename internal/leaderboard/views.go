package leaderboard

import (
	"math"

	"surgeflow/models"
)

// View names are the public identifiers used in the broadcast channel names
// and the health endpoints.
const (
	ViewGainers        = "gainers"
	ViewLosers         = "losers"
	ViewMomentumUp     = "momentum_up"
	ViewMomentumDown   = "momentum_down"
	ViewVolume         = "volume"
	ViewVolumeSurge    = "volume_surge"
	ViewActivity       = "activity"
	ViewFundingHigh    = "funding_high"
	ViewFundingLow     = "funding_low"
	ViewFundingExtreme = "funding_extreme"
	ViewOpenInterest   = "open_interest"
	ViewSpreadTight    = "spread_tight"
	ViewSpreadWide     = "spread_wide"
	ViewVolatilityUp   = "volatility_up"
	ViewVolatilityDown = "volatility_down"
	ViewPumping        = "pumping"
	ViewDumping        = "dumping"
)

// Instrument is the engine's read view of one tracked instrument: the latest
// snapshot plus the latest derived metrics, which may still be nil.
type Instrument struct {
	Snapshot *models.MarketSnapshot
	Metrics  *models.DerivedMetrics
}

// View defines one leaderboard: which instruments qualify, what value they
// are ranked by and in which direction. NeedsMetrics views silently skip
// instruments without a metrics record.
type View struct {
	Name         string
	NeedsMetrics bool
	// Filter may be nil, meaning every candidate qualifies.
	Filter func(in Instrument) bool
	// Score produces the ranked value.
	Score func(in Instrument) float64
	// Descending ranks the highest score first when true.
	Descending bool
	// Metadata optionally attaches extra values to each entry.
	Metadata func(in Instrument) map[string]float64
}

// defaultViews is the built-in view registry.
func defaultViews() []View {
	return []View{
		{
			Name: ViewGainers, NeedsMetrics: true, Descending: true,
			Score: func(in Instrument) float64 { return in.Metrics.PriceChangePct5m },
		},
		{
			Name: ViewLosers, NeedsMetrics: true, Descending: false,
			Score: func(in Instrument) float64 { return in.Metrics.PriceChangePct5m },
		},
		{
			Name: ViewMomentumUp, NeedsMetrics: true, Descending: true,
			Score: func(in Instrument) float64 { return in.Metrics.PriceVelocity },
		},
		{
			Name: ViewMomentumDown, NeedsMetrics: true, Descending: false,
			Score: func(in Instrument) float64 { return in.Metrics.PriceVelocity },
		},
		{
			Name: ViewVolume, Descending: true,
			Score: func(in Instrument) float64 { return in.Snapshot.QuoteVolume24h },
		},
		{
			Name: ViewVolumeSurge, NeedsMetrics: true, Descending: true,
			Score: func(in Instrument) float64 { return in.Metrics.VolumeSurge },
		},
		{
			Name: ViewActivity, NeedsMetrics: true, Descending: true,
			Score: func(in Instrument) float64 {
				return in.Metrics.Volume5m * math.Abs(in.Metrics.PriceChangePct5m)
			},
		},
		{
			Name: ViewFundingHigh, Descending: true,
			Filter: func(in Instrument) bool { return in.Snapshot.HasFunding },
			Score:  func(in Instrument) float64 { return in.Snapshot.AnnualizedFunding },
		},
		{
			Name: ViewFundingLow, Descending: false,
			Filter: func(in Instrument) bool { return in.Snapshot.HasFunding },
			Score:  func(in Instrument) float64 { return in.Snapshot.AnnualizedFunding },
		},
		{
			Name: ViewFundingExtreme, Descending: true,
			Filter: func(in Instrument) bool { return in.Snapshot.HasFunding },
			Score:  func(in Instrument) float64 { return math.Abs(in.Snapshot.AnnualizedFunding) },
			Metadata: func(in Instrument) map[string]float64 {
				return map[string]float64{"annualized_funding": in.Snapshot.AnnualizedFunding}
			},
		},
		{
			Name: ViewOpenInterest, Descending: true,
			Filter: func(in Instrument) bool { return in.Snapshot.OpenInterest > 0 },
			Score:  func(in Instrument) float64 { return in.Snapshot.OpenInterest },
		},
		{
			Name: ViewSpreadTight, NeedsMetrics: true, Descending: false,
			Filter: func(in Instrument) bool {
				return in.Snapshot.HasBookTicker && in.Metrics.AvgSpreadPct > 0
			},
			Score: func(in Instrument) float64 { return in.Metrics.AvgSpreadPct },
		},
		{
			Name: ViewSpreadWide, NeedsMetrics: true, Descending: true,
			Filter: func(in Instrument) bool {
				return in.Snapshot.HasBookTicker && in.Metrics.AvgSpreadPct > 0
			},
			Score: func(in Instrument) float64 { return in.Metrics.AvgSpreadPct },
		},
		{
			Name: ViewVolatilityUp, NeedsMetrics: true, Descending: true,
			Score: func(in Instrument) float64 { return math.Abs(in.Metrics.PriceVelocity) },
		},
		{
			Name: ViewVolatilityDown, NeedsMetrics: true, Descending: false,
			Score: func(in Instrument) float64 { return math.Abs(in.Metrics.PriceVelocity) },
		},
		{
			Name: ViewPumping, NeedsMetrics: true, Descending: true,
			Filter: func(in Instrument) bool {
				m := in.Metrics
				return m.PriceChangePct5m > 0 && m.VolumeSurge > 1.5 && m.CVD5m > 0
			},
			Score: func(in Instrument) float64 {
				return in.Metrics.PriceChangePct5m * in.Metrics.VolumeSurge
			},
			Metadata: func(in Instrument) map[string]float64 {
				return map[string]float64{
					"price_change_pct_5m": in.Metrics.PriceChangePct5m,
					"volume_surge":        in.Metrics.VolumeSurge,
					"cvd_5m":              in.Metrics.CVD5m,
				}
			},
		},
		{
			Name: ViewDumping, NeedsMetrics: true, Descending: true,
			Filter: func(in Instrument) bool {
				m := in.Metrics
				return m.PriceChangePct5m < 0 && m.VolumeSurge > 1.5 && m.CVD5m < 0
			},
			Score: func(in Instrument) float64 {
				return math.Abs(in.Metrics.PriceChangePct5m) * in.Metrics.VolumeSurge
			},
			Metadata: func(in Instrument) map[string]float64 {
				return map[string]float64{
					"price_change_pct_5m": in.Metrics.PriceChangePct5m,
					"volume_surge":        in.Metrics.VolumeSurge,
					"cvd_5m":              in.Metrics.CVD5m,
				}
			},
		},
	}
}
