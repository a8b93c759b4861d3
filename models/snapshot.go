package models

import (
	"time"
)

// MarketSnapshot is the canonical per-(venue, instrument) record produced by
// the normalizer. It is replaced wholesale on every update; nothing merges
// into an existing snapshot in place.
type MarketSnapshot struct {
	Venue       string `json:"venue"`
	VenueSymbol string `json:"venue_symbol"`
	Symbol      string `json:"symbol"`
	BaseAsset   string `json:"base_asset"`
	QuoteAsset  string `json:"quote_asset"`

	BestBid     float64 `json:"best_bid"`
	BestBidSize float64 `json:"best_bid_size"`
	BestAsk     float64 `json:"best_ask"`
	BestAskSize float64 `json:"best_ask_size"`

	LastPrice  float64 `json:"last_price"`
	MarkPrice  float64 `json:"mark_price"`
	IndexPrice float64 `json:"index_price"`
	MidPrice   float64 `json:"mid_price"`
	Spread     float64 `json:"spread"`
	SpreadPct  float64 `json:"spread_pct"`

	FundingRate       float64   `json:"funding_rate"`
	AnnualizedFunding float64   `json:"annualized_funding"`
	NextFundingTime   time.Time `json:"next_funding_time"`
	TimeToFundingMs   int64     `json:"time_to_funding_ms"`

	Volume24h         float64 `json:"volume_24h"`
	QuoteVolume24h    float64 `json:"quote_volume_24h"`
	OpenInterest      float64 `json:"open_interest"`
	High24h           float64 `json:"high_24h"`
	Low24h            float64 `json:"low_24h"`
	PriceChangePct24h float64 `json:"price_change_pct_24h"`

	UpdatedAt time.Time `json:"updated_at"`

	// capability flags: which fragment kinds this venue has delivered
	HasBookTicker bool `json:"has_book_ticker"`
	HasMarkPrice  bool `json:"has_mark_price"`
	HasFunding    bool `json:"has_funding"`
}

// Key returns the identity of the snapshot inside the market store.
func (s *MarketSnapshot) Key() string {
	return s.Venue + ":" + s.Symbol
}

// Age reports how long ago the snapshot was last updated.
func (s *MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}

// IsFresh reports whether the snapshot is younger than maxAge. Consumers use
// this instead of per-message error signalling when a venue goes stale.
func (s *MarketSnapshot) IsFresh(now time.Time, maxAge time.Duration) bool {
	return s.Age(now) <= maxAge
}
