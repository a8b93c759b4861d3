package models

import (
	"time"
)

// VenueQuote is one venue's contribution to an aggregated market.
type VenueQuote struct {
	Venue             string  `json:"venue"`
	LastPrice         float64 `json:"last_price"`
	BestBid           float64 `json:"best_bid"`
	BestAsk           float64 `json:"best_ask"`
	QuoteVolume24h    float64 `json:"quote_volume_24h"`
	OpenInterest      float64 `json:"open_interest"`
	AnnualizedFunding float64 `json:"annualized_funding"`
	HasFunding        bool    `json:"has_funding"`
}

// ArbitrageOpportunity is reported when the best bid on one venue crosses the
// best ask on another.
type ArbitrageOpportunity struct {
	BuyVenue  string  `json:"buy_venue"`
	SellVenue string  `json:"sell_venue"`
	ProfitPct float64 `json:"profit_pct"`
}

// AggregatedMarket is the cross-venue summary for one canonical symbol.
// Symbols seen on fewer than two venues are not aggregated.
type AggregatedMarket struct {
	Symbol string       `json:"symbol"`
	Venues []VenueQuote `json:"venues"`

	BestBid      float64 `json:"best_bid"`
	BestBidVenue string  `json:"best_bid_venue"`
	BestAsk      float64 `json:"best_ask"`
	BestAskVenue string  `json:"best_ask_venue"`

	AvgPrice    float64 `json:"avg_price"`
	VWAP        float64 `json:"vwap"`
	PriceSpread float64 `json:"price_spread"`

	TotalVolume24h    float64 `json:"total_volume_24h"`
	TotalOpenInterest float64 `json:"total_open_interest"`

	AvgAnnualizedFunding float64 `json:"avg_annualized_funding"`
	FundingSpread        float64 `json:"funding_spread"`

	Arbitrage *ArbitrageOpportunity `json:"arbitrage,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}
