package models

// Instrument describes one tradeable perpetual contract on one venue, as
// returned by the instrument-universe fetch.
type Instrument struct {
	Venue       string `json:"venue"`
	VenueSymbol string `json:"venue_symbol"`
	Symbol      string `json:"symbol"`
	BaseAsset   string `json:"base_asset"`
	QuoteAsset  string `json:"quote_asset"`
	IsActive    bool   `json:"is_active"`
}
