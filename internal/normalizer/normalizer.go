// Package normalizer turns validated raw frames into canonical market
// snapshots. Venues deliver an instrument's state as partial fragments on
// several topics, so the normalizer keeps a per-instrument fragment cache and
// rebuilds the full snapshot on every accepted frame.
package normalizer

import (
	"fmt"
	"strconv"
	"time"

	"surgeflow/internal/symbols"
	"surgeflow/logger"
	"surgeflow/models"
)

// fundingPeriodsPerYear converts a per-interval funding rate to an annualized
// percentage given the interval length in hours.
func fundingPeriodsPerYear(intervalHours float64) float64 {
	if intervalHours <= 0 {
		intervalHours = 8
	}
	return 365 * 24 / intervalHours
}

// fragments is the merged field state of one instrument. Later frames
// overwrite only the fields they carry, so a bybit delta with a lone
// lastPrice does not erase the funding fields from an earlier snapshot.
type fragments struct {
	fields        map[string]string
	hasBookTicker bool
	hasMarkPrice  bool
	hasFunding    bool
	hasLastPrice  bool
}

type Normalizer struct {
	registry *symbols.Registry
	cache    map[string]*fragments
	log      *logger.Log
	rejected int64
}

func New(registry *symbols.Registry) *Normalizer {
	return &Normalizer{
		registry: registry,
		cache:    make(map[string]*fragments),
		log:      logger.GetLogger(),
	}
}

// Process consumes one raw frame. Market-state frames merge into the
// instrument's fragment cache and yield a rebuilt snapshot once a last price
// is known; trade frames yield a normalized execution instead. A frame whose
// identifying price is unparsable is rejected whole and changes nothing;
// garbled non-identifying numerics read as zero instead.
func (n *Normalizer) Process(frame *models.RawFrame) (*models.MarketSnapshot, *models.Trade, error) {
	if frame.VenueSymbol == "" {
		n.rejected++
		return nil, nil, fmt.Errorf("frame without venue symbol on topic %s", frame.Topic)
	}

	if frame.Kind == models.FrameTrade {
		trade, err := n.normalizeTrade(frame)
		if err != nil {
			n.rejected++
			return nil, nil, err
		}
		return nil, trade, nil
	}

	if err := validateIdentifyingFields(frame.Fields); err != nil {
		n.rejected++
		return nil, nil, fmt.Errorf("%s %s frame for %s: %w", frame.Venue, frame.Kind, frame.VenueSymbol, err)
	}

	key := frame.Venue + ":" + frame.VenueSymbol
	frag, ok := n.cache[key]
	if !ok {
		frag = &fragments{fields: make(map[string]string)}
		n.cache[key] = frag
	}
	for k, v := range frame.Fields {
		frag.fields[k] = v
	}
	switch frame.Kind {
	case models.FrameBookTicker:
		frag.hasBookTicker = true
	case models.FrameMarkPrice:
		frag.hasMarkPrice = true
		if _, ok := frame.Fields["funding_rate"]; ok {
			frag.hasFunding = true
		}
	case models.FrameTicker:
		if _, ok := frame.Fields["last_price"]; ok {
			frag.hasLastPrice = true
		}
	}

	// an instrument without a traded price is not yet publishable
	if !frag.hasLastPrice {
		return nil, nil, nil
	}

	return n.buildSnapshot(frame, frag), nil, nil
}

// Rejected reports how many frames failed validation since startup.
func (n *Normalizer) Rejected() int64 { return n.rejected }

// CachedInstruments reports the number of instruments with fragment state.
func (n *Normalizer) CachedInstruments() int { return len(n.cache) }

func (n *Normalizer) normalizeTrade(frame *models.RawFrame) (*models.Trade, error) {
	price, err := requiredFloat(frame.Fields, "price")
	if err != nil {
		return nil, fmt.Errorf("%s trade for %s: %w", frame.Venue, frame.VenueSymbol, err)
	}
	qty, err := requiredFloat(frame.Fields, "quantity")
	if err != nil {
		return nil, fmt.Errorf("%s trade for %s: %w", frame.Venue, frame.VenueSymbol, err)
	}
	if price <= 0 || qty <= 0 {
		return nil, fmt.Errorf("%s trade for %s: non-positive price or quantity", frame.Venue, frame.VenueSymbol)
	}

	ts := frame.ReceivedAt
	if ms := optionalInt(frame.Fields, "trade_time"); ms > 0 {
		ts = time.UnixMilli(ms).UTC()
	}
	return &models.Trade{
		Venue:     frame.Venue,
		Symbol:    n.registry.Lookup(frame.Venue, frame.VenueSymbol),
		Price:     price,
		Quantity:  qty,
		IsBuy:     frame.Fields["side"] == "buy",
		Timestamp: ts,
	}, nil
}

func (n *Normalizer) buildSnapshot(frame *models.RawFrame, frag *fragments) *models.MarketSnapshot {
	canonical := n.registry.Lookup(frame.Venue, frame.VenueSymbol)
	base, quote := symbols.SplitPair(canonicalPair(canonical))

	snap := &models.MarketSnapshot{
		Venue:       frame.Venue,
		VenueSymbol: frame.VenueSymbol,
		Symbol:      canonical,
		BaseAsset:   base,
		QuoteAsset:  quote,

		LastPrice:  optionalFloat(frag.fields, "last_price"),
		MarkPrice:  optionalFloat(frag.fields, "mark_price"),
		IndexPrice: optionalFloat(frag.fields, "index_price"),

		BestBid:     optionalFloat(frag.fields, "bid_price"),
		BestBidSize: optionalFloat(frag.fields, "bid_size"),
		BestAsk:     optionalFloat(frag.fields, "ask_price"),
		BestAskSize: optionalFloat(frag.fields, "ask_size"),

		FundingRate: optionalFloat(frag.fields, "funding_rate"),

		Volume24h:         optionalFloat(frag.fields, "volume_24h"),
		QuoteVolume24h:    optionalFloat(frag.fields, "quote_volume_24h"),
		OpenInterest:      optionalFloat(frag.fields, "open_interest"),
		High24h:           optionalFloat(frag.fields, "high_24h"),
		Low24h:            optionalFloat(frag.fields, "low_24h"),
		PriceChangePct24h: optionalFloat(frag.fields, "price_change_pct_24h"),

		UpdatedAt: frame.ReceivedAt,

		HasBookTicker: frag.hasBookTicker,
		HasMarkPrice:  frag.hasMarkPrice,
		HasFunding:    frag.hasFunding,
	}

	if snap.BestBid > 0 && snap.BestAsk > 0 {
		snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
		snap.Spread = snap.BestAsk - snap.BestBid
		if snap.MidPrice > 0 {
			snap.SpreadPct = snap.Spread / snap.MidPrice * 100
		}
	}

	if frag.hasFunding {
		interval := optionalFloat(frag.fields, "funding_interval_hours")
		snap.AnnualizedFunding = snap.FundingRate * fundingPeriodsPerYear(interval) * 100
	}
	if ms := optionalInt(frag.fields, "next_funding_time"); ms > 0 {
		snap.NextFundingTime = time.UnixMilli(ms).UTC()
		if ttf := snap.NextFundingTime.Sub(frame.ReceivedAt).Milliseconds(); ttf > 0 {
			snap.TimeToFundingMs = ttf
		}
	}

	return snap
}

// canonicalPair strips the instrument-type suffix from a canonical id so the
// remainder splits into base and quote again.
func canonicalPair(canonical string) string {
	if i := lastDash(canonical); i > 0 {
		pair := canonical[:i]
		if j := lastDash(pair); j > 0 {
			return pair[:j] + pair[j+1:]
		}
		return pair
	}
	return canonical
}

func lastDash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '-' {
			return i
		}
	}
	return -1
}

// identifyingFields are the keys that carry the update itself; a frame with an
// unparsable value here is rejected whole. Every other numeric field reads as
// zero when garbled.
var identifyingFields = []string{"last_price"}

func validateIdentifyingFields(fields map[string]string) error {
	for _, key := range identifyingFields {
		v, ok := fields[key]
		if !ok || v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("field %s=%q is not numeric", key, v)
		}
	}
	return nil
}

func requiredFloat(fields map[string]string, key string) (float64, error) {
	v, ok := fields[key]
	if !ok || v == "" {
		return 0, fmt.Errorf("missing field %s", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s=%q is not numeric", key, v)
	}
	return f, nil
}

func optionalFloat(fields map[string]string, key string) float64 {
	v, ok := fields[key]
	if !ok || v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func optionalInt(fields map[string]string, key string) int64 {
	v, ok := fields[key]
	if !ok || v == "" {
		return 0
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return i
}
