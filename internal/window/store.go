package window

import (
	"surgeflow/config"
	"surgeflow/models"
)

// InstrumentState bundles everything the pipeline tracks for one
// (venue, instrument): the latest snapshot, the rolling windows and the most
// recent derived metrics record. Mutated only by the pipeline goroutine.
type InstrumentState struct {
	Venue  string
	Symbol string

	Price   *Window
	Volume  *Window
	Spread  *Window
	Metrics *models.DerivedMetrics

	Snapshot *models.MarketSnapshot
}

// Store is the arena of instrument state, indexed by the stable
// "venue:symbol" key. It doubles as the market store: the latest snapshot per
// instrument lives here and is replaced wholesale on update.
type Store struct {
	instruments map[string]*InstrumentState
	// order lists keys by first sight so iteration is deterministic;
	// downstream tie-breaks depend on stable input order.
	order     []string
	priceCfg  config.WindowConfig
	volumeCfg config.WindowConfig
}

func NewStore(priceCfg, volumeCfg config.WindowConfig) *Store {
	return &Store{
		instruments: make(map[string]*InstrumentState),
		priceCfg:    priceCfg,
		volumeCfg:   volumeCfg,
	}
}

// Get returns the state for a key, or nil.
func (s *Store) Get(key string) *InstrumentState {
	return s.instruments[key]
}

// Ensure returns the state for (venue, symbol), creating windows on first
// sight of the instrument.
func (s *Store) Ensure(venue, symbol string) *InstrumentState {
	key := venue + ":" + symbol
	st, ok := s.instruments[key]
	if !ok {
		st = &InstrumentState{
			Venue:  venue,
			Symbol: symbol,
			Price:  New(FamilyPrice, s.priceCfg.BucketSizeMs, s.priceCfg.BucketCount),
			Volume: New(FamilyVolume, s.volumeCfg.BucketSizeMs, s.volumeCfg.BucketCount),
			Spread: New(FamilyPrice, s.priceCfg.BucketSizeMs, s.priceCfg.BucketCount),
		}
		s.instruments[key] = st
		s.order = append(s.order, key)
	}
	return st
}

// ApplySnapshot replaces the instrument's snapshot and feeds the price and
// spread windows from it.
func (s *Store) ApplySnapshot(snap *models.MarketSnapshot) *InstrumentState {
	st := s.Ensure(snap.Venue, snap.Symbol)
	st.Snapshot = snap

	ts := snap.UpdatedAt.UnixMilli()
	if snap.LastPrice > 0 {
		st.Price.Add(PricePoint(snap.LastPrice), ts)
	}
	if snap.SpreadPct > 0 {
		st.Spread.Add(PricePoint(snap.SpreadPct), ts)
	}
	return st
}

// ApplyTrade feeds the instrument's volume window from a taker execution.
func (s *Store) ApplyTrade(trade *models.Trade) {
	st := s.Ensure(trade.Venue, trade.Symbol)
	st.Volume.Add(VolumePoint(trade.Quantity, trade.IsBuy), trade.Timestamp.UnixMilli())
}

// Len reports how many instruments the store tracks.
func (s *Store) Len() int {
	return len(s.instruments)
}

// ForEach visits every instrument state in first-seen order.
func (s *Store) ForEach(fn func(*InstrumentState)) {
	for _, key := range s.order {
		fn(s.instruments[key])
	}
}

// Snapshots returns copies of all current snapshots in first-seen order, safe
// to hand outside the pipeline goroutine.
func (s *Store) Snapshots() []models.MarketSnapshot {
	out := make([]models.MarketSnapshot, 0, len(s.instruments))
	for _, key := range s.order {
		if st := s.instruments[key]; st.Snapshot != nil {
			out = append(out, *st.Snapshot)
		}
	}
	return out
}
