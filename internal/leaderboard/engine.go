// Package leaderboard maintains the ranked views over the instrument arena.
// Every tick rebuilds every view from scratch; no ranking state survives a
// tick, so a vanished instrument simply stops appearing.
package leaderboard

import (
	"sort"
	"time"

	"surgeflow/logger"
	"surgeflow/models"
)

type Engine struct {
	views  []View
	boards map[string]*models.Leaderboard
	topN   int
	log    *logger.Log

	// wasTop tracks top-N membership across ticks for signal emission.
	wasTop map[string]map[string]bool
}

// NewEngine builds the engine with the default view registry. topN is the
// published board depth and the signal cutoff; <= 0 means unclipped.
func NewEngine(topN int) *Engine {
	return &Engine{
		views:  defaultViews(),
		boards: make(map[string]*models.Leaderboard),
		wasTop: make(map[string]map[string]bool),
		topN:   topN,
		log:    logger.GetLogger(),
	}
}

// Register adds or replaces a view. Intended for tests and for deployments
// that extend the built-in registry.
func (e *Engine) Register(v View) {
	for i := range e.views {
		if e.views[i].Name == v.Name {
			e.views[i] = v
			return
		}
	}
	e.views = append(e.views, v)
}

// ViewNames returns the registered view names in registration order.
func (e *Engine) ViewNames() []string {
	names := make([]string, len(e.views))
	for i, v := range e.views {
		names[i] = v.Name
	}
	return names
}

// Update rebuilds every registered view from the given instruments and
// returns the signals produced by instruments newly entering the pumping or
// dumping boards.
func (e *Engine) Update(instruments []Instrument, now time.Time) []models.Signal {
	var signals []models.Signal
	for _, view := range e.views {
		board := e.build(view, instruments, now)
		e.boards[view.Name] = board

		if view.Name == ViewPumping || view.Name == ViewDumping {
			signals = append(signals, e.diffSignals(view.Name, board, now)...)
		}
	}
	return signals
}

func (e *Engine) build(view View, instruments []Instrument, now time.Time) *models.Leaderboard {
	entries := make([]models.LeaderboardEntry, 0, len(instruments))
	for _, in := range instruments {
		if in.Snapshot == nil {
			continue
		}
		if view.NeedsMetrics && in.Metrics == nil {
			continue
		}
		if view.Filter != nil && !view.Filter(in) {
			continue
		}
		entry := models.LeaderboardEntry{
			ID:     in.Snapshot.Key(),
			Venue:  in.Snapshot.Venue,
			Symbol: in.Snapshot.Symbol,
			Value:  view.Score(in),
		}
		if view.Metadata != nil {
			entry.Metadata = view.Metadata(in)
		}
		entries = append(entries, entry)
	}

	// stable sort: equal values keep input order
	sort.SliceStable(entries, func(i, j int) bool {
		if view.Descending {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Value < entries[j].Value
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return &models.Leaderboard{
		Name:    view.Name,
		Total:   len(entries),
		BuiltAt: now,
		Entries: entries,
	}
}

// Get returns up to limit entries of a view, or nil for an unknown view.
// limit <= 0 means no clipping.
func (e *Engine) Get(name string, limit int) []models.LeaderboardEntry {
	board, ok := e.boards[name]
	if !ok {
		return nil
	}
	entries := board.Entries
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]models.LeaderboardEntry, len(entries))
	copy(out, entries)
	return out
}

// GetLeaderboard returns a clipped copy of a view including the unclipped
// total and build timestamp, or nil for an unknown view.
func (e *Engine) GetLeaderboard(name string, limit int) *models.Leaderboard {
	board, ok := e.boards[name]
	if !ok {
		return nil
	}
	return &models.Leaderboard{
		Name:    board.Name,
		Total:   board.Total,
		BuiltAt: board.BuiltAt,
		Entries: e.Get(name, limit),
	}
}

// diffSignals emits one signal per instrument that crossed into the board's
// top N since the previous tick.
func (e *Engine) diffSignals(name string, board *models.Leaderboard, now time.Time) []models.Signal {
	entries := board.Entries
	if e.topN > 0 && e.topN < len(entries) {
		entries = entries[:e.topN]
	}

	prev := e.wasTop[name]
	current := make(map[string]bool, len(entries))

	var signals []models.Signal
	for _, entry := range entries {
		current[entry.ID] = true
		if prev[entry.ID] {
			continue
		}
		signals = append(signals, models.Signal{
			Type:      name,
			Entry:     entry,
			Timestamp: now,
		})
	}
	e.wasTop[name] = current
	return signals
}
