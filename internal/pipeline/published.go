package pipeline

import (
	"sync"

	"surgeflow/models"
)

const eventHistory = 50

// Published holds the pipeline outputs visible to readers outside the owner
// goroutine. The pipeline replaces whole values under the lock; readers get
// copies and never see a partially written tick.
type Published struct {
	mu           sync.RWMutex
	snapshots    []models.MarketSnapshot
	leaderboards map[string]*models.Leaderboard
	aggregates   []models.AggregatedMarket
	events       []models.SessionEvent
}

func newPublished() *Published {
	return &Published{
		leaderboards: make(map[string]*models.Leaderboard),
	}
}

func (p *Published) setSnapshots(snaps []models.MarketSnapshot) {
	p.mu.Lock()
	p.snapshots = snaps
	p.mu.Unlock()
}

func (p *Published) setLeaderboard(board *models.Leaderboard) {
	if board == nil {
		return
	}
	p.mu.Lock()
	p.leaderboards[board.Name] = board
	p.mu.Unlock()
}

func (p *Published) setAggregates(aggs []models.AggregatedMarket) {
	p.mu.Lock()
	p.aggregates = aggs
	p.mu.Unlock()
}

func (p *Published) addEvent(ev models.SessionEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	if len(p.events) > eventHistory {
		p.events = p.events[len(p.events)-eventHistory:]
	}
	p.mu.Unlock()
}

// Snapshots returns a copy of the latest published snapshot set.
func (p *Published) Snapshots() []models.MarketSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.MarketSnapshot, len(p.snapshots))
	copy(out, p.snapshots)
	return out
}

// Leaderboard returns the latest build of a view, or nil.
func (p *Published) Leaderboard(name string) *models.Leaderboard {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.leaderboards[name]
}

// LeaderboardNames returns the names with at least one published build.
func (p *Published) LeaderboardNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.leaderboards))
	for name := range p.leaderboards {
		names = append(names, name)
	}
	return names
}

// Aggregates returns a copy of the latest cross-venue aggregation.
func (p *Published) Aggregates() []models.AggregatedMarket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.AggregatedMarket, len(p.aggregates))
	copy(out, p.aggregates)
	return out
}

// RecentEvents returns a copy of the recent session events, oldest first.
func (p *Published) RecentEvents() []models.SessionEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.SessionEvent, len(p.events))
	copy(out, p.events)
	return out
}
