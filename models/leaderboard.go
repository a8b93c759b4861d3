package models

import (
	"time"
)

// LeaderboardEntry is one ranked instrument inside a leaderboard view.
type LeaderboardEntry struct {
	ID       string             `json:"id"`
	Venue    string             `json:"venue"`
	Symbol   string             `json:"symbol"`
	Value    float64            `json:"value"`
	Rank     int                `json:"rank"`
	Metadata map[string]float64 `json:"metadata,omitempty"`
}

// Leaderboard is the full result of one view rebuild. Entries are sorted by
// the view's comparator with ranks assigned as gapless 1-based positions.
type Leaderboard struct {
	Name    string             `json:"name"`
	Total   int                `json:"total"`
	BuiltAt time.Time          `json:"built_at"`
	Entries []LeaderboardEntry `json:"entries"`
}

// Signal is a one-shot event emitted when an instrument enters the top of a
// compound leaderboard view (pumping/dumping).
type Signal struct {
	Type      string           `json:"type"`
	Entry     LeaderboardEntry `json:"entry"`
	Timestamp time.Time        `json:"timestamp"`
}
