package session

import (
	"time"
)

// BackoffDelay returns the reconnect delay before attempt n (1-based):
// min(base * 2^(n-1), max).
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// PartitionTopics splits topics into groups of at most cap, preserving input
// order. The union of the groups equals the input and no topic repeats.
func PartitionTopics(topics []string, cap int) [][]string {
	if cap <= 0 {
		cap = 1
	}
	seen := make(map[string]struct{}, len(topics))
	deduped := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		deduped = append(deduped, t)
	}

	var groups [][]string
	for len(deduped) > 0 {
		n := cap
		if n > len(deduped) {
			n = len(deduped)
		}
		group := make([]string, n)
		copy(group, deduped[:n])
		groups = append(groups, group)
		deduped = deduped[n:]
	}
	return groups
}
