package broadcast

import (
	"sync"
)

// Throttler coalesces producer updates between flushes. Enqueue overwrites
// any pending value for the same (channel, key), so a hot instrument costs
// one slot no matter how often it updates within a flush interval.
type Throttler struct {
	mu      sync.Mutex
	pending map[string]map[string]interface{}
}

func NewThrottler() *Throttler {
	return &Throttler{pending: make(map[string]map[string]interface{})}
}

// Enqueue records the latest value for (channel, key). Never blocks.
func (t *Throttler) Enqueue(channel, key string, v interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keyed, ok := t.pending[channel]
	if !ok {
		keyed = make(map[string]interface{})
		t.pending[channel] = keyed
	}
	keyed[key] = v
}

// Drain removes and returns everything pending. The caller owns the result.
func (t *Throttler) Drain() map[string]map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.pending
	t.pending = make(map[string]map[string]interface{})
	return out
}

// Pending reports how many values await the next flush.
func (t *Throttler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, keyed := range t.pending {
		n += len(keyed)
	}
	return n
}
