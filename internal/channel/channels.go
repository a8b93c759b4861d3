package channel

import (
	"context"
	"sync"
	"time"

	"surgeflow/logger"
	"surgeflow/models"
)

type ChannelStats struct {
	RawSent       int64
	RawDropped    int64
	EventsSent    int64
	EventsDropped int64
}

// Channels carries data between the pipeline stages. Sends are non-blocking:
// session I/O goroutines must never stall on a slow consumer, so a full
// buffer drops the message and counts the drop.
type Channels struct {
	Raw    chan models.RawFrame
	Events chan models.SessionEvent

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBuffer, eventBuffer int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:    make(chan models.RawFrame, rawBuffer),
		Events: make(chan models.SessionEvent, eventBuffer),
		log:    log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer":   rawBuffer,
		"event_buffer": eventBuffer,
	}).Info("pipeline channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Events)
	c.log.WithComponent("channels").Info("pipeline channels closed")
}

func (c *Channels) SendRaw(ctx context.Context, frame models.RawFrame) bool {
	select {
	case c.Raw <- frame:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		logger.IncrementFrameDropped()
		return false
	}
}

// SendEvent delivers a session state change. State transitions are rare and
// must not be lost, so unlike data sends this blocks until the consumer takes
// the event or the context ends.
func (c *Channels) SendEvent(ctx context.Context, ev models.SessionEvent) bool {
	select {
	case c.Events <- ev:
		c.statsMutex.Lock()
		c.stats.EventsSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting periodically logs queue depths and drop counters.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log := c.log.WithComponent("channels")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.GetStats()
			log.WithFields(logger.Fields{
				"raw_sent":    stats.RawSent,
				"raw_dropped": stats.RawDropped,
				"raw_depth":   len(c.Raw),
				"events_sent": stats.EventsSent,
			}).Info("channel statistics")
		}
	}
}
