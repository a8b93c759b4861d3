// Package broadcast fans pipeline output out to downstream websocket
// consumers. Producers enqueue into a coalescing throttler; a fixed-interval
// flush turns the pending set into one batched message per channel, and a
// liveness timer evicts consumers that stop answering probes.
package broadcast

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"surgeflow/config"
	"surgeflow/logger"
	"surgeflow/models"
)

type Hub struct {
	cfg       config.BroadcastConfig
	log       *logger.Log
	throttler *Throttler
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(cfg config.BroadcastConfig) *Hub {
	if cfg.FlushIntervalMs <= 0 {
		cfg.FlushIntervalMs = 100
	}
	if cfg.LivenessCheckMs <= 0 {
		cfg.LivenessCheckMs = 30000
	}
	return &Hub{
		cfg:       cfg,
		log:       logger.GetLogger(),
		throttler: NewThrottler(),
		upgrader: websocket.Upgrader{
			WriteBufferSize: cfg.WriteBufferBytes,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// PublishSnapshot queues a market snapshot for the next flush. The symbol is
// the coalescing key, so only the latest state per instrument goes out.
func (h *Hub) PublishSnapshot(snap models.MarketSnapshot) {
	h.throttler.Enqueue(models.ChannelMarkets, snap.Key(), snap)
}

// PublishLeaderboard queues a leaderboard rebuild.
func (h *Hub) PublishLeaderboard(board *models.Leaderboard) {
	if board == nil {
		return
	}
	h.throttler.Enqueue(models.ChannelLeaderboard+board.Name, board.Name, board)
}

// PublishAggregates queues the cross-venue aggregation output.
func (h *Hub) PublishAggregates(markets []models.AggregatedMarket) {
	for _, m := range markets {
		h.throttler.Enqueue("aggregated", m.Symbol, m)
	}
}

// PublishSignal queues a signal. Signals are keyed by instrument and type so
// distinct signals within one flush interval all survive.
func (h *Hub) PublishSignal(sig models.Signal) {
	h.throttler.Enqueue(models.ChannelSignals, sig.Type+":"+sig.Entry.ID, sig)
}

// HandleWS upgrades an HTTP request into a consumer connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithComponent("broadcast").WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := newClient(h, conn)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.WithComponent("broadcast").WithFields(logger.Fields{
		"client_id": c.id,
		"clients":   total,
	}).Info("consumer connected")

	go c.writeLoop()
	go c.readLoop()
}

// Run drives the flush and liveness timers until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	flush := time.NewTicker(time.Duration(h.cfg.FlushIntervalMs) * time.Millisecond)
	liveness := time.NewTicker(time.Duration(h.cfg.LivenessCheckMs) * time.Millisecond)
	defer flush.Stop()
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-flush.C:
			h.Flush()
		case <-liveness.C:
			h.probe()
		}
	}
}

// Flush drains the throttler and delivers one batched message per channel.
// Market updates additionally fan out on the derived per-instrument channels.
func (h *Hub) Flush() {
	pending := h.throttler.Drain()
	if len(pending) == 0 {
		return
	}

	for channel, keyed := range pending {
		values := make([]interface{}, 0, len(keyed))
		for _, v := range keyed {
			values = append(values, v)
			if channel == models.ChannelMarkets {
				if snap, ok := v.(models.MarketSnapshot); ok {
					h.deliver(models.ChannelMarketsPfx+snap.Symbol, models.ServerMessage{
						Channel: models.ChannelMarketsPfx + snap.Symbol,
						Event:   models.EventUpdate,
						Data:    v,
					})
				}
			}
		}

		var data interface{} = values
		if len(values) == 1 && channel != models.ChannelMarkets && channel != models.ChannelSignals {
			// leaderboard and aggregate channels carry one object per flush
			data = values[0]
		}
		h.deliver(channel, models.ServerMessage{
			Channel: channel,
			Event:   models.EventUpdate,
			Data:    data,
		})
	}
}

func (h *Hub) deliver(channel string, msg models.ServerMessage) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	delivered := 0
	for _, c := range targets {
		if !c.subscribedTo(channel) {
			continue
		}
		if c.enqueue(msg) {
			delivered++
		}
	}
	if delivered > 0 {
		logger.IncrementBroadcast(delivered)
	}
}

// probe pings every consumer. A consumer that never acknowledged the
// previous probe is forcibly disconnected and loses its subscriptions.
func (h *Hub) probe() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.markProbe() {
			h.log.WithComponent("broadcast").WithFields(logger.Fields{
				"client_id": c.id,
			}).Warn("consumer missed liveness probe, disconnecting")
			h.remove(c)
			continue
		}
		if err := c.ping(); err != nil {
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if present {
		c.close()
		h.log.WithComponent("broadcast").WithFields(logger.Fields{
			"client_id": c.id,
		}).Info("consumer disconnected")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range targets {
		c.close()
	}
}

// ClientCount reports the number of connected consumers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
