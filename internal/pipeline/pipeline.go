// Package pipeline owns all mutable market state. One goroutine consumes the
// raw frame channel and the engine timers, so the window store, the metrics
// records and the leaderboard state never see concurrent writers. Everything
// that leaves the pipeline leaves as a copy.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"surgeflow/config"
	"surgeflow/internal/aggregator"
	"surgeflow/internal/analytics"
	"surgeflow/internal/broadcast"
	"surgeflow/internal/channel"
	"surgeflow/internal/leaderboard"
	"surgeflow/internal/metrics"
	"surgeflow/internal/normalizer"
	"surgeflow/internal/symbols"
	"surgeflow/internal/window"
	"surgeflow/logger"
	"surgeflow/models"
)

type Pipeline struct {
	cfg      *config.Config
	channels *channel.Channels
	hub      *broadcast.Hub

	store     *window.Store
	norm      *normalizer.Normalizer
	analytics *analytics.Engine
	boards    *leaderboard.Engine
	agg       *aggregator.Aggregator
	published *Published

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log
}

func New(cfg *config.Config, ch *channel.Channels, registry *symbols.Registry, hub *broadcast.Hub) *Pipeline {
	store := window.NewStore(cfg.Windows.Price, cfg.Windows.Volume)
	return &Pipeline{
		cfg:       cfg,
		channels:  ch,
		hub:       hub,
		store:     store,
		norm:      normalizer.New(registry),
		analytics: analytics.New(store),
		boards:    leaderboard.NewEngine(cfg.Engine.TopN),
		agg:       aggregator.New(),
		published: newPublished(),
		log:       logger.GetLogger(),
	}
}

// Published exposes the read-side of the pipeline for the health endpoints.
func (p *Pipeline) Published() *Published { return p.published }

func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("pipeline already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.log.WithComponent("pipeline").WithFields(logger.Fields{
		"metrics_interval_ms":     p.cfg.Engine.MetricsIntervalMs,
		"leaderboard_interval_ms": p.cfg.Engine.LeaderboardIntervalMs,
		"aggregation_interval_ms": p.cfg.Engine.AggregationIntervalMs,
	}).Info("pipeline started")
	return nil
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.log.WithComponent("pipeline").Info("pipeline stopped")
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	metricsTick := time.NewTicker(time.Duration(p.cfg.Engine.MetricsIntervalMs) * time.Millisecond)
	boardTick := time.NewTicker(time.Duration(p.cfg.Engine.LeaderboardIntervalMs) * time.Millisecond)
	aggTick := time.NewTicker(time.Duration(p.cfg.Engine.AggregationIntervalMs) * time.Millisecond)
	defer metricsTick.Stop()
	defer boardTick.Stop()
	defer aggTick.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case frame := <-p.channels.Raw:
			p.handleFrame(&frame)
		case ev := <-p.channels.Events:
			p.handleEvent(ev)
		case <-metricsTick.C:
			p.analytics.Tick(time.Now().UTC())
			metrics.SetInstruments(p.store.Len())
		case <-boardTick.C:
			p.rebuildBoards(time.Now().UTC())
		case <-aggTick.C:
			p.aggregate(time.Now().UTC())
		}
	}
}

func (p *Pipeline) handleFrame(frame *models.RawFrame) {
	metrics.IncrementFrame(frame.Venue, string(frame.Kind))

	snap, trade, err := p.norm.Process(frame)
	if err != nil {
		metrics.IncrementRejected(frame.Venue)
		p.log.WithComponent("pipeline").WithError(err).Debug("frame rejected")
		return
	}
	if trade != nil {
		p.store.ApplyTrade(trade)
		return
	}
	if snap != nil {
		p.store.ApplySnapshot(snap)
		p.hub.PublishSnapshot(*snap)
		metrics.IncrementSnapshot(snap.Venue)
	}
}

func (p *Pipeline) handleEvent(ev models.SessionEvent) {
	p.published.addEvent(ev)
	entry := p.log.WithComponent("pipeline").WithFields(logger.Fields{
		"venue": ev.Venue,
		"state": string(ev.State),
	})
	if ev.Err != nil {
		entry.WithError(ev.Err).Warn("session state changed")
		return
	}
	entry.Info("session state changed")
}

// rebuildBoards re-derives every leaderboard view, publishes the clipped
// boards downstream and emits the membership-entry signals.
func (p *Pipeline) rebuildBoards(now time.Time) {
	instruments := make([]leaderboard.Instrument, 0, p.store.Len())
	p.store.ForEach(func(st *window.InstrumentState) {
		if st.Snapshot == nil {
			return
		}
		instruments = append(instruments, leaderboard.Instrument{
			Snapshot: st.Snapshot,
			Metrics:  st.Metrics,
		})
	})

	signals := p.boards.Update(instruments, now)
	for _, sig := range signals {
		p.hub.PublishSignal(sig)
	}

	topN := p.cfg.Engine.TopN
	for _, name := range p.boards.ViewNames() {
		board := p.boards.GetLeaderboard(name, topN)
		if board == nil {
			continue
		}
		p.hub.PublishLeaderboard(board)
		p.published.setLeaderboard(board)
	}
}

func (p *Pipeline) aggregate(now time.Time) {
	snaps := p.store.Snapshots()
	p.published.setSnapshots(snaps)

	aggs := p.agg.Aggregate(snaps, now)
	p.hub.PublishAggregates(aggs)
	p.published.setAggregates(aggs)
}
