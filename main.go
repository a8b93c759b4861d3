package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"surgeflow/config"
	"surgeflow/internal/broadcast"
	"surgeflow/internal/channel"
	"surgeflow/internal/health"
	"surgeflow/internal/metrics"
	"surgeflow/internal/pipeline"
	"surgeflow/internal/session"
	"surgeflow/internal/session/binance"
	"surgeflow/internal/session/bybit"
	"surgeflow/internal/symbols"
	"surgeflow/internal/universe"
	"surgeflow/logger"
	"surgeflow/models"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Surgeflow.Name,
		"version": cfg.Surgeflow.Version,
	}).Info("starting surgeflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Address)
	} else {
		metrics.Init("")
	}

	channels := channel.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.EventBuffer)
	defer channels.Close()
	go channels.StartMetricsReporting(ctx)

	// resolve the instrument universe before opening any session
	registry := symbols.NewRegistry()
	instruments := universe.NewFetcher(cfg.Venues).Load(ctx, registry)

	hub := broadcast.NewHub(cfg.Broadcast)
	pipe := pipeline.New(cfg, channels, registry, hub)

	sessions := make([]*session.Session, 0, 2)
	if cfg.Venues.Binance.Enabled {
		dialect := binance.New()
		s := session.New(dialect, cfg.Session, cfg.Venues.Binance.WSURL, channels)
		s.Subscribe(dialect.Topics(venueSymbols(cfg.Venues.Binance, instruments["binance"])))
		sessions = append(sessions, s)
	}
	if cfg.Venues.Bybit.Enabled {
		dialect := bybit.New()
		s := session.New(dialect, cfg.Session, cfg.Venues.Bybit.WSURL, channels)
		s.Subscribe(dialect.Topics(venueSymbols(cfg.Venues.Bybit, instruments["bybit"])))
		sessions = append(sessions, s)
	}
	if len(sessions) == 0 {
		log.Error("no venues enabled")
		os.Exit(1)
	}

	if err := pipe.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start pipeline")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	wsServer := &http.Server{Addr: cfg.Broadcast.Address, Handler: wsMux(hub)}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("broadcast server failed")
		}
	}()
	log.WithComponent("main").WithFields(logger.Fields{
		"address": cfg.Broadcast.Address,
	}).Info("broadcast server listening")

	healthServer := health.NewServer(cfg.Health, pipe.Published(), func() []session.Stats {
		stats := make([]session.Stats, 0, len(sessions))
		for _, s := range sessions {
			stats = append(stats, s.Stats())
		}
		return stats
	}, hub.ClientCount)
	if healthServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthServer.Run(ctx); err != nil {
				log.WithError(err).Warn("health server failed")
			}
		}()
	}

	for _, s := range sessions {
		if err := s.Connect(ctx); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"venue": s.Venue(),
			}).Error("failed to open session")
		}
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutdown signal received")
	cancel()

	for _, s := range sessions {
		s.Disconnect()
	}
	pipe.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = wsServer.Shutdown(shutdownCtx)

	wg.Wait()
	log.Info("surgeflow stopped")
}

func wsMux(hub *broadcast.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	return mux
}

// venueSymbols prefers the fetched universe, falling back to the static list.
func venueSymbols(cfg config.VenueConfig, fetched []models.Instrument) []string {
	if syms := universe.ActiveVenueSymbols(fetched); len(syms) > 0 {
		return syms
	}
	return cfg.Symbols
}
