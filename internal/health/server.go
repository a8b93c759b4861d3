// Package health hosts the Gin-powered operational endpoints: process
// health, session states, tracked instruments and the latest engine outputs.
package health

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"surgeflow/config"
	"surgeflow/internal/pipeline"
	"surgeflow/internal/session"
	"surgeflow/logger"
)

// Server exposes read-only state; it never mutates the pipeline.
type Server struct {
	cfg        config.HealthConfig
	log        *logger.Log
	published  *pipeline.Published
	sessions   func() []session.Stats
	consumers  func() int
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer constructs the health server when the feature is enabled. When
// disabled the returned server is nil and safe to Run.
func NewServer(cfg config.HealthConfig, published *pipeline.Published, sessions func() []session.Stats, consumers func() int) *Server {
	if !cfg.Enabled {
		return nil
	}
	return &Server{
		cfg:       cfg,
		log:       logger.GetLogger(),
		published: published,
		sessions:  sessions,
		consumers: consumers,
		startedAt: time.Now().UTC(),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.buildRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("health").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("health server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		degraded := false
		for _, st := range s.sessions() {
			if st.State == "error" {
				degraded = true
			}
		}
		status := "ok"
		code := http.StatusOK
		if degraded {
			status = "degraded"
		}
		c.JSON(code, gin.H{
			"status":    status,
			"uptime_s":  int64(time.Since(s.startedAt).Seconds()),
			"consumers": s.consumers(),
		})
	})

	router.GET("/api/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.sessions()})
	})

	router.GET("/api/markets", func(c *gin.Context) {
		snaps := s.published.Snapshots()
		c.JSON(http.StatusOK, gin.H{"total": len(snaps), "markets": snaps})
	})

	router.GET("/api/leaderboards", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"names": s.published.LeaderboardNames()})
	})

	router.GET("/api/leaderboards/:name", func(c *gin.Context) {
		board := s.published.Leaderboard(c.Param("name"))
		if board == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown leaderboard"})
			return
		}
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			limit, _ = strconv.Atoi(raw)
		}
		if limit > 0 && limit < len(board.Entries) {
			clipped := *board
			clipped.Entries = board.Entries[:limit]
			board = &clipped
		}
		c.JSON(http.StatusOK, board)
	})

	router.GET("/api/aggregated", func(c *gin.Context) {
		aggs := s.published.Aggregates()
		c.JSON(http.StatusOK, gin.H{"total": len(aggs), "markets": aggs})
	})

	router.GET("/api/events", func(c *gin.Context) {
		events := s.published.RecentEvents()
		payload := make([]gin.H, 0, len(events))
		for _, ev := range events {
			item := gin.H{
				"venue":     ev.Venue,
				"state":     string(ev.State),
				"timestamp": ev.Timestamp,
			}
			if ev.Err != nil {
				item["error"] = ev.Err.Error()
			}
			payload = append(payload, item)
		}
		c.JSON(http.StatusOK, gin.H{"events": payload})
	})

	return router
}
