package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"surgeflow/config"
	"surgeflow/internal/channel"
	"surgeflow/logger"
	"surgeflow/models"
)

// Stats is the operational view of one session, exposed through the health
// endpoints.
type Stats struct {
	Venue       string              `json:"venue"`
	State       models.SessionState `json:"state"`
	Connections int                 `json:"connections"`
	Topics      int                 `json:"topics"`
	FramesRead  int64               `json:"frames_read"`
	Reconnects  int64               `json:"reconnects"`
	LastError   string              `json:"last_error,omitempty"`
	LastFrameAt time.Time           `json:"last_frame_at"`
}

// Session owns one logical venue connection, possibly split across several
// physical websocket connections when the topic set exceeds the
// per-connection cap. Each physical connection reconnects independently with
// its own backoff counter.
type Session struct {
	dialect  Dialect
	cfg      config.SessionConfig
	wsURL    string
	channels *channel.Channels
	log      *logger.Log
	limiter  *rate.Limiter

	mu       sync.Mutex
	running  bool
	manual   bool
	topics   []string
	conns    []*physConn
	nextID   int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	aggState models.SessionState

	framesRead  int64
	reconnects  int64
	lastError   string
	lastFrameAt time.Time
}

func New(dialect Dialect, cfg config.SessionConfig, wsURL string, ch *channel.Channels) *Session {
	perSec := cfg.SubscribesPerSecond
	if perSec <= 0 {
		perSec = 5
	}
	return &Session{
		dialect:  dialect,
		cfg:      cfg,
		wsURL:    wsURL,
		channels: ch,
		log:      logger.GetLogger(),
		limiter:  rate.NewLimiter(rate.Limit(perSec), perSec),
		aggState: models.SessionDisconnected,
	}
}

func (s *Session) Venue() string { return s.dialect.Venue() }

// Connect opens the session. Calling it on a session that is already running
// performs no network action and leaves reconnect counters untouched.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.manual = false
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.log.WithComponent("session").WithFields(logger.Fields{
		"venue":  s.dialect.Venue(),
		"topics": len(s.topics),
	}).Info("session connecting")

	s.reconcileLocked()
	return nil
}

// Subscribe adds topics to the session. Already-subscribed topics are
// ignored. When the session is open the topic set is re-partitioned; when it
// is closed the topics are queued for the next Connect.
func (s *Session) Subscribe(topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.topics))
	for _, t := range s.topics {
		existing[t] = struct{}{}
	}
	added := 0
	for _, t := range topics {
		if _, ok := existing[t]; ok {
			continue
		}
		existing[t] = struct{}{}
		s.topics = append(s.topics, t)
		added++
	}
	if added == 0 {
		return
	}
	if s.running {
		s.reconcileLocked()
	}
}

// Unsubscribe removes topics and re-partitions the physical connections.
func (s *Session) Unsubscribe(topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		remove[t] = struct{}{}
	}
	kept := s.topics[:0]
	removed := 0
	for _, t := range s.topics {
		if _, ok := remove[t]; ok {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.topics = kept
	if removed == 0 {
		return
	}
	if s.running {
		s.reconcileLocked()
	}
}

// Disconnect closes the session and suppresses all pending and future
// reconnects. It is idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.manual = true
	cancel := s.cancel
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	cancel()
	for _, c := range conns {
		c.stop()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.setAggStateLocked(models.SessionDisconnected, nil)
	s.mu.Unlock()

	s.log.WithComponent("session").WithFields(logger.Fields{
		"venue": s.dialect.Venue(),
	}).Info("session disconnected")
}

// State returns the aggregate session state: connected only when every
// physical connection is open, disconnected only when none are.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggState
}

// TopicCount reports the size of the tracked topic set.
func (s *Session) TopicCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topics)
}

// ConnectionCount reports the number of physical connections.
func (s *Session) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Venue:       s.dialect.Venue(),
		State:       s.aggState,
		Connections: len(s.conns),
		Topics:      len(s.topics),
		FramesRead:  s.framesRead,
		Reconnects:  s.reconnects,
		LastError:   s.lastError,
		LastFrameAt: s.lastFrameAt,
	}
}

// reconcileLocked re-partitions the topic set and adjusts the physical
// connections to match. Connections whose group is unchanged are kept;
// control-frame venues get incremental subscribe/unsubscribe frames when the
// group membership shifts; URL-embedded venues are replaced outright.
func (s *Session) reconcileLocked() {
	groups := PartitionTopics(s.topics, s.cfg.MaxStreamsPerConn)

	for i, group := range groups {
		if i < len(s.conns) {
			c := s.conns[i]
			if sameTopics(c.topicsSnapshot(), group) {
				continue
			}
			if c.applyTopicDiff(group) {
				continue
			}
			c.stop()
			s.conns[i] = s.spawnConn(group)
			continue
		}
		s.conns = append(s.conns, s.spawnConn(group))
	}

	if len(groups) < len(s.conns) {
		for _, c := range s.conns[len(groups):] {
			c.stop()
		}
		s.conns = s.conns[:len(groups)]
	}

	s.recomputeStateLocked()
}

func (s *Session) spawnConn(topics []string) *physConn {
	s.nextID++
	c := newPhysConn(s, s.nextID, topics)
	s.wg.Add(1)
	go c.run(s.ctx)
	return c
}

func (s *Session) onConnStateChange() {
	s.mu.Lock()
	s.recomputeStateLocked()
	s.mu.Unlock()
}

func (s *Session) recomputeStateLocked() {
	if !s.running {
		return
	}

	var connected, reconnecting, errored int
	for _, c := range s.conns {
		switch c.currentState() {
		case models.SessionConnected:
			connected++
		case models.SessionReconnecting:
			reconnecting++
		case models.SessionError:
			errored++
		}
	}

	var next models.SessionState
	var err error
	switch {
	case errored > 0:
		next = models.SessionError
		err = fmt.Errorf("%s: reconnect attempts exhausted", s.dialect.Venue())
	case len(s.conns) == 0 || connected == len(s.conns):
		if len(s.conns) == 0 {
			next = models.SessionDisconnected
		} else {
			next = models.SessionConnected
		}
	case connected == 0 && reconnecting == 0:
		next = models.SessionConnecting
	case reconnecting > 0:
		next = models.SessionReconnecting
	default:
		next = models.SessionConnecting
	}

	s.setAggStateLocked(next, err)
}

func (s *Session) setAggStateLocked(next models.SessionState, err error) {
	if s.aggState == next {
		return
	}
	s.aggState = next
	if err != nil {
		s.lastError = err.Error()
	}

	ev := models.SessionEvent{
		Venue:     s.dialect.Venue(),
		State:     next,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
	// never block state bookkeeping on a slow event consumer
	select {
	case s.channels.Events <- ev:
	default:
	}
}

func (s *Session) recordFrame(size int) {
	s.mu.Lock()
	s.framesRead++
	s.lastFrameAt = time.Now().UTC()
	s.mu.Unlock()
	logger.IncrementFrameRead(s.dialect.Venue(), size)
}

func (s *Session) recordReconnect(err error) {
	s.mu.Lock()
	s.reconnects++
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()
	logger.IncrementReconnect()
}

func sameTopics(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writeFrames sends control frames under the session's subscribe rate limit.
func (s *Session) writeFrames(ctx context.Context, ws *websocket.Conn, frames [][]byte) error {
	for _, frame := range frames {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}
