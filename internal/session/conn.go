package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"surgeflow/logger"
	"surgeflow/models"
)

// readDeadline bounds the gap between inbound messages. Every data, ping and
// pong frame pushes it forward; a half-open peer trips it and forces a
// reconnect. Var so tests can shorten it.
var readDeadline = 35 * time.Second

// physConn is one physical websocket connection carrying a group of topics.
// It reconnects independently with its own attempt counter.
type physConn struct {
	sess *Session
	id   int
	log  *logger.Entry

	mu       sync.Mutex
	topics   []string
	ws       *websocket.Conn
	state    models.SessionState
	attempts int
	stopped  bool
	stopCh   chan struct{}
}

func newPhysConn(s *Session, id int, topics []string) *physConn {
	return &physConn{
		sess: s,
		id:   id,
		log: s.log.WithComponent("session").WithFields(logger.Fields{
			"venue": s.dialect.Venue(),
			"conn":  id,
		}),
		topics: topics,
		state:  models.SessionDisconnected,
		stopCh: make(chan struct{}),
	}
}

func (c *physConn) topicsSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.topics))
	copy(out, c.topics)
	return out
}

func (c *physConn) currentState() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *physConn) setState(next models.SessionState) {
	c.mu.Lock()
	changed := c.state != next
	c.state = next
	c.mu.Unlock()
	if changed {
		c.sess.onConnStateChange()
	}
}

// stop tears the connection down permanently. Safe to call more than once.
func (c *physConn) stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

func (c *physConn) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// applyTopicDiff updates the topic group in place by sending incremental
// subscribe/unsubscribe frames. Returns false when the dialect embeds topics
// in the URL or the connection is not open, in which case the caller replaces
// the connection instead.
func (c *physConn) applyTopicDiff(newTopics []string) bool {
	c.mu.Lock()
	ws := c.ws
	old := c.topics
	c.mu.Unlock()

	if ws == nil {
		// not open: just adopt the group, the next dial uses it
		c.mu.Lock()
		c.topics = newTopics
		c.mu.Unlock()
		return true
	}

	oldSet := make(map[string]struct{}, len(old))
	for _, t := range old {
		oldSet[t] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newTopics))
	for _, t := range newTopics {
		newSet[t] = struct{}{}
	}

	var added, removed []string
	for _, t := range newTopics {
		if _, ok := oldSet[t]; !ok {
			added = append(added, t)
		}
	}
	for _, t := range old {
		if _, ok := newSet[t]; !ok {
			removed = append(removed, t)
		}
	}

	var frames [][]byte
	if len(added) > 0 {
		sub := c.sess.dialect.SubscribeFrames(added)
		if sub == nil {
			return false
		}
		frames = append(frames, sub...)
	}
	if len(removed) > 0 {
		unsub := c.sess.dialect.UnsubscribeFrames(removed)
		if unsub == nil {
			return false
		}
		frames = append(frames, unsub...)
	}

	if err := c.sess.writeFrames(c.sess.ctx, ws, frames); err != nil {
		c.log.WithError(err).Warn("failed to send subscription diff")
		return false
	}

	c.mu.Lock()
	c.topics = newTopics
	c.mu.Unlock()
	return true
}

// run is the connection lifecycle loop: dial, subscribe, read until failure,
// back off, repeat. Exceeding the reconnect cap parks the connection in the
// terminal error state.
func (c *physConn) run(ctx context.Context) {
	defer c.sess.wg.Done()

	for {
		if ctx.Err() != nil || c.isStopped() {
			c.setState(models.SessionDisconnected)
			return
		}

		c.setState(models.SessionConnecting)

		topics := c.topicsSnapshot()
		url := c.sess.dialect.DialURL(c.sess.wsURL, topics)

		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			if !c.retryAfterFailure(ctx, err) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.attempts = 0
		c.mu.Unlock()

		c.armRead(ws)

		if frames := c.sess.dialect.SubscribeFrames(topics); frames != nil {
			if err := c.sess.writeFrames(ctx, ws, frames); err != nil {
				c.log.WithError(err).Warn("failed to subscribe after connect")
				c.detach(ws)
				if !c.retryAfterFailure(ctx, err) {
					return
				}
				continue
			}
		}

		c.setState(models.SessionConnected)
		c.log.WithFields(logger.Fields{"topics": len(topics)}).Info("connection established")

		pingDone := c.startPing(ctx, ws)

		readErr := c.readLoop(ctx, ws)
		close(pingDone)
		c.detach(ws)

		if ctx.Err() != nil || c.isStopped() {
			c.setState(models.SessionDisconnected)
			return
		}

		c.setState(models.SessionReconnecting)
		if readErr != nil {
			c.log.WithError(readErr).Warn("websocket read loop ended, reconnecting")
		}
		if !c.retryAfterFailure(ctx, readErr) {
			return
		}
	}
}

func (c *physConn) detach(ws *websocket.Conn) {
	ws.Close()
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
}

// retryAfterFailure increments the attempt counter and sleeps for the backoff
// delay. It returns false when the cap is exceeded (terminal) or the
// connection is being shut down.
func (c *physConn) retryAfterFailure(ctx context.Context, err error) bool {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	c.sess.recordReconnect(err)

	if attempt > c.sess.cfg.MaxReconnectAttempts {
		c.log.WithFields(logger.Fields{"attempts": attempt - 1}).Error("reconnect attempts exhausted")
		c.setState(models.SessionError)
		return false
	}

	delay := BackoffDelay(attempt,
		time.Duration(c.sess.cfg.ReconnectBaseDelayMs)*time.Millisecond,
		time.Duration(c.sess.cfg.ReconnectMaxDelayMs)*time.Millisecond)

	c.log.WithFields(logger.Fields{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	}).Info("scheduling reconnect")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// startPing launches the client heartbeat loop for venues that require one.
// Venues that heartbeat on their own get nothing; the websocket library
// answers their pings automatically.
func (c *physConn) startPing(ctx context.Context, ws *websocket.Conn) chan struct{} {
	done := make(chan struct{})
	frame := c.sess.dialect.PingFrame()
	if frame == nil {
		return done
	}

	interval := time.Duration(c.sess.cfg.HeartbeatIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 20 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}
	}()
	return done
}

// armRead installs the read deadline and the control handlers that refresh
// it, so a dead peer surfaces as a read timeout instead of a hang.
func (c *physConn) armRead(ws *websocket.Conn) {
	ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(readDeadline))
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
}

// readLoop pulls messages until the connection fails. Malformed frames are
// dropped and logged; they never terminate the loop.
func (c *physConn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		ws.SetReadDeadline(time.Now().Add(readDeadline))

		frames, err := c.sess.dialect.Decode(msg)
		if err != nil {
			c.log.WithError(err).Debug("dropping malformed frame")
			continue
		}
		if len(frames) == 0 {
			continue
		}

		c.sess.recordFrame(len(msg))
		for _, frame := range frames {
			if !c.sess.channels.SendRaw(ctx, frame) && ctx.Err() == nil {
				c.log.Warn("raw channel full, dropping frame")
			}
		}
	}
}
