package broadcast

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"surgeflow/models"
)

const clientSendBuffer = 64

// client is one downstream websocket consumer. The hub talks to it only
// through the buffered send channel; a slow consumer drops messages rather
// than stalling a flush.
type client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	send chan models.ServerMessage
	seq  uint64

	mu           sync.Mutex
	subs         map[string]struct{}
	awaitingPong bool
	closed       bool
}

func newClient(hub *Hub, conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		hub:  hub,
		send: make(chan models.ServerMessage, clientSendBuffer),
		subs: make(map[string]struct{}),
	}
}

func (c *client) subscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if ch == "" {
			continue
		}
		c.subs[ch] = struct{}{}
	}
}

func (c *client) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.subs, ch)
	}
}

// subscribedTo reports whether a message on channel should be delivered to
// this client. The wildcard matches every channel.
func (c *client) subscribedTo(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[models.ChannelWildcard]; ok {
		return true
	}
	_, ok := c.subs[channel]
	return ok
}

// enqueue hands a message to the client without blocking. Returns false when
// the client is gone or its buffer is full and the message was dropped.
func (c *client) enqueue(msg models.ServerMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// markProbe records a liveness probe. Returns false when the previous probe
// was never acknowledged, meaning the client is dead.
func (c *client) markProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.awaitingPong {
		return false
	}
	c.awaitingPong = true
	return true
}

func (c *client) ackProbe() {
	c.mu.Lock()
	c.awaitingPong = false
	c.mu.Unlock()
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.send)
	if c.conn != nil {
		c.conn.Close()
	}
}

// readLoop consumes client frames until the connection dies.
func (c *client) readLoop() {
	defer c.hub.remove(c)

	c.conn.SetPongHandler(func(string) error {
		c.ackProbe()
		return nil
	})

	for {
		var msg models.ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg models.ClientMessage) {
	switch strings.ToLower(msg.Action) {
	case models.ActionSubscribe:
		c.subscribe(msg.Channels)
		c.enqueue(models.ServerMessage{
			Channel: models.ChannelControl,
			Event:   models.EventSubscribe,
			Data:    msg.Channels,
		})
	case models.ActionUnsubscribe:
		c.unsubscribe(msg.Channels)
		c.enqueue(models.ServerMessage{
			Channel: models.ChannelControl,
			Event:   models.EventUnsubscribe,
			Data:    msg.Channels,
		})
	case models.ActionPing:
		c.enqueue(models.ServerMessage{
			Channel: models.ChannelControl,
			Event:   models.EventPong,
		})
	default:
		c.enqueue(models.ServerMessage{
			Channel: models.ChannelControl,
			Event:   models.EventError,
			Data:    "unknown action: " + msg.Action,
		})
	}
}

// writeLoop drains the send channel, stamping the per-connection sequence
// and timestamp on the way out.
func (c *client) writeLoop() {
	for msg := range c.send {
		c.seq++
		msg.Sequence = c.seq
		msg.Timestamp = time.Now().UnixMilli()
		if err := c.conn.WriteJSON(msg); err != nil {
			c.hub.remove(c)
			return
		}
	}
}

func (c *client) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}
