package session

import (
	"surgeflow/models"
)

// Dialect abstracts one venue's websocket conventions so the session core can
// stay venue-agnostic. Two shapes exist: combined streams where the topic set
// is embedded in the connection URL, and control-frame venues that accept
// subscribe/unsubscribe messages on a shared feed.
type Dialect interface {
	Venue() string

	// Topics derives the stream topic names for a set of venue symbols.
	Topics(symbols []string) []string

	// DialURL builds the endpoint for one topic group. Combined-stream
	// venues embed the topics; control-frame venues return the base URL
	// unchanged.
	DialURL(base string, topics []string) string

	// SubscribeFrames returns the control frames that subscribe the given
	// topics on an open connection. Nil for URL-embedded venues, which
	// must re-dial instead.
	SubscribeFrames(topics []string) [][]byte

	// UnsubscribeFrames mirrors SubscribeFrames for removal.
	UnsubscribeFrames(topics []string) [][]byte

	// PingFrame returns the client heartbeat payload, or nil when the
	// venue heartbeats on its own and only needs passive monitoring.
	PingFrame() []byte

	// Decode parses one inbound message into raw frames. Control
	// messages (acks, pongs) decode to zero frames and no error.
	Decode(data []byte) ([]models.RawFrame, error)
}
