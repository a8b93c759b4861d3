package models

// ClientMessage is the downstream client -> server frame.
type ClientMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
}

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// ServerMessage is the downstream server -> client frame. Sequence increases
// monotonically per connection.
type ServerMessage struct {
	Channel   string      `json:"channel"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Sequence  uint64      `json:"sequence"`
}

const (
	EventUpdate      = "update"
	EventSnapshot    = "snapshot"
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventError       = "error"
	EventPong        = "pong"
)

// Channel names understood by the broadcaster.
const (
	ChannelMarkets     = "markets"
	ChannelSignals     = "signals"
	ChannelControl     = "control"
	ChannelWildcard    = "*"
	ChannelMarketsPfx  = "markets:"
	ChannelLeaderboard = "leaderboard:"
)
