package models

import (
	"time"
)

// FrameKind tags the decoded payload variant of an inbound websocket message.
type FrameKind string

const (
	FrameTicker     FrameKind = "ticker"
	FrameMarkPrice  FrameKind = "mark_price"
	FrameBookTicker FrameKind = "book_ticker"
	FrameTrade      FrameKind = "trade"
	FrameControl    FrameKind = "control"
)

// Trade is a normalized taker execution, used to feed the volume windows.
type Trade struct {
	Venue     string
	Symbol    string
	Price     float64
	Quantity  float64
	IsBuy     bool
	Timestamp time.Time
}

// RawFrame is one validated inbound message from a venue websocket, decoded
// out of the venue envelope but not yet normalized. Numeric values stay as the
// venue's strings; the normalizer owns parsing and validation.
type RawFrame struct {
	Venue       string
	Topic       string
	Kind        FrameKind
	VenueSymbol string
	Fields      map[string]string
	ReceivedAt  time.Time
}

// SessionState is the lifecycle state of one logical venue session.
type SessionState string

const (
	SessionDisconnected SessionState = "disconnected"
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
	SessionReconnecting SessionState = "reconnecting"
	SessionError        SessionState = "error"
)

// SessionEvent is emitted on every aggregate state transition of a session.
type SessionEvent struct {
	Venue     string
	State     SessionState
	Err       error
	Timestamp time.Time
}
