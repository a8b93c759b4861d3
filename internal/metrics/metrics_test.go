package metrics

import (
	"testing"
)

func TestCountersSafeAfterInit(t *testing.T) {
	Init("")

	IncrementFrame("binance", "ticker")
	IncrementDropped()
	IncrementRejected("bybit")
	IncrementSnapshot("binance")
	IncrementReconnect("bybit")
	AddBroadcasts(3)
	SetInstruments(42)
	SetConsumers(2)
}

func TestZeroAddIsNoOp(t *testing.T) {
	Init("")
	AddBroadcasts(0)
}
