package bybit

import (
	"encoding/json"
	"testing"

	"surgeflow/models"
)

func TestTopicsAndFrames(t *testing.T) {
	d := New()
	topics := d.Topics([]string{"BTCUSDT"})
	want := []string{"tickers.BTCUSDT", "publicTrade.BTCUSDT"}
	if len(topics) != len(want) {
		t.Fatalf("expected %d topics, got %d", len(want), len(topics))
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topic %d = %s, want %s", i, topics[i], want[i])
		}
	}

	frames := d.SubscribeFrames(topics)
	if len(frames) != 1 {
		t.Fatalf("expected a single subscribe frame, got %d", len(frames))
	}
	var op opFrame
	if err := json.Unmarshal(frames[0], &op); err != nil {
		t.Fatalf("unmarshal subscribe frame: %v", err)
	}
	if op.Op != "subscribe" || len(op.Args) != 2 {
		t.Fatalf("unexpected subscribe frame: %+v", op)
	}

	var ping opFrame
	if err := json.Unmarshal(d.PingFrame(), &ping); err != nil {
		t.Fatalf("unmarshal ping frame: %v", err)
	}
	if ping.Op != "ping" {
		t.Fatalf("ping op = %s", ping.Op)
	}
}

func TestDecodeTickerSnapshot(t *testing.T) {
	d := New()
	msg := `{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1700000000000,"data":{
		"symbol":"BTCUSDT","lastPrice":"42000.5","markPrice":"42001.1","indexPrice":"42000.9",
		"bid1Price":"41999.9","bid1Size":"3.2","ask1Price":"42000.1","ask1Size":"1.7",
		"fundingRate":"0.0001","nextFundingTime":"1700028800000",
		"volume24h":"12345.6","turnover24h":"520000000","openInterest":"8000",
		"highPrice24h":"43000","lowPrice24h":"41000","price24hPcnt":"0.0245"}}`

	frames, err := d.Decode([]byte(msg))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected ticker, mark price and book frames, got %d", len(frames))
	}

	byKind := map[models.FrameKind]models.RawFrame{}
	for _, f := range frames {
		if f.VenueSymbol != "BTCUSDT" || f.Venue != Venue {
			t.Fatalf("unexpected frame identity: %+v", f)
		}
		byKind[f.Kind] = f
	}

	ticker := byKind[models.FrameTicker]
	if ticker.Fields["last_price"] != "42000.5" {
		t.Errorf("last_price = %s", ticker.Fields["last_price"])
	}
	if ticker.Fields["price_change_pct_24h"] != "2.45" {
		t.Errorf("price_change_pct_24h = %s, want fraction scaled to percent", ticker.Fields["price_change_pct_24h"])
	}
	if ticker.Fields["open_interest"] != "8000" {
		t.Errorf("open_interest = %s", ticker.Fields["open_interest"])
	}

	mark := byKind[models.FrameMarkPrice]
	if mark.Fields["funding_rate"] != "0.0001" || mark.Fields["funding_interval_hours"] != "8" {
		t.Errorf("unexpected mark fields: %v", mark.Fields)
	}
	if mark.Fields["next_funding_time"] != "1700028800000" {
		t.Errorf("next_funding_time = %s", mark.Fields["next_funding_time"])
	}

	book := byKind[models.FrameBookTicker]
	if book.Fields["bid_price"] != "41999.9" || book.Fields["ask_size"] != "1.7" {
		t.Errorf("unexpected book fields: %v", book.Fields)
	}
}

func TestDecodeTickerDeltaOmitsAbsentFields(t *testing.T) {
	d := New()
	msg := `{"topic":"tickers.BTCUSDT","type":"delta","ts":1700000001000,"data":{"symbol":"BTCUSDT","lastPrice":"42010"}}`

	frames, err := d.Decode([]byte(msg))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected only a ticker frame from a price-only delta, got %d", len(frames))
	}
	f := frames[0]
	if f.Kind != models.FrameTicker {
		t.Fatalf("expected ticker frame, got %s", f.Kind)
	}
	if f.Fields["last_price"] != "42010" {
		t.Errorf("last_price = %s", f.Fields["last_price"])
	}
	if _, ok := f.Fields["volume_24h"]; ok {
		t.Error("delta should not carry fields absent from the wire")
	}
}

func TestDecodeTrades(t *testing.T) {
	d := New()
	msg := `{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1700000000000,"data":[
		{"T":1700000000001,"s":"BTCUSDT","S":"Buy","v":"0.5","p":"42000"},
		{"T":1700000000002,"s":"BTCUSDT","S":"Sell","v":"1.2","p":"41999"}]}`

	frames, err := d.Decode([]byte(msg))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 trade frames, got %d", len(frames))
	}
	if frames[0].Fields["side"] != "buy" || frames[1].Fields["side"] != "sell" {
		t.Errorf("sides = %s/%s", frames[0].Fields["side"], frames[1].Fields["side"])
	}
	if frames[0].Fields["quantity"] != "0.5" || frames[1].Fields["price"] != "41999" {
		t.Errorf("unexpected trade fields: %v %v", frames[0].Fields, frames[1].Fields)
	}
}

func TestDecodeIgnoresAcks(t *testing.T) {
	d := New()
	for _, msg := range []string{
		`{"success":true,"op":"subscribe","conn_id":"abc"}`,
		`{"op":"pong"}`,
	} {
		frames, err := d.Decode([]byte(msg))
		if err != nil {
			t.Fatalf("Decode(%s): %v", msg, err)
		}
		if frames != nil {
			t.Fatalf("expected no frames for %s", msg)
		}
	}
}
