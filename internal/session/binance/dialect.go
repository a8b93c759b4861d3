// Package binance implements the combined-stream websocket dialect: the
// subscribed topic set is embedded in the connection URL and changing it
// requires re-dialling.
package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"surgeflow/models"
)

const Venue = "binance"

// fundingIntervalHours is fixed for the linear perpetuals consumed here.
const fundingIntervalHours = "8"

type Dialect struct{}

func New() *Dialect { return &Dialect{} }

func (d *Dialect) Venue() string { return Venue }

// Topics derives the combined-stream names for each symbol: 24h ticker, mark
// price, best book and aggregated trades.
func (d *Dialect) Topics(symbols []string) []string {
	topics := make([]string, 0, len(symbols)*4)
	for _, s := range symbols {
		lower := strings.ToLower(s)
		topics = append(topics,
			lower+"@ticker",
			lower+"@markPrice@1s",
			lower+"@bookTicker",
			lower+"@aggTrade",
		)
	}
	return topics
}

func (d *Dialect) DialURL(base string, topics []string) string {
	if len(topics) == 0 {
		return base
	}
	return base + "?streams=" + strings.Join(topics, "/")
}

// SubscribeFrames returns nil: this venue takes its topic set from the URL.
func (d *Dialect) SubscribeFrames(topics []string) [][]byte { return nil }

func (d *Dialect) UnsubscribeFrames(topics []string) [][]byte { return nil }

// PingFrame returns nil: the venue pings the client and the websocket layer
// answers with pongs on its own.
func (d *Dialect) PingFrame() []byte { return nil }

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tickerPayload struct {
	EventType      string `json:"e"`
	Symbol         string `json:"s"`
	LastPrice      string `json:"c"`
	High24h        string `json:"h"`
	Low24h         string `json:"l"`
	Volume24h      string `json:"v"`
	QuoteVolume24h string `json:"q"`
	ChangePct24h   string `json:"P"`
	EventTime      int64  `json:"E"`
}

type markPricePayload struct {
	EventType       string `json:"e"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
	EventTime       int64  `json:"E"`
}

type bookTickerPayload struct {
	Symbol  string `json:"s"`
	Bid     string `json:"b"`
	BidSize string `json:"B"`
	Ask     string `json:"a"`
	AskSize string `json:"A"`
	EventTime int64 `json:"E"`
}

type aggTradePayload struct {
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	BuyerIsMaker bool   `json:"m"`
	TradeTime    int64  `json:"T"`
}

// Decode parses one combined-stream message into a raw frame. Unknown stream
// suffixes decode to nothing; structurally invalid payloads are an error so
// the session can drop and count them.
func (d *Dialect) Decode(data []byte) ([]models.RawFrame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Stream == "" || len(env.Data) == 0 {
		// control/ack traffic
		return nil, nil
	}

	now := time.Now().UTC()

	switch {
	case strings.HasSuffix(env.Stream, "@ticker"):
		var p tickerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid ticker payload: %w", err)
		}
		if p.Symbol == "" {
			return nil, fmt.Errorf("ticker payload missing symbol")
		}
		return []models.RawFrame{{
			Venue:       Venue,
			Topic:       env.Stream,
			Kind:        models.FrameTicker,
			VenueSymbol: p.Symbol,
			Fields: map[string]string{
				"last_price":           p.LastPrice,
				"high_24h":             p.High24h,
				"low_24h":              p.Low24h,
				"volume_24h":           p.Volume24h,
				"quote_volume_24h":     p.QuoteVolume24h,
				"price_change_pct_24h": p.ChangePct24h,
				"event_time":           strconv.FormatInt(p.EventTime, 10),
			},
			ReceivedAt: now,
		}}, nil

	case strings.Contains(env.Stream, "@markPrice"):
		var p markPricePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid mark price payload: %w", err)
		}
		if p.Symbol == "" {
			return nil, fmt.Errorf("mark price payload missing symbol")
		}
		return []models.RawFrame{{
			Venue:       Venue,
			Topic:       env.Stream,
			Kind:        models.FrameMarkPrice,
			VenueSymbol: p.Symbol,
			Fields: map[string]string{
				"mark_price":             p.MarkPrice,
				"index_price":            p.IndexPrice,
				"funding_rate":           p.FundingRate,
				"next_funding_time":      strconv.FormatInt(p.NextFundingTime, 10),
				"funding_interval_hours": fundingIntervalHours,
				"event_time":             strconv.FormatInt(p.EventTime, 10),
			},
			ReceivedAt: now,
		}}, nil

	case strings.HasSuffix(env.Stream, "@bookTicker"):
		var p bookTickerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid book ticker payload: %w", err)
		}
		if p.Symbol == "" {
			return nil, fmt.Errorf("book ticker payload missing symbol")
		}
		return []models.RawFrame{{
			Venue:       Venue,
			Topic:       env.Stream,
			Kind:        models.FrameBookTicker,
			VenueSymbol: p.Symbol,
			Fields: map[string]string{
				"bid_price": p.Bid,
				"bid_size":  p.BidSize,
				"ask_price": p.Ask,
				"ask_size":  p.AskSize,
			},
			ReceivedAt: now,
		}}, nil

	case strings.HasSuffix(env.Stream, "@aggTrade"):
		var p aggTradePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid trade payload: %w", err)
		}
		if p.Symbol == "" {
			return nil, fmt.Errorf("trade payload missing symbol")
		}
		side := "buy"
		if p.BuyerIsMaker {
			side = "sell"
		}
		return []models.RawFrame{{
			Venue:       Venue,
			Topic:       env.Stream,
			Kind:        models.FrameTrade,
			VenueSymbol: p.Symbol,
			Fields: map[string]string{
				"price":      p.Price,
				"quantity":   p.Quantity,
				"side":       side,
				"trade_time": strconv.FormatInt(p.TradeTime, 10),
			},
			ReceivedAt: now,
		}}, nil
	}

	return nil, nil
}
