// Package bybit implements the control-frame websocket dialect: one shared
// feed per connection, explicit subscribe/unsubscribe messages and a client
// initiated ping.
package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"surgeflow/models"
)

const Venue = "bybit"

const fundingIntervalHours = "8"

type Dialect struct{}

func New() *Dialect { return &Dialect{} }

func (d *Dialect) Venue() string { return Venue }

// Topics derives the v5 public topics for each symbol. The tickers topic
// carries price, funding, open interest and best book in one fragment;
// publicTrade supplies taker executions.
func (d *Dialect) Topics(symbols []string) []string {
	topics := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		topics = append(topics,
			"tickers."+s,
			"publicTrade."+s,
		)
	}
	return topics
}

// DialURL returns the base URL unchanged: topics travel in control frames.
func (d *Dialect) DialURL(base string, topics []string) string { return base }

type opFrame struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

func (d *Dialect) SubscribeFrames(topics []string) [][]byte {
	if len(topics) == 0 {
		return [][]byte{}
	}
	frame, _ := json.Marshal(opFrame{Op: "subscribe", Args: topics})
	return [][]byte{frame}
}

func (d *Dialect) UnsubscribeFrames(topics []string) [][]byte {
	if len(topics) == 0 {
		return [][]byte{}
	}
	frame, _ := json.Marshal(opFrame{Op: "unsubscribe", Args: topics})
	return [][]byte{frame}
}

func (d *Dialect) PingFrame() []byte {
	frame, _ := json.Marshal(opFrame{Op: "ping"})
	return frame
}

type envelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	TS    int64           `json:"ts"`
	Op    string          `json:"op"`
}

// tickerPayload mirrors the v5 tickers fragment. Delta messages omit
// unchanged fields, so everything is a pointer: only fields present on the
// wire end up in the raw frame and the normalizer merges them with its
// per-instrument cache.
type tickerPayload struct {
	Symbol          string  `json:"symbol"`
	LastPrice       *string `json:"lastPrice"`
	MarkPrice       *string `json:"markPrice"`
	IndexPrice      *string `json:"indexPrice"`
	Bid1Price       *string `json:"bid1Price"`
	Bid1Size        *string `json:"bid1Size"`
	Ask1Price       *string `json:"ask1Price"`
	Ask1Size        *string `json:"ask1Size"`
	FundingRate     *string `json:"fundingRate"`
	NextFundingTime *string `json:"nextFundingTime"`
	Volume24h       *string `json:"volume24h"`
	Turnover24h     *string `json:"turnover24h"`
	OpenInterest    *string `json:"openInterest"`
	HighPrice24h    *string `json:"highPrice24h"`
	LowPrice24h     *string `json:"lowPrice24h"`
	Price24hPcnt    *string `json:"price24hPcnt"`
}

type tradePayload struct {
	TradeTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Size      string `json:"v"`
	Price     string `json:"p"`
}

// Decode parses one message. Subscription acks and pong responses decode to
// nothing. A tickers message yields up to three raw frames, one per fragment
// kind it carries, so the normalizer's fragment cache sees the same shapes
// from every venue.
func (d *Dialect) Decode(data []byte) ([]models.RawFrame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Op != "" || env.Topic == "" || len(env.Data) == 0 {
		// ack, pong or other control traffic
		return nil, nil
	}

	now := time.Now().UTC()

	switch {
	case strings.HasPrefix(env.Topic, "tickers."):
		var p tickerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid ticker payload: %w", err)
		}
		if p.Symbol == "" {
			return nil, fmt.Errorf("ticker payload missing symbol")
		}
		return d.tickerFrames(env.Topic, &p, env.TS, now), nil

	case strings.HasPrefix(env.Topic, "publicTrade."):
		var trades []tradePayload
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			return nil, fmt.Errorf("invalid trade payload: %w", err)
		}
		frames := make([]models.RawFrame, 0, len(trades))
		for _, t := range trades {
			if t.Symbol == "" {
				continue
			}
			frames = append(frames, models.RawFrame{
				Venue:       Venue,
				Topic:       env.Topic,
				Kind:        models.FrameTrade,
				VenueSymbol: t.Symbol,
				Fields: map[string]string{
					"price":      t.Price,
					"quantity":   t.Size,
					"side":       strings.ToLower(t.Side),
					"trade_time": strconv.FormatInt(t.TradeTime, 10),
				},
				ReceivedAt: now,
			})
		}
		return frames, nil
	}

	return nil, nil
}

func (d *Dialect) tickerFrames(topic string, p *tickerPayload, ts int64, now time.Time) []models.RawFrame {
	eventTime := strconv.FormatInt(ts, 10)

	ticker := map[string]string{"event_time": eventTime}
	put(ticker, "last_price", p.LastPrice)
	put(ticker, "high_24h", p.HighPrice24h)
	put(ticker, "low_24h", p.LowPrice24h)
	put(ticker, "volume_24h", p.Volume24h)
	put(ticker, "quote_volume_24h", p.Turnover24h)
	put(ticker, "open_interest", p.OpenInterest)
	if p.Price24hPcnt != nil {
		// bybit reports the 24h move as a fraction, not a percentage
		if v, err := strconv.ParseFloat(*p.Price24hPcnt, 64); err == nil {
			ticker["price_change_pct_24h"] = strconv.FormatFloat(v*100, 'f', -1, 64)
		}
	}

	mark := map[string]string{"event_time": eventTime, "funding_interval_hours": fundingIntervalHours}
	put(mark, "mark_price", p.MarkPrice)
	put(mark, "index_price", p.IndexPrice)
	put(mark, "funding_rate", p.FundingRate)
	put(mark, "next_funding_time", p.NextFundingTime)

	book := map[string]string{}
	put(book, "bid_price", p.Bid1Price)
	put(book, "bid_size", p.Bid1Size)
	put(book, "ask_price", p.Ask1Price)
	put(book, "ask_size", p.Ask1Size)

	var frames []models.RawFrame
	if len(ticker) > 1 {
		frames = append(frames, models.RawFrame{
			Venue: Venue, Topic: topic, Kind: models.FrameTicker,
			VenueSymbol: p.Symbol, Fields: ticker, ReceivedAt: now,
		})
	}
	if len(mark) > 2 {
		frames = append(frames, models.RawFrame{
			Venue: Venue, Topic: topic, Kind: models.FrameMarkPrice,
			VenueSymbol: p.Symbol, Fields: mark, ReceivedAt: now,
		})
	}
	if len(book) > 0 {
		frames = append(frames, models.RawFrame{
			Venue: Venue, Topic: topic, Kind: models.FrameBookTicker,
			VenueSymbol: p.Symbol, Fields: book, ReceivedAt: now,
		})
	}
	return frames
}

func put(m map[string]string, key string, v *string) {
	if v != nil && *v != "" {
		m[key] = *v
	}
}
