package universe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	futures "github.com/adshao/go-binance/v2/futures"

	"surgeflow/config"
	"surgeflow/internal/symbols"
)

func venuesConfig(bybitURL string) config.VenuesConfig {
	return config.VenuesConfig{
		Binance: config.VenueConfig{
			Enabled: true,
			Symbols: []string{"BTCUSDT", "ETHUSDT"},
		},
		Bybit: config.VenueConfig{
			Enabled: true,
			RestURL: bybitURL,
			Symbols: []string{"BTCUSDT"},
		},
	}
}

func TestStaticFallbackOnFetchFailure(t *testing.T) {
	f := NewFetcher(venuesConfig("http://127.0.0.1:1"))
	f.binanceInfo = func(ctx context.Context) (*futures.ExchangeInfo, error) {
		return nil, fmt.Errorf("network down")
	}

	registry := symbols.NewRegistry()
	out := f.Load(context.Background(), registry)

	binance := out["binance"]
	if len(binance) != 2 {
		t.Fatalf("expected 2 static binance instruments, got %d", len(binance))
	}
	if binance[0].Symbol != "BTC-USDT-PERP" || !binance[0].IsActive {
		t.Errorf("unexpected static instrument: %+v", binance[0])
	}
	if got := registry.Lookup("binance", "BTCUSDT"); got != "BTC-USDT-PERP" {
		t.Errorf("registry lookup = %s", got)
	}

	if len(out["bybit"]) != 1 {
		t.Fatalf("expected 1 static bybit instrument, got %d", len(out["bybit"]))
	}
}

func TestFetchBinanceFiltersPerpetuals(t *testing.T) {
	f := NewFetcher(venuesConfig(""))
	f.binanceInfo = func(ctx context.Context) (*futures.ExchangeInfo, error) {
		return &futures.ExchangeInfo{
			Symbols: []futures.Symbol{
				{Symbol: "BTCUSDT", ContractType: "PERPETUAL", Status: "TRADING", BaseAsset: "BTC", QuoteAsset: "USDT"},
				{Symbol: "BTCUSDT_240927", ContractType: "CURRENT_QUARTER", Status: "TRADING", BaseAsset: "BTC", QuoteAsset: "USDT"},
				{Symbol: "OLDUSDT", ContractType: "PERPETUAL", Status: "SETTLING", BaseAsset: "OLD", QuoteAsset: "USDT"},
			},
		}, nil
	}

	ins, err := f.fetchBinance(context.Background())
	if err != nil {
		t.Fatalf("fetchBinance: %v", err)
	}
	if len(ins) != 2 {
		t.Fatalf("expected perpetuals only, got %d", len(ins))
	}
	if ins[0].Symbol != "BTC-USDT-PERP" || !ins[0].IsActive {
		t.Errorf("unexpected instrument: %+v", ins[0])
	}
	if ins[1].IsActive {
		t.Error("non-TRADING status must not be active")
	}
}

func TestFetchBybitParsesInstrumentsInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/instruments-info" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BTCUSDT","contractType":"LinearPerpetual","status":"Trading","baseCoin":"BTC","quoteCoin":"USDT"},
			{"symbol":"BTCUSDT-26SEP26","contractType":"LinearFutures","status":"Trading","baseCoin":"BTC","quoteCoin":"USDT"}
		]}}`)
	}))
	defer srv.Close()

	f := NewFetcher(venuesConfig(srv.URL))
	ins, err := f.fetchBybit(context.Background())
	if err != nil {
		t.Fatalf("fetchBybit: %v", err)
	}
	if len(ins) != 1 {
		t.Fatalf("expected linear perpetuals only, got %d", len(ins))
	}
	if ins[0].VenueSymbol != "BTCUSDT" || ins[0].Symbol != "BTC-USDT-PERP" {
		t.Errorf("unexpected instrument: %+v", ins[0])
	}
}

func TestFetchBybitRejectsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10001,"retMsg":"params error","result":{"list":[]}}`)
	}))
	defer srv.Close()

	f := NewFetcher(venuesConfig(srv.URL))
	if _, err := f.fetchBybit(context.Background()); err == nil {
		t.Fatal("expected error for non-zero retCode")
	}
}

func TestActiveVenueSymbols(t *testing.T) {
	ins := staticInstruments("binance", []string{"BTCUSDT", "ETHUSDT"})
	ins[1].IsActive = false
	got := ActiveVenueSymbols(ins)
	if len(got) != 1 || got[0] != "BTCUSDT" {
		t.Errorf("ActiveVenueSymbols = %v", got)
	}
}
