// Package universe resolves the active instrument set per venue. It fetches
// venue REST metadata once at startup and falls back to the configured static
// symbol list, so a venue REST outage never blocks ingestion.
package universe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"surgeflow/config"
	"surgeflow/internal/symbols"
	"surgeflow/logger"
	"surgeflow/models"
)

const fetchTimeout = 10 * time.Second

type Fetcher struct {
	cfg        config.VenuesConfig
	log        *logger.Log
	httpClient *http.Client

	// binanceInfo allows tests to stub the exchange-info call.
	binanceInfo func(ctx context.Context) (*futures.ExchangeInfo, error)
}

func NewFetcher(cfg config.VenuesConfig) *Fetcher {
	client := futures.NewClient("", "")
	return &Fetcher{
		cfg:        cfg,
		log:        logger.GetLogger(),
		httpClient: &http.Client{Timeout: fetchTimeout},
		binanceInfo: func(ctx context.Context) (*futures.ExchangeInfo, error) {
			return client.NewExchangeInfoService().Do(ctx)
		},
	}
}

// Load fetches every enabled venue's instruments and registers them. REST
// failures degrade to the static symbol list from configuration; the venue
// still starts.
func (f *Fetcher) Load(ctx context.Context, registry *symbols.Registry) map[string][]models.Instrument {
	out := make(map[string][]models.Instrument)

	if f.cfg.Binance.Enabled {
		ins, err := f.fetchBinance(ctx)
		if err != nil {
			f.log.WithComponent("universe").WithError(err).Warn("binance universe fetch failed, using static symbols")
			ins = staticInstruments("binance", f.cfg.Binance.Symbols)
		}
		register(registry, ins)
		out["binance"] = ins
	}
	if f.cfg.Bybit.Enabled {
		ins, err := f.fetchBybit(ctx)
		if err != nil {
			f.log.WithComponent("universe").WithError(err).Warn("bybit universe fetch failed, using static symbols")
			ins = staticInstruments("bybit", f.cfg.Bybit.Symbols)
		}
		register(registry, ins)
		out["bybit"] = ins
	}

	for venue, ins := range out {
		f.log.WithComponent("universe").WithFields(logger.Fields{
			"venue":       venue,
			"instruments": len(ins),
		}).Info("instrument universe loaded")
	}
	return out
}

func (f *Fetcher) fetchBinance(ctx context.Context) ([]models.Instrument, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	info, err := f.binanceInfo(ctx)
	if err != nil {
		return nil, err
	}

	ins := make([]models.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.ContractType != "PERPETUAL" {
			continue
		}
		active := s.Status == "TRADING"
		ins = append(ins, models.Instrument{
			Venue:       "binance",
			VenueSymbol: s.Symbol,
			Symbol:      symbols.Canonical(s.BaseAsset, s.QuoteAsset),
			BaseAsset:   s.BaseAsset,
			QuoteAsset:  s.QuoteAsset,
			IsActive:    active,
		})
	}
	if len(ins) == 0 {
		return nil, fmt.Errorf("exchange info returned no perpetuals")
	}
	return ins, nil
}

// bybit instruments-info response, v5 linear category.
type bybitInstrumentsResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol       string `json:"symbol"`
			ContractType string `json:"contractType"`
			Status       string `json:"status"`
			BaseCoin     string `json:"baseCoin"`
			QuoteCoin    string `json:"quoteCoin"`
		} `json:"list"`
	} `json:"result"`
}

func (f *Fetcher) fetchBybit(ctx context.Context) ([]models.Instrument, error) {
	base := strings.TrimRight(f.cfg.Bybit.RestURL, "/")
	if base == "" {
		return nil, fmt.Errorf("bybit rest url not configured")
	}
	url := base + "/v5/market/instruments-info?category=linear&limit=1000"

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instruments-info returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var parsed bybitInstrumentsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("invalid instruments-info payload: %w", err)
	}
	if parsed.RetCode != 0 {
		return nil, fmt.Errorf("instruments-info error %d: %s", parsed.RetCode, parsed.RetMsg)
	}

	ins := make([]models.Instrument, 0, len(parsed.Result.List))
	for _, s := range parsed.Result.List {
		if s.ContractType != "LinearPerpetual" {
			continue
		}
		ins = append(ins, models.Instrument{
			Venue:       "bybit",
			VenueSymbol: s.Symbol,
			Symbol:      symbols.Canonical(s.BaseCoin, s.QuoteCoin),
			BaseAsset:   s.BaseCoin,
			QuoteAsset:  s.QuoteCoin,
			IsActive:    s.Status == "Trading",
		})
	}
	if len(ins) == 0 {
		return nil, fmt.Errorf("instruments-info returned no linear perpetuals")
	}
	return ins, nil
}

// staticInstruments derives instruments from a configured symbol list.
func staticInstruments(venue string, syms []string) []models.Instrument {
	ins := make([]models.Instrument, 0, len(syms))
	for _, s := range syms {
		base, quote := symbols.SplitPair(s)
		ins = append(ins, models.Instrument{
			Venue:       venue,
			VenueSymbol: strings.ToUpper(s),
			Symbol:      symbols.Canonical(base, quote),
			BaseAsset:   base,
			QuoteAsset:  quote,
			IsActive:    true,
		})
	}
	return ins
}

func register(registry *symbols.Registry, ins []models.Instrument) {
	for _, in := range ins {
		registry.Register(in.Venue, in.VenueSymbol, in.Symbol)
	}
}

// ActiveVenueSymbols filters an instrument list down to tradable venue
// symbols, preserving order.
func ActiveVenueSymbols(ins []models.Instrument) []string {
	out := make([]string, 0, len(ins))
	for _, in := range ins {
		if in.IsActive {
			out = append(out, in.VenueSymbol)
		}
	}
	return out
}
