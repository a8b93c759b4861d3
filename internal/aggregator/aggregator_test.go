package aggregator

import (
	"math"
	"testing"
	"time"

	"surgeflow/models"
)

func snap(venue, symbol string, last, bid, ask, volume float64) models.MarketSnapshot {
	return models.MarketSnapshot{
		Venue:          venue,
		Symbol:         symbol,
		LastPrice:      last,
		BestBid:        bid,
		BestAsk:        ask,
		QuoteVolume24h: volume,
	}
}

func TestSingleVenueExcluded(t *testing.T) {
	a := New()
	out := a.Aggregate([]models.MarketSnapshot{
		snap("binance", "BTC-USDT-PERP", 42000, 41999, 42001, 1e9),
	}, time.Now().UTC())
	if len(out) != 0 {
		t.Fatalf("single-venue symbol must not aggregate, got %d", len(out))
	}
}

func TestBestPricesAndAverages(t *testing.T) {
	a := New()
	out := a.Aggregate([]models.MarketSnapshot{
		snap("binance", "BTC-USDT-PERP", 42000, 41999, 42001, 3e9),
		snap("bybit", "BTC-USDT-PERP", 42010, 42005, 42011, 1e9),
	}, time.Now().UTC())
	if len(out) != 1 {
		t.Fatalf("expected one aggregated market, got %d", len(out))
	}
	m := out[0]

	if m.BestBid != 42005 || m.BestBidVenue != "bybit" {
		t.Errorf("best bid = %v@%s", m.BestBid, m.BestBidVenue)
	}
	if m.BestAsk != 42001 || m.BestAskVenue != "binance" {
		t.Errorf("best ask = %v@%s", m.BestAsk, m.BestAskVenue)
	}
	if m.AvgPrice != 42005 {
		t.Errorf("AvgPrice = %v, want 42005", m.AvgPrice)
	}
	wantVWAP := (42000.0*3e9 + 42010.0*1e9) / 4e9
	if math.Abs(m.VWAP-wantVWAP) > 1e-6 {
		t.Errorf("VWAP = %v, want %v", m.VWAP, wantVWAP)
	}
	if m.PriceSpread != 10 {
		t.Errorf("PriceSpread = %v, want 10", m.PriceSpread)
	}
	if m.TotalVolume24h != 4e9 {
		t.Errorf("TotalVolume24h = %v", m.TotalVolume24h)
	}
	// bid 42005 crosses ask 42001 across venues
	if m.Arbitrage == nil {
		t.Fatal("expected an arbitrage opportunity")
	}
	if m.Arbitrage.BuyVenue != "binance" || m.Arbitrage.SellVenue != "bybit" {
		t.Errorf("arbitrage venues = buy %s sell %s", m.Arbitrage.BuyVenue, m.Arbitrage.SellVenue)
	}
}

func TestArbitrageProfitPct(t *testing.T) {
	a := New()
	out := a.Aggregate([]models.MarketSnapshot{
		snap("venueA", "ETH-USDT-PERP", 100, 99.5, 100, 1e6),
		snap("venueB", "ETH-USDT-PERP", 101, 101, 101.5, 1e6),
	}, time.Now().UTC())
	m := out[0]
	if m.Arbitrage == nil {
		t.Fatal("expected arbitrage: bid 101 on venueB crosses ask 100 on venueA")
	}
	if m.Arbitrage.BuyVenue != "venueA" || m.Arbitrage.SellVenue != "venueB" {
		t.Errorf("venues = buy %s sell %s", m.Arbitrage.BuyVenue, m.Arbitrage.SellVenue)
	}
	if math.Abs(m.Arbitrage.ProfitPct-1.0) > 1e-9 {
		t.Errorf("ProfitPct = %v, want 1.0", m.Arbitrage.ProfitPct)
	}
}

func TestNoArbitrageWhenUncrossed(t *testing.T) {
	a := New()
	out := a.Aggregate([]models.MarketSnapshot{
		snap("venueA", "ETH-USDT-PERP", 100, 99, 100, 1e6),
		snap("venueB", "ETH-USDT-PERP", 100, 99.5, 100.5, 1e6),
	}, time.Now().UTC())
	if out[0].Arbitrage != nil {
		t.Errorf("uncrossed books should report no arbitrage: %+v", out[0].Arbitrage)
	}
}

func TestTieKeepsFirstSeenVenue(t *testing.T) {
	a := New()
	out := a.Aggregate([]models.MarketSnapshot{
		snap("venueA", "SOL-USDT-PERP", 150, 149, 151, 1e6),
		snap("venueB", "SOL-USDT-PERP", 150, 149, 151, 1e6),
	}, time.Now().UTC())
	m := out[0]
	if m.BestBidVenue != "venueA" || m.BestAskVenue != "venueA" {
		t.Errorf("tie must keep first-seen venue, got bid %s ask %s", m.BestBidVenue, m.BestAskVenue)
	}
	if m.Arbitrage != nil {
		t.Error("same-venue best prices cannot arbitrage")
	}
}

func TestVWAPFallsBackToSimpleAverage(t *testing.T) {
	a := New()
	out := a.Aggregate([]models.MarketSnapshot{
		snap("venueA", "X-USDT-PERP", 10, 0, 0, 0),
		snap("venueB", "X-USDT-PERP", 20, 0, 0, 0),
	}, time.Now().UTC())
	m := out[0]
	if m.VWAP != 15 {
		t.Errorf("zero-weight VWAP should equal simple average: %v", m.VWAP)
	}
}

func TestFundingAggregation(t *testing.T) {
	a := New()
	withFunding := snap("venueA", "BTC-USDT-PERP", 100, 99, 101, 1e6)
	withFunding.HasFunding = true
	withFunding.AnnualizedFunding = 10

	alsoFunding := snap("venueB", "BTC-USDT-PERP", 100, 99, 101, 1e6)
	alsoFunding.HasFunding = true
	alsoFunding.AnnualizedFunding = -2

	noFunding := snap("venueC", "BTC-USDT-PERP", 100, 99, 101, 1e6)
	noFunding.AnnualizedFunding = 99 // must be ignored

	out := a.Aggregate([]models.MarketSnapshot{withFunding, alsoFunding, noFunding}, time.Now().UTC())
	m := out[0]
	if m.AvgAnnualizedFunding != 4 {
		t.Errorf("AvgAnnualizedFunding = %v, want 4", m.AvgAnnualizedFunding)
	}
	if m.FundingSpread != 12 {
		t.Errorf("FundingSpread = %v, want 12", m.FundingSpread)
	}
}

func TestOutputSortedBySymbol(t *testing.T) {
	a := New()
	out := a.Aggregate([]models.MarketSnapshot{
		snap("venueA", "ZEC-USDT-PERP", 100, 99, 101, 1e6),
		snap("venueB", "ZEC-USDT-PERP", 100, 99, 101, 1e6),
		snap("venueA", "ADA-USDT-PERP", 1, 0.9, 1.1, 1e6),
		snap("venueB", "ADA-USDT-PERP", 1, 0.9, 1.1, 1e6),
	}, time.Now().UTC())
	if len(out) != 2 || out[0].Symbol != "ADA-USDT-PERP" || out[1].Symbol != "ZEC-USDT-PERP" {
		t.Errorf("output should be sorted by symbol: %+v", out)
	}
}
