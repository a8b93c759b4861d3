// Package aggregator builds the cross-venue market summaries. Snapshots are
// grouped by canonical symbol and each group is re-derived wholesale on every
// tick; symbols listed on a single venue only are skipped.
package aggregator

import (
	"sort"
	"time"

	"surgeflow/models"
)

type Aggregator struct{}

func New() *Aggregator { return &Aggregator{} }

// Aggregate groups snapshots by canonical symbol and summarizes every group
// seen on at least two venues. Output order is deterministic (sorted by
// symbol); within a group venues keep first-seen order, which also breaks
// best-price ties.
func (a *Aggregator) Aggregate(snapshots []models.MarketSnapshot, now time.Time) []models.AggregatedMarket {
	groups := make(map[string][]models.MarketSnapshot)
	order := make([]string, 0)
	for _, snap := range snapshots {
		if _, ok := groups[snap.Symbol]; !ok {
			order = append(order, snap.Symbol)
		}
		groups[snap.Symbol] = append(groups[snap.Symbol], snap)
	}
	sort.Strings(order)

	out := make([]models.AggregatedMarket, 0, len(order))
	for _, symbol := range order {
		group := groups[symbol]
		if len(distinctVenues(group)) < 2 {
			continue
		}
		out = append(out, aggregateGroup(symbol, group, now))
	}
	return out
}

func distinctVenues(group []models.MarketSnapshot) map[string]struct{} {
	venues := make(map[string]struct{}, len(group))
	for _, s := range group {
		venues[s.Venue] = struct{}{}
	}
	return venues
}

func aggregateGroup(symbol string, group []models.MarketSnapshot, now time.Time) models.AggregatedMarket {
	agg := models.AggregatedMarket{
		Symbol:     symbol,
		Venues:     make([]models.VenueQuote, 0, len(group)),
		ComputedAt: now,
	}

	var (
		priceSum    float64
		weightedSum float64
		totalWeight float64
		minPrice    float64
		maxPrice    float64

		fundingSum   float64
		fundingCount int
		fundingMin   float64
		fundingMax   float64
	)

	for i, snap := range group {
		agg.Venues = append(agg.Venues, models.VenueQuote{
			Venue:             snap.Venue,
			LastPrice:         snap.LastPrice,
			BestBid:           snap.BestBid,
			BestAsk:           snap.BestAsk,
			QuoteVolume24h:    snap.QuoteVolume24h,
			OpenInterest:      snap.OpenInterest,
			AnnualizedFunding: snap.AnnualizedFunding,
			HasFunding:        snap.HasFunding,
		})

		// strict comparisons keep the first-seen venue on ties
		if snap.BestBid > 0 && snap.BestBid > agg.BestBid {
			agg.BestBid = snap.BestBid
			agg.BestBidVenue = snap.Venue
		}
		if snap.BestAsk > 0 && (agg.BestAskVenue == "" || snap.BestAsk < agg.BestAsk) {
			agg.BestAsk = snap.BestAsk
			agg.BestAskVenue = snap.Venue
		}

		priceSum += snap.LastPrice
		weightedSum += snap.LastPrice * snap.QuoteVolume24h
		totalWeight += snap.QuoteVolume24h
		if i == 0 || snap.LastPrice < minPrice {
			minPrice = snap.LastPrice
		}
		if i == 0 || snap.LastPrice > maxPrice {
			maxPrice = snap.LastPrice
		}

		agg.TotalVolume24h += snap.QuoteVolume24h
		agg.TotalOpenInterest += snap.OpenInterest

		if snap.HasFunding {
			if fundingCount == 0 || snap.AnnualizedFunding < fundingMin {
				fundingMin = snap.AnnualizedFunding
			}
			if fundingCount == 0 || snap.AnnualizedFunding > fundingMax {
				fundingMax = snap.AnnualizedFunding
			}
			fundingSum += snap.AnnualizedFunding
			fundingCount++
		}
	}

	agg.AvgPrice = priceSum / float64(len(group))
	if totalWeight > 0 {
		agg.VWAP = weightedSum / totalWeight
	} else {
		// all-zero 24h volume: fall back to the simple average
		agg.VWAP = agg.AvgPrice
	}
	agg.PriceSpread = maxPrice - minPrice

	if fundingCount > 0 {
		agg.AvgAnnualizedFunding = fundingSum / float64(fundingCount)
		agg.FundingSpread = fundingMax - fundingMin
	}

	if agg.BestBid > agg.BestAsk && agg.BestAsk > 0 && agg.BestBidVenue != agg.BestAskVenue {
		agg.Arbitrage = &models.ArbitrageOpportunity{
			BuyVenue:  agg.BestAskVenue,
			SellVenue: agg.BestBidVenue,
			ProfitPct: (agg.BestBid - agg.BestAsk) / agg.BestAsk * 100,
		}
	}

	return agg
}
