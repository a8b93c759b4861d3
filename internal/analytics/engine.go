// Package analytics derives per-instrument metrics from the rolling windows.
// The engine runs on a fixed tick and recomputes every record wholesale; a
// record never merges with its predecessor.
package analytics

import (
	"fmt"
	"time"

	"surgeflow/internal/window"
	"surgeflow/logger"
	"surgeflow/models"
)

const (
	horizon1m  = int64(60 * 1000)
	horizon5m  = int64(5 * 60 * 1000)
	horizon15m = int64(15 * 60 * 1000)
	horizon1h  = int64(60 * 60 * 1000)

	velocityWindowMs = int64(60 * 1000)

	// surgeRecentBuckets over the mean of the surge horizon defines the
	// volume surge ratio; below surgeMinBuckets the ratio is meaningless
	// and reads as neutral.
	surgeRecentBuckets = 5
	surgeMinBuckets    = 20
	surgeHorizonMs     = horizon5m

	takerRatioHorizonMs = horizon5m
)

type Engine struct {
	store *window.Store
	log   *logger.Log
}

func New(store *window.Store) *Engine {
	return &Engine{
		store: store,
		log:   logger.GetLogger(),
	}
}

// Tick recomputes the derived metrics of every tracked instrument. A failure
// in one instrument is logged and leaves that instrument's previous record in
// place; the rest of the arena still gets fresh records.
func (e *Engine) Tick(now time.Time) {
	e.store.ForEach(func(st *window.InstrumentState) {
		rec, err := e.computeOne(st, now)
		if err != nil {
			e.log.WithComponent("analytics").WithError(err).WithFields(logger.Fields{
				"venue":  st.Venue,
				"symbol": st.Symbol,
			}).Error("metrics computation failed, keeping previous record")
			return
		}
		st.Metrics = rec
	})
}

func (e *Engine) computeOne(st *window.InstrumentState, now time.Time) (rec *models.DerivedMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	nowMs := now.UnixMilli()
	rec = &models.DerivedMetrics{
		Venue:      st.Venue,
		Symbol:     st.Symbol,
		ComputedAt: now,
	}

	rec.PriceChange1m, rec.PriceChangePct1m = priceChange(st.Price.Range(nowMs-horizon1m, nowMs))
	rec.PriceChange5m, rec.PriceChangePct5m = priceChange(st.Price.Range(nowMs-horizon5m, nowMs))
	rec.PriceChange15m, rec.PriceChangePct15m = priceChange(st.Price.Range(nowMs-horizon15m, nowMs))
	rec.PriceChange1h, rec.PriceChangePct1h = priceChange(st.Price.Range(nowMs-horizon1h, nowMs))

	rec.PriceVelocity = velocity(st.Price.Range(nowMs-velocityWindowMs, nowMs))
	prior := velocity(st.Price.Range(nowMs-2*velocityWindowMs, nowMs-velocityWindowMs-1))
	rec.PriceAcceleration = rec.PriceVelocity - prior

	rec.CVD1m, rec.Volume1m = volumeTotals(st.Volume.Range(nowMs-horizon1m, nowMs))
	rec.CVD5m, rec.Volume5m = volumeTotals(st.Volume.Range(nowMs-horizon5m, nowMs))
	rec.CVD15m, rec.Volume15m = volumeTotals(st.Volume.Range(nowMs-horizon15m, nowMs))
	rec.CVD1h, rec.Volume1h = volumeTotals(st.Volume.Range(nowMs-horizon1h, nowMs))

	rec.VolumeSurge = volumeSurge(st.Volume.Range(nowMs-surgeHorizonMs, nowMs))
	rec.TakerBuyRatio = takerBuyRatio(st.Volume.Range(nowMs-takerRatioHorizonMs, nowMs))
	rec.AvgSpreadPct = avgClose(st.Spread.Range(nowMs-horizon1m, nowMs))

	return rec, nil
}

// priceChange returns the absolute and percent change from the oldest close
// to the newest close. Fewer than two buckets, or a zero first close, yields
// zero for both.
func priceChange(buckets []window.Bucket) (change, pct float64) {
	if len(buckets) < 2 {
		return 0, 0
	}
	first := buckets[0].Close
	last := buckets[len(buckets)-1].Close
	if first == 0 {
		return 0, 0
	}
	change = last - first
	return change, change / first * 100
}

// velocity is the percent change over the given buckets normalized to
// percent per minute by the actual elapsed time between the oldest and newest
// bucket, so a sparse feed does not overstate the slope.
func velocity(buckets []window.Bucket) float64 {
	if len(buckets) < 2 {
		return 0
	}
	_, pct := priceChange(buckets)
	elapsedMs := buckets[len(buckets)-1].Start - buckets[0].Start
	if elapsedMs <= 0 {
		return 0
	}
	return pct / (float64(elapsedMs) / 60000)
}

func volumeTotals(buckets []window.Bucket) (cvd, total float64) {
	for _, b := range buckets {
		cvd += b.BuyVolume - b.SellVolume
		total += b.TotalVolume
	}
	return cvd, total
}

// volumeSurge compares the mean of the most recent buckets against the mean
// of the whole horizon. With too few buckets the ratio is neutral (1.0).
func volumeSurge(buckets []window.Bucket) float64 {
	if len(buckets) < surgeMinBuckets {
		return 1.0
	}
	var overall float64
	for _, b := range buckets {
		overall += b.TotalVolume
	}
	overallMean := overall / float64(len(buckets))
	if overallMean == 0 {
		return 1.0
	}

	recent := buckets[len(buckets)-surgeRecentBuckets:]
	var recentSum float64
	for _, b := range recent {
		recentSum += b.TotalVolume
	}
	recentMean := recentSum / float64(len(recent))
	return recentMean / overallMean
}

func takerBuyRatio(buckets []window.Bucket) float64 {
	var buy, total float64
	for _, b := range buckets {
		buy += b.BuyVolume
		total += b.TotalVolume
	}
	if total == 0 {
		return 0.5
	}
	return buy / total
}

func avgClose(buckets []window.Bucket) float64 {
	if len(buckets) == 0 {
		return 0
	}
	var sum float64
	for _, b := range buckets {
		sum += b.Close
	}
	return sum / float64(len(buckets))
}
