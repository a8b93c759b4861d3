// Registers:
//
//	#surgeflow_frames_total
//	#surgeflow_frames_dropped_total
//	#surgeflow_snapshots_total
//	#surgeflow_reconnects_total
//	#surgeflow_broadcast_messages_total
//	#surgeflow_instruments
//	#go_* and process_* system metrics
//
// Exposes them on the configured address using the Prometheus HTTP handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	framesTotal       *prometheus.CounterVec
	framesDropped     prometheus.Counter
	framesRejected    *prometheus.CounterVec
	snapshotsTotal    *prometheus.CounterVec
	reconnectsTotal   *prometheus.CounterVec
	broadcastMessages prometheus.Counter
	instrumentsGauge  prometheus.Gauge
	consumersGauge    prometheus.Gauge
)

// Init registers the collectors and, when address is non-empty, starts the
// scrape endpoint.
func Init(address string) {
	once.Do(func() {
		framesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surgeflow_frames_total",
				Help: "Raw frames decoded per venue and kind",
			},
			[]string{"venue", "kind"},
		)
		framesDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "surgeflow_frames_dropped_total",
				Help: "Raw frames dropped on a full channel",
			},
		)
		framesRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surgeflow_frames_rejected_total",
				Help: "Frames rejected by normalizer validation",
			},
			[]string{"venue"},
		)
		snapshotsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surgeflow_snapshots_total",
				Help: "Market snapshots published per venue",
			},
			[]string{"venue"},
		)
		reconnectsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surgeflow_reconnects_total",
				Help: "Websocket reconnect attempts per venue",
			},
			[]string{"venue"},
		)
		broadcastMessages = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "surgeflow_broadcast_messages_total",
				Help: "Messages delivered to downstream consumers",
			},
		)
		instrumentsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "surgeflow_instruments",
				Help: "Instruments currently tracked in the arena",
			},
		)
		consumersGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "surgeflow_consumers",
				Help: "Connected downstream websocket consumers",
			},
		)

		_ = prometheus.Register(framesTotal)
		_ = prometheus.Register(framesDropped)
		_ = prometheus.Register(framesRejected)
		_ = prometheus.Register(snapshotsTotal)
		_ = prometheus.Register(reconnectsTotal)
		_ = prometheus.Register(broadcastMessages)
		_ = prometheus.Register(instrumentsGauge)
		_ = prometheus.Register(consumersGauge)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if address == "" {
			return
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(address, mux); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementFrame counts one decoded frame.
func IncrementFrame(venue, kind string) {
	if framesTotal != nil {
		framesTotal.WithLabelValues(venue, kind).Inc()
	}
}

// IncrementDropped counts one frame dropped on a full channel.
func IncrementDropped() {
	if framesDropped != nil {
		framesDropped.Inc()
	}
}

// IncrementRejected counts one frame rejected by validation.
func IncrementRejected(venue string) {
	if framesRejected != nil {
		framesRejected.WithLabelValues(venue).Inc()
	}
}

// IncrementSnapshot counts one published snapshot.
func IncrementSnapshot(venue string) {
	if snapshotsTotal != nil {
		snapshotsTotal.WithLabelValues(venue).Inc()
	}
}

// IncrementReconnect counts one reconnect attempt.
func IncrementReconnect(venue string) {
	if reconnectsTotal != nil {
		reconnectsTotal.WithLabelValues(venue).Inc()
	}
}

// AddBroadcasts counts messages delivered downstream.
func AddBroadcasts(n int) {
	if broadcastMessages != nil && n > 0 {
		broadcastMessages.Add(float64(n))
	}
}

// SetInstruments records the tracked instrument count.
func SetInstruments(n int) {
	if instrumentsGauge != nil {
		instrumentsGauge.Set(float64(n))
	}
}

// SetConsumers records the connected consumer count.
func SetConsumers(n int) {
	if consumersGauge != nil {
		consumersGauge.Set(float64(n))
	}
}
