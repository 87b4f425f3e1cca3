package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scanDuration *prometheus.HistogramVec
	signalsTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	openSignals  prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		scanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finanslab_scan_duration_seconds",
				Help:    "Duration of full scan cycles by session",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"session"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanslab_signals_total",
				Help: "Total number of emitted signals",
			},
			[]string{"instrument", "tier"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanslab_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finanslab_last_price",
				Help: "Last observed price for an instrument",
			},
			[]string{"instrument"},
		),
		openSignals: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "finanslab_open_signals",
				Help: "Number of currently open signals",
			},
		),
	}
}

// RecordScan records a completed scan cycle with its duration.
func (r *Recorder) RecordScan(session string, seconds float64) {
	r.scanDuration.WithLabelValues(session).Observe(seconds)
}

// RecordSignal records an emitted signal.
func (r *Recorder) RecordSignal(instrument, tier string) {
	r.signalsTotal.WithLabelValues(instrument, tier).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for an instrument.
func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}

// RecordOpenSignals records the current open signal count.
func (r *Recorder) RecordOpenSignals(n int) {
	r.openSignals.Set(float64(n))
}
