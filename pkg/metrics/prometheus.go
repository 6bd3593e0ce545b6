package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	reconnects  *prometheus.CounterVec
	modelRuns   *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_ticks_total",
				Help: "Total number of normalized ticks processed",
			},
			[]string{"source", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"source", "symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		reconnects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_reconnects_total",
				Help: "Total reconnect attempts per source",
			},
			[]string{"source"},
		),
		modelRuns: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_model_run_seconds",
				Help:    "Forecast model run duration by model and outcome",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"model", "outcome"},
		),
	}
}

// RecordTick records one processed tick.
func (r *Recorder) RecordTick(source, symbol string) {
	r.ticksTotal.WithLabelValues(source, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(source, symbol string, price float64) {
	r.lastPrice.WithLabelValues(source, symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordReconnect records a reconnect attempt for a source.
func (r *Recorder) RecordReconnect(source string) {
	r.reconnects.WithLabelValues(source).Inc()
}

// RecordModelRun records one model invocation with its outcome.
func (r *Recorder) RecordModelRun(model, outcome string, seconds float64) {
	r.modelRuns.WithLabelValues(model, outcome).Observe(seconds)
}
