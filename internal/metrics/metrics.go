package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/oracle-monitor/internal/model"
	"github.com/rickgao/oracle-monitor/internal/version"
)

var (
	feedLabels    = []string{"oracleName", "oracle", "feed"}
	balanceLabels = []string{"oracleName", "oracle", "brand"}
)

// Metrics holds every series the monitor exports.
type Metrics struct {
	// Oracle observations
	LatestValue     *prometheus.GaugeVec
	LastObservation *prometheus.GaugeVec
	LastRound       *prometheus.GaugeVec
	PriceDeviation  *prometheus.GaugeVec
	ActualPrice     *prometheus.GaugeVec
	Balance         *prometheus.GaugeVec

	// Monitor health
	CycleDuration prometheus.Histogram
	Cycles        *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	TicksDropped  prometheus.Counter
	LastIndex     *prometheus.GaugeVec
	ChainHeight   prometheus.Gauge

	registry *prometheus.Registry
}

// New registers all series on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers all series on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"app": version.App}, reg))

	return &Metrics{
		LatestValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_latest_value",
			Help: "Latest value submitted by an oracle for a feed",
		}, feedLabels),
		LastObservation: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_last_observation",
			Help: "Id (ms timestamp) of the oracle's latest submission for a feed",
		}, feedLabels),
		LastRound: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_last_round",
			Help: "Round of the oracle's latest submission for a feed",
		}, feedLabels),
		PriceDeviation: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_price_deviation",
			Help: "Percent deviation of the oracle's submission from the feed price",
		}, feedLabels),
		ActualPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "actual_price",
			Help: "Price currently published by a feed",
		}, []string{"feed"}),
		Balance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_balance",
			Help: "Oracle wallet balance in the brand's smallest unit",
		}, balanceLabels),

		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "oracle_monitor_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_monitor_cycles_total",
			Help: "Poll cycles by result",
		}, []string{"result"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_monitor_errors_total",
			Help: "Recoverable errors by kind",
		}, []string{"kind"}),
		TicksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "oracle_monitor_ticks_dropped_total",
			Help: "Timer ticks dropped because a cycle was still running",
		}),
		LastIndex: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_monitor_last_index",
			Help: "Checkpointed offer index per oracle",
		}, []string{"oracleName", "oracle"}),
		ChainHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_monitor_chain_height",
			Help: "Latest block height seen",
		}),

		registry: reg,
	}
}

// Registry returns the registry the series are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordError counts one recoverable error.
func (m *Metrics) RecordError(kind model.ErrorKind) {
	m.Errors.WithLabelValues(string(kind)).Inc()
}
