package processor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"Mist/internal/ledger"
)

// Metrics holds the processor's Prometheus collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	intents    *prometheus.CounterVec
	cycles     prometheus.Counter
	keyServers *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mist",
			Name:      "intents_total",
			Help:      "Processed intents by outcome kind",
		}, []string{"kind"}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mist",
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles",
		}),
		keyServers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mist",
			Name:      "keyserver_responses_total",
			Help:      "Key-server fetch results by server",
		}, []string{"server", "result"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mist",
			Name:      "intent_duration_seconds",
			Help:      "Time spent processing one intent",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	for _, k := range Kinds {
		m.intents.WithLabelValues(k.String())
	}

	return m
}

// Registry returns the registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// KeyServerResponse records one key-server fetch result.
func (m *Metrics) KeyServerResponse(server ledger.ObjectID, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	m.keyServers.WithLabelValues(server.String(), result).Inc()
}

func (m *Metrics) observeIntent(kind Kind, elapsed time.Duration) {
	m.intents.WithLabelValues(kind.String()).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeCycle() {
	m.cycles.Inc()
}
