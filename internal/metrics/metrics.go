// Package metrics exports the bot's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ananya"

// Metrics holds the collectors recorded by the router, the language model
// client and the broadcast engine. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	routerMessages      *prometheus.CounterVec
	llmRequests         *prometheus.CounterVec
	llmLatency          prometheus.Histogram
	broadcastRecipients *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		routerMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "messages_total",
				Help:      "Inbound updates handled by the message router",
			},
			[]string{"kind", "outcome"},
		),
		llmRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "requests_total",
				Help:      "Language model completions by classified outcome",
			},
			[]string{"outcome"},
		),
		llmLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "latency_seconds",
				Help:      "Language model completion latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		broadcastRecipients: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "recipients_total",
				Help:      "Broadcast recipients by delivery outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.routerMessages,
		m.llmRequests,
		m.llmLatency,
		m.broadcastRecipients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordMessage(kind, outcome string) {
	if m == nil {
		return
	}
	m.routerMessages.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordCompletion(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(outcome).Inc()
	m.llmLatency.Observe(latency.Seconds())
}

func (m *Metrics) RecordBroadcastRecipient(outcome string) {
	if m == nil {
		return
	}
	m.broadcastRecipients.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
