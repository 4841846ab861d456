package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsoleMetrics contains Prometheus metrics for the console.
type ConsoleMetrics struct {
	APICalls         *prometheus.CounterVec
	APIDuration      *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	ChangeEvents     *prometheus.CounterVec
	WebSocketClients prometheus.Gauge
}

// NewConsoleMetrics creates and registers console metrics with the given registerer.
func NewConsoleMetrics(registerer prometheus.Registerer) *ConsoleMetrics {
	metrics := &ConsoleMetrics{
		APICalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userdesk_api_calls_total",
				Help: "Total number of calls to the users backend",
			},
			[]string{"operation", "outcome"}, // outcome: success/http_error/transport_error
		),
		APIDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "userdesk_api_call_duration_seconds",
				Help:    "Latency of calls to the users backend",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "userdesk_sessions_active",
			Help: "Current number of live browser sessions",
		}),
		ChangeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userdesk_change_events_total",
				Help: "Total number of users.changed events seen by this instance",
			},
			[]string{"direction"}, // published/received
		),
		WebSocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "userdesk_websocket_clients",
			Help: "Current number of connected refresh channels",
		}),
	}

	registerer.MustRegister(
		metrics.APICalls,
		metrics.APIDuration,
		metrics.ActiveSessions,
		metrics.ChangeEvents,
		metrics.WebSocketClients,
	)

	return metrics
}

// ObserveCall records one backend call.
func (m *ConsoleMetrics) ObserveCall(operation, outcome string, duration time.Duration) {
	m.APICalls.WithLabelValues(operation, outcome).Inc()
	m.APIDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// EventPublished counts a change event sent by this instance.
func (m *ConsoleMetrics) EventPublished() {
	m.ChangeEvents.WithLabelValues("published").Inc()
}

// EventReceived counts a change event delivered to this instance.
func (m *ConsoleMetrics) EventReceived() {
	m.ChangeEvents.WithLabelValues("received").Inc()
}
