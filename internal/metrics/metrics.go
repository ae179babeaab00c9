// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	NotificationsDispatched *prometheus.CounterVec
	RealtimeConnections     prometheus.Gauge
	RealtimeFramesDropped   prometheus.Counter
	AuthFailures            *prometheus.CounterVec
	ResetMailFailures       prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		NotificationsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "herald_notifications_dispatched_total",
				Help: "Notifications persisted and pushed, by delivery outcome",
			},
			[]string{"outcome"},
		),
		RealtimeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_realtime_connections",
			Help: "Currently registered realtime connections",
		}),
		RealtimeFramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "herald_realtime_frames_dropped_total",
			Help: "Outbound frames dropped because a client queue was full",
		}),
		AuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "herald_auth_failures_total",
				Help: "Rejected authentication attempts, by reason",
			},
			[]string{"reason"},
		),
		ResetMailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "herald_reset_mail_failures_total",
			Help: "Password reset emails that could not be sent",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.NotificationsDispatched,
		m.RealtimeConnections,
		m.RealtimeFramesDropped,
		m.AuthFailures,
		m.ResetMailFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
