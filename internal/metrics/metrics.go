// Package metrics holds the Prometheus collectors for the portal daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wifi_connect"

// Metrics is the set of collectors updated by the command handler.
type Metrics struct {
	Commands        *prometheus.CounterVec
	PortalStarts    prometheus.Counter
	ConnectAttempts *prometheus.CounterVec
	AccessPoints    prometheus.Gauge
	PortalActive    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Network commands processed by kind.",
		}, []string{"kind"}),
		PortalStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "portal_starts_total",
			Help:      "Captive portal hotspots created.",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "WiFi connection attempts by result.",
		}, []string{"result"}),
		AccessPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "access_points",
			Help:      "Access points found by the last scan.",
		}),
		PortalActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portal_active",
			Help:      "1 once a client has loaded the network list from the current portal.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.PortalStarts, m.ConnectAttempts, m.AccessPoints, m.PortalActive)
	}
	return m
}

// Command counts a processed command.
func (m *Metrics) Command(kind string) {
	m.Commands.WithLabelValues(kind).Inc()
}

// ConnectResult counts a connection attempt outcome, "success" or "failure".
func (m *Metrics) ConnectResult(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

// SetPortalActive records whether the portal UI is in use.
func (m *Metrics) SetPortalActive(active bool) {
	if active {
		m.PortalActive.Set(1)
		return
	}
	m.PortalActive.Set(0)
}
