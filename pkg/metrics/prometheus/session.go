package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docassistant/docassistant/pkg/metrics"
	"github.com/docassistant/docassistant/pkg/session"
)

type sessionMetrics struct {
	logins *prometheus.CounterVec
	active prometheus.Gauge
}

// NewSessionMetrics creates a new Prometheus-backed session.Metrics
// instance, or nil when metrics are disabled.
func NewSessionMetrics() session.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()
	return &sessionMetrics{
		logins: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "docassistant_logins_total",
				Help: "Total number of login attempts, by outcome (ok, denied).",
			},
			[]string{"outcome"},
		),
		active: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "docassistant_active_sessions",
				Help: "Current number of logged-in sessions.",
			},
		),
	}
}

func (m *sessionMetrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *sessionMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}
