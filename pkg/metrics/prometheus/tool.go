package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docassistant/docassistant/pkg/metrics"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

type toolMetrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewToolMetrics creates a new Prometheus-backed toolhost.Metrics
// instance, or nil when metrics are disabled.
func NewToolMetrics() toolhost.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()
	return &toolMetrics{
		invocations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "docassistant_tool_invocations_total",
				Help: "Total number of tool invocations, by tool name and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docassistant_tool_invocation_duration_seconds",
				Help:    "Tool invocation latency in seconds, by tool name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}
}

func (m *toolMetrics) RecordInvocation(tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.invocations.WithLabelValues(tool, outcome).Inc()
	m.duration.WithLabelValues(tool).Observe(duration.Seconds())
}
