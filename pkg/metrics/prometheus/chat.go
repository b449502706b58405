package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docassistant/docassistant/pkg/chat"
	"github.com/docassistant/docassistant/pkg/metrics"
)

type chatMetrics struct {
	completions   prometheus.Histogram
	toolCalls     prometheus.Histogram
	depthExceeded prometheus.Counter
}

// NewChatMetrics creates a new Prometheus-backed chat.Metrics
// instance, or nil when metrics are disabled.
func NewChatMetrics() chat.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()
	return &chatMetrics{
		completions: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docassistant_chat_completion_duration_seconds",
				Help:    "Duration of one streamed chat completion round, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		toolCalls: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docassistant_chat_tool_calls_per_completion",
				Help:    "Number of tool calls requested in a single completion round.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),
		depthExceeded: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "docassistant_chat_depth_exceeded_total",
				Help: "Total number of tool-calling loops aborted for exceeding the depth bound.",
			},
		),
	}
}

func (m *chatMetrics) RecordCompletion(duration time.Duration, toolCallCount int) {
	if m == nil {
		return
	}
	m.completions.Observe(duration.Seconds())
	m.toolCalls.Observe(float64(toolCallCount))
}

func (m *chatMetrics) RecordDepthExceeded() {
	if m == nil {
		return
	}
	m.depthExceeded.Inc()
}
