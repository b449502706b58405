package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/metrics"
)

// NewIndexMetrics creates a new Prometheus-backed index.Metrics
// instance, or nil when metrics are disabled.
func NewIndexMetrics() index.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()
	upserts := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "docassistant_index_upserts_total",
			Help: "Total number of index row upserts, by document type.",
		},
		[]string{"doc_type"},
	)
	deletes := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "docassistant_index_deletes_total",
			Help: "Total number of index row deletions, by document type.",
		},
		[]string{"doc_type"},
	)
	pending := promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "docassistant_index_pending_updates",
			Help: "Number of debounced filesystem events still waiting to settle.",
		},
	)

	return &indexMetricsImpl{upserts: upserts, deletes: deletes, pending: pending}
}

type indexMetricsImpl struct {
	upserts *prometheus.CounterVec
	deletes *prometheus.CounterVec
	pending prometheus.Gauge
}

func (m *indexMetricsImpl) RecordUpsert(docType string) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(docType).Inc()
}

func (m *indexMetricsImpl) RecordDelete(docType string) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(docType).Inc()
}

func (m *indexMetricsImpl) SetPendingCount(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
