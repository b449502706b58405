// Package metrics owns the process-wide Prometheus registry. Domain
// packages (index, toolhost, session, chat, the HTTP layer) declare
// their own small metrics interfaces and accept a nil implementation
// as "metrics disabled, zero overhead"; pkg/metrics/prometheus
// provides the concrete collectors built against the registry held
// here, following the teacher's IsEnabled/GetRegistry pattern.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry
)

// Init creates a fresh registry when isEnabled is true, registering
// the standard Go runtime and process collectors, and returns it.
// When isEnabled is false it clears any prior registry and returns
// nil. The router checks IsEnabled and mounts the /metrics route only
// when metrics are enabled.
func Init(isEnabled bool) *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	enabled = isEnabled
	if !isEnabled {
		registry = nil
		return nil
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// IsEnabled reports whether Init was last called with true.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the current registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}
