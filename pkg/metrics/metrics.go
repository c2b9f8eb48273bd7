// Package metrics gates whether the Prometheus collectors in
// pkg/metrics/prometheus are active, so every call site can cheaply check
// IsEnabled and pass nil collectors when metrics are off.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide metrics registry. Safe to call more
// than once; later calls are no-ops once a registry already exists.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reset discards the current registry. Exported for tests that need a clean
// slate between cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}
