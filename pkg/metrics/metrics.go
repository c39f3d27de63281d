// Package metrics provides Prometheus instrumentation for the block
// streaming pipeline and an HTTP endpoint to expose it.
//
// All metrics use the strata_ prefix. Instrumentation is opt-in: pipeline
// components take nil-able metric interfaces, and a nil value means zero
// overhead.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry enables metrics collection. Must be called before any
// constructor in this package; constructors return nil until then.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// Registry returns the process registry, or nil when metrics are disabled.
func Registry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// ResetForTesting discards the registry so tests can re-init cleanly.
func ResetForTesting() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = nil
}
