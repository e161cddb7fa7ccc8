// Package metrics wires Prometheus counters and gauges for session
// lifecycle, transfer outcomes, sync-points, and aborts. Every recorder
// method is nil-safe so callers can pass a nil Recorder when metrics are
// disabled, at zero overhead on the protocol path.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
	enabled      bool
)

// InitRegistry creates the process-wide Prometheus registry. Must be called
// once before any Recorder is constructed; a second call is a no-op.
func InitRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		enabled = true
	})
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool { return enabled }

// GetRegistry returns the process-wide registry, or nil if metrics were
// never initialized.
func GetRegistry() *prometheus.Registry { return registry }
