package metrics

import (
	"slices"

	"github.com/prometheus/client_golang/prometheus"
)

// Option adjusts how a Manager names and registers its collectors.
type Option func(*Manager)

// WithNamespace sets the first segment of every metric name. Empty keeps
// DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithSubsystem sets the second segment of every metric name. Empty keeps
// DefaultSubsystem.
func WithSubsystem(sub string) Option {
	return func(m *Manager) {
		if sub != "" {
			m.subsystem = sub
		}
	}
}

// WithLatencyBuckets sets the millisecond buckets shared by the upload,
// worker, repository and HTTP latency histograms. A list that is not
// strictly increasing is ignored.
func WithLatencyBuckets(ms []float64) Option {
	return func(m *Manager) {
		if increasing(ms) {
			m.histogramBuckets = slices.Clone(ms)
		}
	}
}

// WithRegistry registers the collectors with r instead of the default
// registerer.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

func increasing(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			return false
		}
	}
	return true
}
