package config

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadConfig wraps failures reading the config file or the environment.
	ErrLoadConfig = errors.New("load config")
	// ErrInvalidConfig wraps every value rejected by Validate.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrMetricName is returned when metrics_namespace or metrics_subsystem
	// is not usable as a Prometheus name segment.
	ErrMetricName = fmt.Errorf("%w: metric name", ErrInvalidConfig)
	// ErrLatencyBuckets is returned when metrics_latency_buckets_ms is set
	// but not strictly increasing and positive.
	ErrLatencyBuckets = fmt.Errorf("%w: latency buckets", ErrInvalidConfig)
)
