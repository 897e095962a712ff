package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "SYNCGAZE_"
	envFileVar = "SYNCGAZE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SYNCGAZE_CONFIG is set
//  3. env (prefix SYNCGAZE_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SYNCGAZE_UPLOAD_RETRIES -> upload_retries. Keys are flat, so the "."
	// delimiter never splits them.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// metricName matches one segment of a Prometheus metric name.
var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !metricName.MatchString(c.MetricsNamespace):
		return fmt.Errorf("%w: metrics_namespace %q", ErrMetricName, c.MetricsNamespace)
	case !metricName.MatchString(c.MetricsSubsystem):
		return fmt.Errorf("%w: metrics_subsystem %q", ErrMetricName, c.MetricsSubsystem)
	case !validBuckets(c.MetricsLatencyBucketsMS):
		return fmt.Errorf("%w: %v", ErrLatencyBuckets, c.MetricsLatencyBucketsMS)
	case c.UploadRetries < 0:
		return fmt.Errorf("%w: upload_retries must not be negative", ErrInvalidConfig)
	case c.UploadRetryDelayMS < 0:
		return fmt.Errorf("%w: upload_retry_delay_ms must not be negative", ErrInvalidConfig)
	case c.FrameIntervalMS <= 0:
		return fmt.Errorf("%w: frame_interval_ms must be positive", ErrInvalidConfig)
	case c.GazeSampleIntervalMS < 0:
		return fmt.Errorf("%w: gaze_sample_interval_ms must not be negative", ErrInvalidConfig)
	case c.ValidationWindowMS <= 0:
		return fmt.Errorf("%w: validation_window_ms must be positive", ErrInvalidConfig)
	case c.PursuitDurationMS <= 0:
		return fmt.Errorf("%w: pursuit_duration_ms must be positive", ErrInvalidConfig)
	case c.ClicksPerPoint <= 0:
		return fmt.Errorf("%w: clicks_per_point must be positive", ErrInvalidConfig)
	case c.DwellRadiusPx <= 0 || c.RecalibrationThresholdPx <= 0 || c.AccuracyRadiusPx <= 0:
		return fmt.Errorf("%w: pixel thresholds must be positive", ErrInvalidConfig)
	case c.TargetLookbackMS < 0 || c.SampleLookbackMS < 0:
		return fmt.Errorf("%w: lookback windows must not be negative", ErrInvalidConfig)
	case c.ViewportWidth <= 0 || c.ViewportHeight <= 0:
		return fmt.Errorf("%w: viewport must have positive dimensions", ErrInvalidConfig)
	}
	return nil
}

// validBuckets accepts an unset list or a positive, strictly increasing one.
func validBuckets(v []float64) bool {
	for i, b := range v {
		if b <= 0 || (i > 0 && b <= v[i-1]) {
			return false
		}
	}
	return true
}
