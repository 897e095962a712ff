// Package config defines service configuration structures and loading hooks.
//
// Defaults live in New; Load layers an optional YAML file and SYNCGAZE_*
// environment variables on top of them.
package config

import (
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// MetricsNamespace and MetricsSubsystem prefix every exported metric
	// name, e.g. syncgaze_tracker_sessions_active.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	// MetricsLatencyBucketsMS overrides the latency histogram buckets.
	MetricsLatencyBucketsMS []float64 `koanf:"metrics_latency_buckets_ms"`

	// DBPath is the sqlite file holding session records and reports.
	DBPath string `koanf:"db_path"`

	// UploadURL is the collector base URL. Empty disables uploads; reports
	// stay available for manual export.
	UploadURL          string `koanf:"upload_url"`
	UploadRetries      int    `koanf:"upload_retries"`
	UploadRetryDelayMS int    `koanf:"upload_retry_delay_ms"`
	UploadTimeoutMS    int    `koanf:"upload_timeout_ms"`
	UploadQueueSize    int    `koanf:"upload_queue_size"`
	UploadWorkers      int    `koanf:"upload_workers"`

	// DedupeSize bounds the set of remembered report ids on ingest.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxReportBytes caps the body of POST /reports.
	MaxReportBytes int64 `koanf:"max_report_bytes"`

	// MQTTBroker enables the MQTT estimator feed when set, e.g. tcp://localhost:1883.
	MQTTBroker      string `koanf:"mqtt_broker"`
	MQTTClientID    string `koanf:"mqtt_client_id"`
	MQTTTopicPrefix string `koanf:"mqtt_topic_prefix"`

	// FrameIntervalMS is the session loop tick, standing in for animation frames.
	FrameIntervalMS int `koanf:"frame_interval_ms"`
	// GazeSampleIntervalMS throttles gaze logging during the task.
	GazeSampleIntervalMS int `koanf:"gaze_sample_interval_ms"`
	// ValidationWindowMS is how long validation buffers gaze.
	ValidationWindowMS int `koanf:"validation_window_ms"`
	// PursuitDurationMS is the length of the moving-target stage.
	PursuitDurationMS int `koanf:"pursuit_duration_ms"`
	// ClicksPerPoint is the confirmations needed per click-grid point.
	ClicksPerPoint int `koanf:"clicks_per_point"`

	// DwellRadiusPx decides whether pursuit gaze is on the moving target.
	DwellRadiusPx float64 `koanf:"dwell_radius_px"`
	// RecalibrationThresholdPx is the largest validation error that passes.
	RecalibrationThresholdPx float64 `koanf:"recalibration_threshold_px"`
	// StabilityWarningPx flags jittery but accurate validations.
	StabilityWarningPx float64 `koanf:"stability_warning_px"`
	// AccuracyRadiusPx decides whether a task sample counts as on target.
	AccuracyRadiusPx float64 `koanf:"accuracy_radius_px"`

	// TargetLookbackMS and SampleLookbackMS bound hit correlation scans.
	TargetLookbackMS int `koanf:"target_lookback_ms"`
	SampleLookbackMS int `koanf:"sample_lookback_ms"`

	// ViewportWidth and ViewportHeight are used when a session does not
	// report its own screen size.
	ViewportWidth  float64 `koanf:"viewport_width"`
	ViewportHeight float64 `koanf:"viewport_height"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		MetricsNamespace:         "syncgaze",
		MetricsSubsystem:         "tracker",
		DBPath:                   "syncgaze.db",
		UploadRetries:            3,
		UploadRetryDelayMS:       2000,
		UploadTimeoutMS:          10_000,
		UploadQueueSize:          1024,
		UploadWorkers:            2,
		DedupeSize:               50_000,
		MaxReportBytes:           32 << 20,
		MQTTClientID:             "syncgaze",
		MQTTTopicPrefix:          "syncgaze",
		FrameIntervalMS:          16,
		GazeSampleIntervalMS:     100,
		ValidationWindowMS:       3000,
		PursuitDurationMS:        20_000,
		ClicksPerPoint:           3,
		DwellRadiusPx:            150,
		RecalibrationThresholdPx: 80,
		StabilityWarningPx:       50,
		AccuracyRadiusPx:         100,
		TargetLookbackMS:         1000,
		SampleLookbackMS:         500,
		ViewportWidth:            1920,
		ViewportHeight:           1080,
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// FrameInterval returns FrameIntervalMS as a duration.
func (c *Config) FrameInterval() time.Duration { return ms(c.FrameIntervalMS) }

// GazeSampleInterval returns GazeSampleIntervalMS as a duration.
func (c *Config) GazeSampleInterval() time.Duration { return ms(c.GazeSampleIntervalMS) }

// ValidationWindow returns ValidationWindowMS as a duration.
func (c *Config) ValidationWindow() time.Duration { return ms(c.ValidationWindowMS) }

// PursuitDuration returns PursuitDurationMS as a duration.
func (c *Config) PursuitDuration() time.Duration { return ms(c.PursuitDurationMS) }

// UploadRetryDelay returns UploadRetryDelayMS as a duration.
func (c *Config) UploadRetryDelay() time.Duration { return ms(c.UploadRetryDelayMS) }

// UploadTimeout returns UploadTimeoutMS as a duration.
func (c *Config) UploadTimeout() time.Duration { return ms(c.UploadTimeoutMS) }

// Viewport returns the default viewport.
func (c *Config) Viewport() model.Viewport {
	return model.Viewport{Width: c.ViewportWidth, Height: c.ViewportHeight}
}
