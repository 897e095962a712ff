package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/syncgaze/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.RecalibrationThresholdPx, convey.ShouldEqual, 80)
				convey.So(cfg.UploadURL, convey.ShouldEqual, "")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SYNCGAZE_ADDR", ":8080")
			_ = os.Setenv("SYNCGAZE_RECALIBRATION_THRESHOLD_PX", "150")
			_ = os.Setenv("SYNCGAZE_UPLOAD_RETRIES", "5")
			_ = os.Setenv("SYNCGAZE_UPLOAD_URL", "http://collector:9080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.RecalibrationThresholdPx, convey.ShouldEqual, 150)
				convey.So(cfg.UploadRetries, convey.ShouldEqual, 5)
				convey.So(cfg.UploadURL, convey.ShouldEqual, "http://collector:9080")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
dwell_radius_px: 120
validation_window_ms: 2500
mqtt_broker: "tcp://localhost:1883"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SYNCGAZE_CONFIG", tmpFile)
			_ = os.Setenv("SYNCGAZE_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DwellRadiusPx, convey.ShouldEqual, 120)
				convey.So(cfg.ValidationWindowMS, convey.ShouldEqual, 2500)
				convey.So(cfg.MQTTBroker, convey.ShouldEqual, "tcp://localhost:1883")
				convey.So(cfg.PursuitDurationMS, convey.ShouldEqual, 20_000)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SYNCGAZE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SYNCGAZE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("SYNCGAZE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-numeric threshold", func() {
			_ = os.Setenv("SYNCGAZE_CLICKS_PER_POINT", "three")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When metric names come from a file and the environment", func() {
			tmpFile := createTempConfigFile("metrics_namespace: lab\nmetrics_latency_buckets_ms: [2, 20, 200]\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SYNCGAZE_CONFIG", tmpFile)
			_ = os.Setenv("SYNCGAZE_METRICS_SUBSYSTEM", "eyes")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then both layers are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "lab")
				convey.So(cfg.MetricsSubsystem, convey.ShouldEqual, "eyes")
				convey.So(cfg.MetricsLatencyBucketsMS, convey.ShouldResemble, []float64{2, 20, 200})
			})
		})

		convey.Convey("When the metrics namespace is not a Prometheus name", func() {
			_ = os.Setenv("SYNCGAZE_METRICS_NAMESPACE", "sync-gaze")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation should reject it", func() {
				convey.So(errors.Is(err, config.ErrMetricName), convey.ShouldBeTrue)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the latency buckets are out of order", func() {
			tmpFile := createTempConfigFile("metrics_latency_buckets_ms: [50, 10]\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SYNCGAZE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation should reject them", func() {
				convey.So(errors.Is(err, config.ErrLatencyBuckets), convey.ShouldBeTrue)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with zero clicks per point", func() {
			_ = os.Setenv("SYNCGAZE_CLICKS_PER_POINT", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation should reject it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"SYNCGAZE_CONFIG",
		"SYNCGAZE_ADDR",
		"SYNCGAZE_RECALIBRATION_THRESHOLD_PX",
		"SYNCGAZE_UPLOAD_RETRIES",
		"SYNCGAZE_UPLOAD_URL",
		"SYNCGAZE_CLICKS_PER_POINT",
		"SYNCGAZE_METRICS_NAMESPACE",
		"SYNCGAZE_METRICS_SUBSYSTEM",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "syncgaze-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
