package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/syncgaze/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends log output to both the console and a file. If logFile
// is empty, a timestamped filename is generated. The returned function
// closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	if logFile == "" {
		logFile = "simulate_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`syncgaze session simulator
==========================

Drives complete participant sessions against a running syncgaze service.
Each simulated participant acts as the browser: it attaches to the session's
estimator feed, answers the estimator commands with a simulated gaze
estimator, walks calibration and validation, plays the target task and
exports the resulting report.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -sessions int
        Number of participant sessions (default 1)
  -workers int
        Number of sessions run concurrently (default 1)
  -targets int
        Targets shown per task (default 20)
  -interval duration
        Gaze emission and polling period (default 33ms)
  -timeout duration
        HTTP request timeout (default 10s)
  -phase-timeout duration
        Longest wait for pursuit or validation to end (default 1m)
  -max-recalibrations int
        Failed validations retried before proceeding anyway (default 2)
  -noise float
        Simulated estimator noise in pixels (default 20)
  -bias float
        Untrained estimator bias in pixels (default 120)
  -width, -height float
        Viewport reported for each session (default 1920x1080)
  -seed uint
        Base random seed (default: current time)
  -out string
        Directory for exported reports (default: not saved)
  -log string
        Log file (default: simulate_log_TIMESTAMP.log)
  -verbose
        Log every session and target
  -help
        Show this help message

Examples:
  # One session with default settings
  go run ./cmd/simulate

  # Ten sessions, four at a time, keeping the reports
  go run ./cmd/simulate -sessions 10 -workers 4 -out reports

  # A noisy estimator that should trigger recalibration
  go run ./cmd/simulate -noise 80 -bias 300 -verbose
`)
}
