package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/simulate"
	"github.com/okian/syncgaze/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers  = 1
	defaultWidth    = 1920
	defaultHeight   = 1080
	defaultDeadline = 30 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessions     = flag.Int("sessions", simulate.DefaultSessions, "Number of participant sessions")
		workers      = flag.Int("workers", defaultWorkers, "Number of sessions run concurrently")
		targets      = flag.Int("targets", simulate.DefaultTargets, "Targets shown per task")
		interval     = flag.Duration("interval", simulate.DefaultInterval, "Gaze emission and polling period")
		timeout      = flag.Duration("timeout", simulate.DefaultTimeout, "HTTP request timeout")
		phaseTimeout = flag.Duration("phase-timeout", simulate.DefaultPhaseTimeout, "Longest wait for pursuit or validation to end")
		maxRecal     = flag.Int("max-recalibrations", simulate.DefaultMaxRecalibrations, "Failed validations retried before proceeding anyway")
		noise        = flag.Float64("noise", simulate.DefaultNoisePx, "Simulated estimator noise in pixels")
		bias         = flag.Float64("bias", simulate.DefaultBiasPx, "Untrained estimator bias in pixels")
		width        = flag.Float64("width", defaultWidth, "Viewport width")
		height       = flag.Float64("height", defaultHeight, "Viewport height")
		seed         = flag.Uint64("seed", 0, "Base random seed (default: current time)")
		outputDir    = flag.String("out", "", "Directory for exported reports")
		logFile      = flag.String("log", "", "Log file (default: simulate_log_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()

	config := &simulate.Config{
		BaseURL:           *baseURL,
		Sessions:          *sessions,
		Workers:           *workers,
		Targets:           *targets,
		Interval:          *interval,
		Timeout:           *timeout,
		PhaseTimeout:      *phaseTimeout,
		MaxRecalibrations: *maxRecal,
		NoisePx:           *noise,
		BiasPx:            *bias,
		Viewport:          model.Viewport{Width: *width, Height: *height},
		Seed:              *seed,
		OutputDir:         *outputDir,
		Verbose:           *verbose,
	}

	if _, _, err := simulate.Run(ctx, config); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		_ = closeLog()
		os.Exit(1)
	}
}
