package simulate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

// Worker configuration constants.
const (
	workerChannelMultiplier = 2
	percentageMultiplier    = 100
)

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Sessions <= 0 {
		c.Sessions = DefaultSessions
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Workers > c.Sessions {
		c.Workers = c.Sessions
	}
	if c.Targets < 0 {
		c.Targets = DefaultTargets
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = DefaultPhaseTimeout
	}
	if c.MaxRecalibrations < 0 {
		c.MaxRecalibrations = 0
	}
	if !c.Viewport.Valid() {
		c.Viewport = model.Viewport{Width: 1920, Height: 1080}
	}
}

// Run simulates the configured number of participants against the service
// and returns the aggregated statistics. It fails only when no session
// finishes.
func Run(ctx context.Context, config *Config) (*Stats, []Outcome, error) {
	config.Normalize()
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("sessions", config.Sessions),
		logger.Int("workers", config.Workers),
		logger.Int("targets", config.Targets),
		logger.Duration("interval", config.Interval),
		logger.Bool("verbose", config.Verbose))

	client := newHTTPClient(config.BaseURL, config.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, nil, fmt.Errorf("service health check failed: %w", err)
	}

	outcomes := runSessions(ctx, config, client, log, stats)

	for _, out := range outcomes {
		if config.OutputDir == "" || out.Report == "" {
			continue
		}
		if err := saveReport(config.OutputDir, out); err != nil {
			log.Warn(ctx, "failed to save report", logger.String("session", out.SessionID), logger.Error(err))
			continue
		}
		stats.ReportsExported++
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if stats.SessionsFinished == 0 {
		return stats, outcomes, ErrNoSessions
	}
	return stats, outcomes, nil
}

// runSessions feeds participant indexes to a fixed pool of workers.
func runSessions(ctx context.Context, config *Config, client *HTTPClient, log logger.Logger, stats *Stats) []Outcome {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes []Outcome
	)
	jobs := make(chan int, config.Workers*workerChannelMultiplier)

	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				p := newParticipant(i, *config, client, log)
				mu.Lock()
				stats.SessionsStarted++
				mu.Unlock()

				out, err := p.run(ctx)

				mu.Lock()
				record(stats, config, out, err)
				if err == nil {
					outcomes = append(outcomes, out)
				}
				mu.Unlock()

				if err != nil {
					log.Warn(ctx, "session failed",
						logger.String("participant", p.label()),
						logger.String("session", out.SessionID),
						logger.Error(err))
				} else if config.Verbose {
					log.Info(ctx, "session finished",
						logger.String("participant", p.label()),
						logger.String("session", out.SessionID),
						logger.String("report", out.ReportID),
						logger.Int("recalibrations", out.Recalibrations))
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < config.Sessions; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()
	return outcomes
}

func record(stats *Stats, config *Config, out Outcome, err error) {
	stats.Recalibrations += out.Recalibrations
	if err != nil {
		stats.SessionsFailed++
		return
	}
	stats.SessionsFinished++
	stats.TargetsShown += config.Targets
	if out.Validation != nil && out.Validation.Passed {
		stats.ValidationPassed++
	}
	if out.Summary != nil {
		stats.TargetsHit += out.Summary.TargetsHit
		stats.AccuracySum += out.Summary.Accuracy
	}
}

// saveReport writes an exported report under dir using its storage name.
func saveReport(dir string, out Outcome) error {
	name := filepath.Base(out.StoragePath)
	if out.StoragePath == "" {
		name = "gaze-results-" + out.SessionID + ".csv"
	}
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	path := filepath.Join(dir, out.SessionID+"-"+name)
	if err := os.WriteFile(path, []byte(out.Report), reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var finishRate, sessionsPerMinute float64
	if stats.SessionsStarted > 0 {
		finishRate = float64(stats.SessionsFinished) / float64(stats.SessionsStarted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		sessionsPerMinute = float64(stats.SessionsFinished) / stats.Duration.Minutes()
	}

	log.Info(ctx, "final statistics",
		logger.Int("sessionsStarted", stats.SessionsStarted),
		logger.Int("sessionsFinished", stats.SessionsFinished),
		logger.Int("sessionsFailed", stats.SessionsFailed),
		logger.Int("recalibrations", stats.Recalibrations),
		logger.Int("validationPassed", stats.ValidationPassed),
		logger.Int("targetsShown", stats.TargetsShown),
		logger.Int("targetsHit", stats.TargetsHit),
		logger.Float64("avgAccuracy", stats.AvgAccuracy()),
		logger.Int("reportsExported", stats.ReportsExported),
		logger.Duration("duration", stats.Duration),
		logger.Float64("finishRate", finishRate),
		logger.Float64("sessionsPerMinute", sessionsPerMinute))
}
