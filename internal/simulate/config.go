package simulate

import (
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL           string         // Base URL of the service
	Sessions          int            // Number of participant sessions to run
	Workers           int            // Number of sessions run concurrently
	Targets           int            // Targets shown per task
	Interval          time.Duration  // Gaze emission and polling period
	Timeout           time.Duration  // HTTP request timeout
	PhaseTimeout      time.Duration  // Longest wait for a timed phase to end
	MaxRecalibrations int            // Failed validations retried before proceeding anyway
	NoisePx           float64        // Simulated estimator noise
	BiasPx            float64        // Simulated untrained estimator bias
	Viewport          model.Viewport // Screen size reported for each session
	Seed              uint64         // Base seed; session i uses Seed+i
	OutputDir         string         // Directory for exported reports, empty to skip
	Verbose           bool           // Log every session
}

// Stats holds run statistics.
type Stats struct {
	SessionsStarted  int
	SessionsFinished int
	SessionsFailed   int
	Recalibrations   int
	ValidationPassed int
	TargetsShown     int
	TargetsHit       int
	AccuracySum      float64
	ReportsExported  int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

// AvgAccuracy is the mean task accuracy over finished sessions.
func (s *Stats) AvgAccuracy() float64 {
	if s.SessionsFinished == 0 {
		return 0
	}
	return s.AccuracySum / float64(s.SessionsFinished)
}

// Outcome is the result of one simulated session.
type Outcome struct {
	SessionID      string
	ReportID       string
	StoragePath    string
	Recalibrations int
	Validation     *model.ValidationResult
	Summary        *model.SessionSummary
	Report         string
}
