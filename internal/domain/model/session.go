package model

import "time"

// ValidationResult is the outcome of one validation window. A recalibration
// supersedes it.
type ValidationResult struct {
	ErrorPx     float64 `json:"errorPx"`
	StabilityPx float64 `json:"stabilityPx"`
	Passed      bool    `json:"passed"`
	SampleCount int     `json:"sampleCount"`
	MeanX       float64 `json:"meanX"`
	MeanY       float64 `json:"meanY"`
}

// ErrorStats summarises a distance distribution in pixels.
type ErrorStats struct {
	Avg     float64 `json:"avg"`
	Median  float64 `json:"median"`
	P95     float64 `json:"p95"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// IntervalStats summarises gaps between successive hits in milliseconds.
type IntervalStats struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// Coverage is the fraction of records carrying each stream.
type Coverage struct {
	Gaze    float64 `json:"gaze"`
	Pointer float64 `json:"pointer"`
}

// ErrorBucket is one second of the error time series.
type ErrorBucket struct {
	SecondOffset int      `json:"second"`
	GazeError    *float64 `json:"gazeError"`
	PointerError *float64 `json:"mouseError"`
}

// SessionSummary is computed once from the full record log and never
// mutated. Ratios are fractions in [0,1]; times are milliseconds.
type SessionSummary struct {
	Records             int           `json:"records"`
	DurationMs          int64         `json:"durationMs"`
	TargetsHit          int           `json:"targetsHit"`
	TotalTargets        int           `json:"totalTargets"`
	Accuracy            float64       `json:"accuracy"`
	AvgReactionTimeMs   float64       `json:"avgReactionTimeMs"`
	ReactionSamples     int           `json:"reactionSamples"`
	GazeAccuracy        float64       `json:"gazeAccuracy"`
	MouseAccuracy       float64       `json:"mouseAccuracy"`
	AvgGazeReactionMs   float64       `json:"avgGazeReactionMs"`
	GazeError           ErrorStats    `json:"gazeError"`
	PointerError        ErrorStats    `json:"mouseError"`
	GazeErrorAtHit      ErrorStats    `json:"gazeErrorAtHit"`
	PointerErrorAtHit   ErrorStats    `json:"mouseErrorAtHit"`
	HitIntervals        IntervalStats `json:"hitIntervals"`
	Synchronization     float64       `json:"synchronization"`
	SynchronizationRows int           `json:"synchronizationSamples"`
	Coverage            Coverage      `json:"coverage"`
	ErrorSeries         []ErrorBucket `json:"errorSeries,omitempty"`
}

// CalibrationInfo captures calibration context carried into the report.
type CalibrationInfo struct {
	Status             string            `json:"status"`
	Validation         *ValidationResult `json:"validation,omitempty"`
	RecalibrationCount int               `json:"recalibrationCount"`
	PursuitSuccessRate *float64          `json:"pursuitSuccessRate,omitempty"`
	ThresholdPx        float64           `json:"thresholdPx"`
	DwellRadiusPx      float64           `json:"dwellRadiusPx"`
	StabilityWarningPx float64           `json:"stabilityWarningPx"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty"`
	Viewport           *Viewport         `json:"viewport,omitempty"`
}

// Participant carries consent metadata supplied when the session is created.
type Participant struct {
	Label            string     `json:"label,omitempty"`
	ConsentAccepted  *bool      `json:"consentAccepted,omitempty"`
	ConsentTimestamp *time.Time `json:"consentTimestamp,omitempty"`
}

// SessionRecord is the persisted shape read by reporting screens.
type SessionRecord struct {
	ID                string             `json:"id"`
	Date              time.Time          `json:"date"`
	DurationSec       float64            `json:"duration"`
	Accuracy          float64            `json:"accuracy"`
	TargetsHit        int                `json:"targetsHit"`
	TotalTargets      int                `json:"totalTargets"`
	AvgReactionTimeMs float64            `json:"avgReactionTime"`
	GazeAccuracy      float64            `json:"gazeAccuracy"`
	MouseAccuracy     float64            `json:"mouseAccuracy"`
	RawData           []CorrelatedRecord `json:"rawData"`
}

// NewSessionRecord projects a summary onto the persisted record shape.
func NewSessionRecord(id string, date time.Time, s *SessionSummary, raw []CorrelatedRecord) SessionRecord {
	return SessionRecord{
		ID:                id,
		Date:              date,
		DurationSec:       float64(s.DurationMs) / 1000,
		Accuracy:          s.Accuracy,
		TargetsHit:        s.TargetsHit,
		TotalTargets:      s.TotalTargets,
		AvgReactionTimeMs: s.AvgReactionTimeMs,
		GazeAccuracy:      s.GazeAccuracy,
		MouseAccuracy:     s.MouseAccuracy,
		RawData:           raw,
	}
}
