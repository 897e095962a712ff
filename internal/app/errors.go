package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted          = errors.New("service not started")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUnknownAction       = errors.New("unknown session action")
	ErrUnknownEstimator    = errors.New("unknown estimator kind")
	ErrEstimatorDisabled   = errors.New("estimator kind not configured")
	ErrNoFeed              = errors.New("session has no remote feed")
	ErrInvalidReport       = errors.New("invalid report")
	ErrMissingSessionID    = errors.New("report has no session id")
	ErrMissingActionParams = errors.New("missing action parameters")
)
