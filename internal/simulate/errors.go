package simulate

import "errors"

// Sentinel errors for simulation runs.
var (
	ErrRequest       = errors.New("service request failed")
	ErrFeedClosed    = errors.New("estimator feed closed")
	ErrActionFailed  = errors.New("session action failed")
	ErrPhaseTimeout  = errors.New("phase did not complete in time")
	ErrSessionFailed = errors.New("session entered the error phase")
	ErrNoSessions    = errors.New("no sessions finished")
)
