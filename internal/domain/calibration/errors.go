package calibration

import "errors"

var (
	// ErrInvalidTransition is returned for a phase change the protocol does not allow.
	ErrInvalidTransition = errors.New("invalid phase transition")
	// ErrInvalidPhase is returned when a command does not apply to the current phase.
	ErrInvalidPhase = errors.New("command not valid in current phase")
	// ErrEstimatorUnavailable is returned when the gaze estimator cannot be started.
	// It is fatal for the calibration flow.
	ErrEstimatorUnavailable = errors.New("gaze estimator unavailable")
	// ErrNoFaceDetected is returned when face confirmation is attempted before
	// any gaze sample arrived.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrValidationPending is returned when a validation decision is requested
	// before the validation window has closed.
	ErrValidationPending = errors.New("validation still collecting samples")
)
