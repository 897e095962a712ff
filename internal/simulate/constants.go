package simulate

import "time"

// Defaults for a simulation run.
const (
	DefaultSessions          = 1
	DefaultTargets           = 20
	DefaultInterval          = 33 * time.Millisecond
	DefaultTimeout           = 10 * time.Second
	DefaultPhaseTimeout      = time.Minute
	DefaultMaxRecalibrations = 2
	DefaultNoisePx           = 20
	DefaultBiasPx            = 120
)

// Task geometry.
const (
	targetMarginFraction = 0.1
	pointerJitterPx      = 8
	gazePerTarget        = 3
)
