package calibration

import (
	"fmt"

	"github.com/okian/syncgaze/internal/domain/model"
)

var allowed = map[model.Phase][]model.Phase{
	model.PhaseIdle:              {model.PhaseFaceCheck},
	model.PhaseFaceCheck:         {model.PhaseCalibrating1},
	model.PhaseCalibrating1:      {model.PhaseCalibrating2},
	model.PhaseCalibrating2:      {model.PhaseConfirmValidation},
	model.PhaseConfirmValidation: {model.PhaseValidating},
	model.PhaseValidating:        {model.PhaseTask, model.PhaseRecalibrating},
	model.PhaseRecalibrating:     {model.PhaseCalibrating1},
	model.PhaseTask:              {model.PhaseFinished},
}

// CanTransition reports whether from -> to is part of the protocol. Every
// phase may move to error and back to idle.
func CanTransition(from, to model.Phase) bool {
	if to == model.PhaseError || to == model.PhaseIdle {
		return true
	}
	for _, p := range allowed[from] {
		if p == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to model.Phase) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
