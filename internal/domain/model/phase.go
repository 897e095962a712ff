package model

import "fmt"

// Phase is the calibration/session phase. Exactly one is active per session.
type Phase uint8

// Phases, in protocol order.
const (
	PhaseIdle Phase = iota
	PhaseFaceCheck
	PhaseCalibrating1
	PhaseCalibrating2
	PhaseConfirmValidation
	PhaseValidating
	PhaseTask
	PhaseRecalibrating
	PhaseFinished
	PhaseError
)

var phaseNames = [...]string{
	PhaseIdle:              "idle",
	PhaseFaceCheck:         "faceCheck",
	PhaseCalibrating1:      "calibrating1",
	PhaseCalibrating2:      "calibrating2",
	PhaseConfirmValidation: "confirmValidation",
	PhaseValidating:        "validating",
	PhaseTask:              "task",
	PhaseRecalibrating:     "recalibrating",
	PhaseFinished:          "finished",
	PhaseError:             "error",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return PhaseIdle, fmt.Errorf("unknown phase %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
