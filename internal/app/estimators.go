package service

import (
	"context"
	"fmt"

	"github.com/okian/syncgaze/internal/adapters/estimator/remote"
	"github.com/okian/syncgaze/internal/adapters/estimator/synthetic"
	"github.com/okian/syncgaze/internal/domain/calibration"
)

// Estimator kinds accepted by CreateSession.
const (
	EstimatorRemote    = "remote"
	EstimatorMQTT      = "mqtt"
	EstimatorSynthetic = "synthetic"
)

// EstimatorFactory builds the estimator of a new session.
type EstimatorFactory func(ctx context.Context, sessionID, kind string) (calibration.Estimator, error)

func (s *Service) defaultEstimator(_ context.Context, sessionID, kind string) (calibration.Estimator, error) {
	switch kind {
	case "", EstimatorRemote:
		return remote.New(), nil
	case EstimatorMQTT:
		if s.mqtt == nil {
			return nil, fmt.Errorf("%s: %w", kind, ErrEstimatorDisabled)
		}
		return s.mqtt.Estimator(sessionID), nil
	case EstimatorSynthetic:
		return synthetic.New(), nil
	default:
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownEstimator)
	}
}
