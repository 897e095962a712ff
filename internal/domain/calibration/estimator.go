package calibration

import (
	"context"

	"github.com/okian/syncgaze/internal/domain/model"
)

// Estimator is the black-box gaze estimator. The listener may be invoked
// from any goroutine, with nil when the estimator has no estimate, and may
// fire before Begin returns.
type Estimator interface {
	Begin(ctx context.Context) error
	End() error
	SetGazeListener(fn func(*model.Point))
	ClearGazeListener()
	ClearData()
}

// Trainer is implemented by estimators that learn from known screen
// positions (clicks on calibration dots, pursuit frames).
type Trainer interface {
	Train(x, y float64)
}
