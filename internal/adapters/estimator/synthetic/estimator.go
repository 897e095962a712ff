// Package synthetic is a simulated gaze estimator. It reports where the
// simulated participant looks, offset by a bias that shrinks with every
// training point and blurred with Gaussian noise.
package synthetic

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/model"
)

// Defaults for the simulated estimator.
const (
	DefaultNoisePx  = 15
	DefaultBiasPx   = 120
	DefaultDecay    = 0.85
	DefaultInterval = 33 * time.Millisecond
)

// Estimator implements calibration.Estimator and calibration.Trainer.
type Estimator struct {
	mu sync.Mutex

	interval time.Duration
	noiseX   distuv.Normal
	noiseY   distuv.Normal
	drop     distuv.Bernoulli
	initial  model.Point
	bias     model.Point
	decay    float64
	beginErr error

	look     *model.Point
	listener func(*model.Point)
	trained  int
	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

var (
	_ calibration.Estimator = (*Estimator)(nil)
	_ calibration.Trainer   = (*Estimator)(nil)
)

// New returns a simulated estimator.
func New(opts ...Option) *Estimator {
	cfg := config{
		noise:    DefaultNoisePx,
		biasX:    DefaultBiasPx,
		biasY:    -DefaultBiasPx / 2,
		decay:    DefaultDecay,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var src rand.Source
	if cfg.seeded {
		src = rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15)
	}
	e := &Estimator{
		interval: cfg.interval,
		noiseX:   distuv.Normal{Mu: 0, Sigma: cfg.noise, Src: src},
		noiseY:   distuv.Normal{Mu: 0, Sigma: cfg.noise, Src: src},
		drop:     distuv.Bernoulli{P: cfg.dropRate, Src: src},
		initial:  model.Point{X: cfg.biasX, Y: cfg.biasY},
		decay:    cfg.decay,
		beginErr: cfg.beginErr,
	}
	e.bias = e.initial
	return e
}

// Look sets where the simulated participant is looking. nil means the face
// is not visible and estimates are nil.
func (e *Estimator) Look(p *model.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p == nil {
		e.look = nil
		return
	}
	cp := *p
	e.look = &cp
}

// Begin starts emitting estimates every interval. With a zero interval the
// caller drives estimates through Emit.
func (e *Estimator) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.beginErr != nil {
		return e.beginErr
	}
	if e.running {
		return nil
	}
	e.running = true
	if e.interval > 0 {
		e.stop = make(chan struct{})
		e.wg.Add(1)
		go e.loop(e.stop)
	}
	return nil
}

func (e *Estimator) loop(stop <-chan struct{}) {
	defer e.wg.Done()
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			e.Emit()
		}
	}
}

// End stops the emitter.
func (e *Estimator) End() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

// Emit produces one estimate and hands it to the listener. It reports
// whether a listener was called.
func (e *Estimator) Emit() bool {
	e.mu.Lock()
	fn := e.listener
	if !e.running || fn == nil {
		e.mu.Unlock()
		return false
	}
	var p *model.Point
	if e.look != nil && e.drop.Rand() == 0 {
		p = model.Pt(
			e.look.X+e.bias.X+e.noiseX.Rand(),
			e.look.Y+e.bias.Y+e.noiseY.Rand(),
		)
	}
	e.mu.Unlock()

	fn(p)
	return true
}

// SetGazeListener sets the estimate callback.
func (e *Estimator) SetGazeListener(fn func(*model.Point)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = fn
}

// ClearGazeListener removes the estimate callback.
func (e *Estimator) ClearGazeListener() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = nil
}

// ClearData forgets all training; the bias returns to its initial value.
func (e *Estimator) ClearData() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bias = e.initial
	e.trained = 0
}

// Train shrinks the bias by the decay factor.
func (e *Estimator) Train(_, _ float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bias.X *= e.decay
	e.bias.Y *= e.decay
	e.trained++
}

// Bias returns the current systematic offset.
func (e *Estimator) Bias() model.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bias
}

// Trained returns the number of training points since the last ClearData.
func (e *Estimator) Trained() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trained
}
