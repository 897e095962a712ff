package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/syncgaze/internal/adapters/estimator/synthetic"
	"github.com/okian/syncgaze/internal/adapters/http/api"
	service "github.com/okian/syncgaze/internal/app"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/session"
	"github.com/okian/syncgaze/pkg/logger"
)

const closeTimeout = 5 * time.Second

// participant drives one session through the whole protocol: face check,
// calibration, validation and the task, then exports the report.
type participant struct {
	index  int
	cfg    Config
	client *HTTPClient
	logger logger.Logger
	src    rand.Source
}

func newParticipant(index int, cfg Config, client *HTTPClient, l logger.Logger) *participant {
	seed := cfg.Seed + uint64(index)
	return &participant{
		index:  index,
		cfg:    cfg,
		client: client,
		logger: l,
		src:    rand.NewPCG(seed, ^seed),
	}
}

func (p *participant) label() string {
	return fmt.Sprintf("SIM-%03d", p.index+1)
}

func (p *participant) run(ctx context.Context) (Outcome, error) {
	var out Outcome
	st, err := p.client.CreateSession(ctx, service.CreateRequest{
		Participant: model.Participant{Label: p.label()},
		Estimator:   service.EstimatorRemote,
		Viewport:    &p.cfg.Viewport,
	})
	if err != nil {
		return out, fmt.Errorf("create session: %w", err)
	}
	out.SessionID = st.ID
	defer p.closeSession(st.ID)

	est := synthetic.New(
		synthetic.WithInterval(0),
		synthetic.WithNoise(p.cfg.NoisePx),
		synthetic.WithBias(p.cfg.BiasPx, -p.cfg.BiasPx/2),
		synthetic.WithSeed(p.cfg.Seed+uint64(p.index)),
	)
	peer, err := dialPeer(ctx, p.client.FeedURL(st.ID), est, p.logger)
	if err != nil {
		return out, err
	}
	err = p.drive(ctx, peer, &out)
	peer.close()
	if err != nil {
		return out, err
	}

	body, err := p.client.Report(ctx, st.ID)
	if err != nil {
		return out, fmt.Errorf("export report: %w", err)
	}
	out.Report = body
	return out, nil
}

func (p *participant) drive(ctx context.Context, peer *peer, out *Outcome) error {
	res, err := peer.do(ctx, service.ActionStart)
	if err != nil {
		return err
	}
	center := p.cfg.Viewport.Center()
	peer.look(&center)
	if res, err = peer.do(ctx, service.ActionConfirmFace); err != nil {
		return err
	}

	st, err := p.calibrate(ctx, peer, res.State, out)
	if err != nil {
		return err
	}
	out.Recalibrations = st.Calibration.Recalibrations
	if err := p.task(ctx, peer); err != nil {
		return err
	}

	res, err = peer.do(ctx, service.ActionFinish)
	if err != nil {
		return err
	}
	if f := res.Finished; f != nil {
		out.ReportID = f.ReportID
		out.StoragePath = f.StoragePath
		out.Summary = f.Summary
	}
	return nil
}

// calibrate walks the calibration phases until the task starts.
func (p *participant) calibrate(ctx context.Context, peer *peer, st session.Snapshot, out *Outcome) (session.Snapshot, error) {
	center := p.cfg.Viewport.Center()
	for {
		var (
			res service.ActionResult
			err error
		)
		switch phase := st.Calibration.Phase; phase {
		case model.PhaseCalibrating1:
			peer.look(st.Calibration.Target)
			res, err = peer.do(ctx, service.ActionClick)
			st = res.State
		case model.PhaseCalibrating2:
			st, err = p.until(ctx, st.ID,
				func(s session.Snapshot) { peer.look(s.Calibration.Target) },
				func(s session.Snapshot) bool { return s.Calibration.Phase != model.PhaseCalibrating2 })
		case model.PhaseConfirmValidation:
			res, err = peer.do(ctx, service.ActionConfirmValidation)
			st = res.State
		case model.PhaseValidating:
			st, err = p.until(ctx, st.ID,
				func(session.Snapshot) { peer.look(&center) },
				func(s session.Snapshot) bool {
					return s.Calibration.Phase != model.PhaseValidating || s.Calibration.AwaitingDecision
				})
			if err != nil || st.Calibration.Phase != model.PhaseValidating {
				break
			}
			out.Validation = st.Calibration.Validation
			res, err = peer.do(ctx, p.decide(st))
			st = res.State
		case model.PhaseRecalibrating:
			st, err = p.until(ctx, st.ID, func(session.Snapshot) {},
				func(s session.Snapshot) bool { return s.Calibration.Phase != model.PhaseRecalibrating })
		case model.PhaseTask:
			return st, nil
		case model.PhaseError:
			return st, fmt.Errorf("%w: %s", ErrSessionFailed, st.Calibration.Error)
		default:
			return st, fmt.Errorf("%w: unexpected phase %s", ErrActionFailed, phase)
		}
		if err != nil {
			return st, err
		}
	}
}

// decide accepts a passed validation, or a failed one once the
// recalibration allowance is used up.
func (p *participant) decide(st session.Snapshot) string {
	v := st.Calibration.Validation
	if v != nil && v.Passed {
		return service.ActionProceed
	}
	if st.Calibration.Recalibrations >= p.cfg.MaxRecalibrations {
		p.logger.Warn(context.Background(), "validation failed, proceeding anyway",
			logger.String("session", st.ID),
			logger.Int("recalibrations", st.Calibration.Recalibrations))
		return service.ActionProceed
	}
	return service.ActionRecalibrate
}

// until polls the session every interval, calling each on every snapshot,
// until done holds or the phase timeout expires.
func (p *participant) until(ctx context.Context, id string, each func(session.Snapshot), done func(session.Snapshot) bool) (session.Snapshot, error) {
	pctx, cancel := context.WithTimeout(ctx, p.cfg.PhaseTimeout)
	defer cancel()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var st session.Snapshot
	for {
		s, err := p.client.State(pctx, id)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return st, fmt.Errorf("%w: %s", ErrPhaseTimeout, st.Calibration.Phase)
			}
			return st, err
		}
		st = s
		if done(st) {
			return st, nil
		}
		each(st)
		select {
		case <-pctx.Done():
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			return st, fmt.Errorf("%w: %s", ErrPhaseTimeout, st.Calibration.Phase)
		case <-ticker.C:
		}
	}
}

// task shows the configured number of targets. For each one the simulated
// participant looks at it, moves the pointer close to it and clicks.
func (p *participant) task(ctx context.Context, peer *peer) error {
	margin := model.Point{
		X: p.cfg.Viewport.Width * targetMarginFraction,
		Y: p.cfg.Viewport.Height * targetMarginFraction,
	}
	xs := distuv.Uniform{Min: margin.X, Max: p.cfg.Viewport.Width - margin.X, Src: p.src}
	ys := distuv.Uniform{Min: margin.Y, Max: p.cfg.Viewport.Height - margin.Y, Src: p.src}
	jitter := distuv.Normal{Mu: 0, Sigma: pointerJitterPx, Src: p.src}

	for i := 0; i < p.cfg.Targets; i++ {
		id := fmt.Sprintf("t%d", i+1)
		pos := model.Point{X: xs.Rand(), Y: ys.Rand()}
		if err := peer.target(&model.TargetFrame{TargetID: &id, Screen: &pos}); err != nil {
			return fmt.Errorf("send target: %w", err)
		}
		for k := 0; k < gazePerTarget; k++ {
			peer.look(&pos)
			if err := sleep(ctx, p.cfg.Interval); err != nil {
				return err
			}
		}
		if err := peer.pointer(model.Point{X: pos.X + jitter.Rand(), Y: pos.Y + jitter.Rand()}); err != nil {
			return fmt.Errorf("send pointer: %w", err)
		}
		res, err := peer.action(ctx, api.FeedMessage{
			Type: api.FeedHit,
			Hit:  &model.HitEvent{TargetID: &id, Kind: model.HitClick},
		})
		if err != nil {
			return err
		}
		if p.cfg.Verbose && res.Record != nil {
			p.logger.Debug(ctx, "target hit",
				logger.String("session", res.State.ID),
				logger.String("target", id),
				logger.Bool("hit", res.Record.HitRegistered),
				logger.Any("gaze", res.Record.Gaze))
		}
	}
	return nil
}

func (p *participant) closeSession(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if _, err := p.client.Action(ctx, id, service.Action{Name: service.ActionClose}); err != nil {
		p.logger.Debug(ctx, "close session failed", logger.String("session", id), logger.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
