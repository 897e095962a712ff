package service

import (
	"context"
	"fmt"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/session"
)

// Session actions accepted by Do.
const (
	ActionStart             = "start"
	ActionConfirmFace       = "confirm-face"
	ActionClick             = "click"
	ActionConfirmValidation = "confirm-validation"
	ActionProceed           = "proceed"
	ActionRecalibrate       = "recalibrate"
	ActionTick              = "tick"
	ActionHit               = "hit"
	ActionTarget            = "target"
	ActionPointer           = "pointer"
	ActionFinish            = "finish"
	ActionClose             = "close"
)

// Action is a command for a live session. Hit, Target and Pointer carry the
// parameters of the actions of the same name.
type Action struct {
	Name    string             `json:"action"`
	Hit     *model.HitEvent    `json:"hit,omitempty"`
	Target  *model.TargetFrame `json:"target,omitempty"`
	Pointer *model.Point       `json:"pointer,omitempty"`
}

// ActionResult is the session state after an action.
type ActionResult struct {
	State    session.Snapshot        `json:"state"`
	Record   *model.CorrelatedRecord `json:"record,omitempty"`
	Finished *FinishResult           `json:"finished,omitempty"`
}

// Do applies an action to a live session.
func (s *Service) Do(ctx context.Context, id string, a Action) (ActionResult, error) {
	e, err := s.lookup(id)
	if err != nil {
		return ActionResult{}, err
	}
	sess := e.sess
	var res ActionResult

	switch a.Name {
	case ActionStart:
		err = sess.Start(ctx)
	case ActionConfirmFace:
		err = sess.ConfirmFace(ctx)
	case ActionClick:
		err = sess.Click(ctx)
	case ActionConfirmValidation:
		err = sess.ConfirmValidation(ctx)
	case ActionProceed:
		err = sess.Proceed(ctx)
	case ActionRecalibrate:
		err = sess.Recalibrate(ctx)
	case ActionTick:
		err = sess.Tick(ctx)
	case ActionHit:
		if a.Hit == nil {
			return res, fmt.Errorf("%s: %w", a.Name, ErrMissingActionParams)
		}
		var rec model.CorrelatedRecord
		rec, err = sess.Hit(ctx, *a.Hit)
		if err == nil {
			res.Record = &rec
		}
	case ActionTarget:
		sess.SetTarget(a.Target)
	case ActionPointer:
		if a.Pointer == nil {
			return res, fmt.Errorf("%s: %w", a.Name, ErrMissingActionParams)
		}
		sess.PublishPointer(a.Pointer)
	case ActionFinish:
		res.Finished, err = s.Finish(ctx, id)
	case ActionClose:
		if res.State, err = sess.State(ctx); err != nil {
			return res, err
		}
		return res, sess.Close(ctx)
	default:
		return res, fmt.Errorf("%q: %w", a.Name, ErrUnknownAction)
	}
	if err != nil {
		return res, err
	}

	res.State, err = sess.State(ctx)
	return res, err
}
