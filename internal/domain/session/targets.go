package session

import (
	"sync"

	"github.com/okian/syncgaze/internal/domain/model"
)

// TargetProvider supplies the task's current target view on demand.
type TargetProvider interface {
	Frame() *model.TargetFrame
}

// TargetBoard is a TargetProvider fed by whoever renders the task.
type TargetBoard struct {
	mu    sync.RWMutex
	frame *model.TargetFrame
}

// Set replaces the current frame. A nil frame means no target is visible.
func (b *TargetBoard) Set(f *model.TargetFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f == nil {
		b.frame = nil
		return
	}
	cp := *f
	b.frame = &cp
}

// Frame returns a copy of the current frame or nil.
func (b *TargetBoard) Frame() *model.TargetFrame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return nil
	}
	cp := *b.frame
	return &cp
}
