package session

import "errors"

var (
	// ErrClosed is returned by commands sent to a session whose loop has exited.
	ErrClosed = errors.New("session closed")
	// ErrNotRunning is returned when a command is sent before Run was called.
	ErrNotRunning = errors.New("session loop not running")
	// ErrTimestampRange is returned for hits timestamped too far from the
	// session clock.
	ErrTimestampRange = errors.New("hit timestamp out of range")
)
