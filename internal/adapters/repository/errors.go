package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("already stored")
	ErrInvalidLimit = errors.New("invalid list limit")
)
