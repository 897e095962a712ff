package report

import "errors"

var (
	// ErrMissingHeader is returned when a report has no column header row.
	ErrMissingHeader = errors.New("report header row missing")
	// ErrBadHeader is returned when the header row does not match Header.
	ErrBadHeader = errors.New("report header row mismatch")
	// ErrMalformedRow is returned when a data row cannot be decoded.
	ErrMalformedRow = errors.New("malformed report row")
	// ErrTimestampRange is returned when row timestamps are negative or span
	// more than MaxSpanMs.
	ErrTimestampRange = errors.New("report timestamps out of range")
)
