package upload

import "errors"

var (
	// ErrUploadExhausted is returned once every attempt failed.
	ErrUploadExhausted = errors.New("upload attempts exhausted")
	// ErrRejected is returned for a 4xx response; it is not retried.
	ErrRejected = errors.New("upload rejected by collector")
)
