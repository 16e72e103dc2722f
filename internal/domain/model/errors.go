package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrUnknownFiber = errors.New("unknown fiber type")
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field value")
	ErrInvalidColor = errors.New("invalid ash color")
)
