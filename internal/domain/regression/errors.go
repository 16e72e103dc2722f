package regression

import "errors"

// Sentinel errors returned by the fitter.
var (
	ErrNoData         = errors.New("no observations")
	ErrLengthMismatch = errors.New("length mismatch")
	ErrNonFinite      = errors.New("non-finite value")
	ErrUnknownKind    = errors.New("unknown model kind")
)
