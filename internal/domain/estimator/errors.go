package estimator

import "errors"

// Sentinel errors returned by the estimator.
var (
	// ErrInvalidInput reports a query blend or signal that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoModels reports that no fiber type had enough training rows.
	ErrNoModels = errors.New("no fiber models could be built")
	// ErrNoValidPrediction reports that no fiber had both a positive weight
	// and a usable model for the query.
	ErrNoValidPrediction = errors.New("no valid prediction")
	// ErrFitFailed wraps a regression failure for one fiber.
	ErrFitFailed = errors.New("fiber model fit failed")
)
