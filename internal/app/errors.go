package service

import "errors"

// Sentinel errors returned by the service. Estimator errors
// (estimator.ErrInvalidInput, ErrNoModels, ErrNoValidPrediction) pass through
// unchanged.
var (
	// ErrDataFetch reports that the reference dataset could not be read.
	ErrDataFetch = errors.New("reference data fetch failed")
	// ErrDataWrite reports that a sample could not be written.
	ErrDataWrite = errors.New("reference data write failed")
	// ErrEmptyDataset reports a readable but empty reference dataset.
	ErrEmptyDataset = errors.New("reference dataset is empty")
	// ErrInvalidSample reports a sample that fails entry validation.
	ErrInvalidSample = errors.New("invalid sample")
	// ErrIdentityRequired reports a write without a submitter identity.
	ErrIdentityRequired = errors.New("submitter identity required")
	// ErrSampleNotFound reports an unknown sample id.
	ErrSampleNotFound = errors.New("sample not found")
	// ErrNotStarted reports a call before Start.
	ErrNotStarted = errors.New("service not started")
)
