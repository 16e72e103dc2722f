package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound    = errors.New("sample not found")
	ErrDuplicateID = errors.New("sample id already exists")
	ErrMissingID   = errors.New("sample id is required")
	ErrClosed      = errors.New("store closed")
)
