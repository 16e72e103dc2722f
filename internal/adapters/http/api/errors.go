package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/fibertrace/internal/app"
	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrInternal   = errors.New("internal error")
)

// OpError records the handler operation, the error kind used for the status
// mapping and the underlying cause.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &OpError{Op: op, Kind: kind}
}

// WrapKind wraps err with an explicit kind.
func WrapKind(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// Wrap attaches op to err and lets the status mapping inspect err itself.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// statusOf maps an error to its HTTP status and machine-readable code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidSample):
		return http.StatusBadRequest, "invalid_sample"
	case errors.Is(err, estimator.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrIdentityRequired):
		return http.StatusUnauthorized, "identity_required"
	case errors.Is(err, service.ErrSampleNotFound), errors.Is(err, model.ErrUnknownFiber):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrEmptyDataset):
		return http.StatusUnprocessableEntity, "empty_dataset"
	case errors.Is(err, estimator.ErrNoModels):
		return http.StatusUnprocessableEntity, "no_models"
	case errors.Is(err, estimator.ErrNoValidPrediction):
		return http.StatusUnprocessableEntity, "no_valid_prediction"
	case errors.Is(err, service.ErrDataFetch):
		return http.StatusBadGateway, "data_fetch_failed"
	case errors.Is(err, service.ErrDataWrite):
		return http.StatusBadGateway, "data_write_failed"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
