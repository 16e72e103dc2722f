package api

import (
	"context"
	"net/http"

	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
)

// EstimateDependencies defines the estimation operation.
type EstimateDependencies interface {
	Estimate(ctx context.Context, q estimator.Query) (estimator.Estimate, error)
}

// estimateRequest mirrors the OpenAPI schema for POST /estimate. The blend
// sum is checked by the estimator against its configured tolerance. The ash
// colour is optional and feeds multivariate models.
type estimateRequest struct {
	SignalCount    *float64 `json:"signal_count" validate:"required"`
	PercentWhite   float64  `json:"percent_white"`
	PercentBlack   float64  `json:"percent_black"`
	PercentDenim   float64  `json:"percent_denim"`
	PercentNatural float64  `json:"percent_natural"`
	AshColor       string   `json:"ash_color" validate:"omitempty,ashcolor"`
}

func (req estimateRequest) query() estimator.Query {
	return estimator.Query{
		Signal: deref(req.SignalCount),
		Blend: model.Blend{
			White:   req.PercentWhite,
			Black:   req.PercentBlack,
			Denim:   req.PercentDenim,
			Natural: req.PercentNatural,
		},
		AshColor: req.AshColor,
	}
}

type estimateResponse struct {
	Query estimator.Query `json:"query"`
	estimator.Estimate
}

// EstimateHandler handles estimate requests.
type EstimateHandler struct {
	deps EstimateDependencies
	opts options
}

// NewEstimateHandler creates a new estimate handler.
func NewEstimateHandler(deps EstimateDependencies, o options) *EstimateHandler {
	return &EstimateHandler{deps: deps, opts: o}
}

// HandleEstimate handles POST /estimate requests.
func (h *EstimateHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	const op = "api.estimate"
	var req estimateRequest
	if err := decodeJSON(w, r, h.opts.maxBodyBytes, &req); err != nil {
		writeError(w, r, h.opts.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := sampleValidate.Struct(req); err != nil {
		writeError(w, r, h.opts.logger, WrapKind(op, estimator.ErrInvalidInput, err))
		return
	}
	q := req.query()
	est, err := h.deps.Estimate(r.Context(), q)
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{Query: q, Estimate: est})
}
