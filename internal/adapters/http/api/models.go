package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
)

// ModelDependencies exposes the trained fiber models.
type ModelDependencies interface {
	Models(ctx context.Context) ([]estimator.Summary, error)
	Series(ctx context.Context, fiber model.FiberType, steps int) (estimator.Series, error)
}

// ModelsHandler handles model reporting requests.
type ModelsHandler struct {
	deps ModelDependencies
	opts options
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps ModelDependencies, o options) *ModelsHandler {
	return &ModelsHandler{deps: deps, opts: o}
}

// HandleList handles GET /models requests.
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_models"
	sums, err := h.deps.Models(r.Context())
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

// HandleSeries handles GET /models/{fiber}/series?steps=N requests.
func (h *ModelsHandler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	const op = "api.model_series"
	fiber, err := model.ParseFiberType(r.PathValue("fiber"))
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	steps := defaultSeriesSteps
	if raw := r.URL.Query().Get("steps"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 || n > maxSeriesSteps {
			writeError(w, r, h.opts.logger, NewKind(op, ErrBadRequest))
			return
		}
		steps = n
	}
	series, err := h.deps.Series(r.Context(), fiber, steps)
	if err != nil {
		writeError(w, r, h.opts.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, series)
}
