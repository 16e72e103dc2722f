// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/fibertrace/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SampleDependencies
	EstimateDependencies
	ModelDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	log             logger.Logger
	healthHandler   *HealthHandler
	samplesHandler  *SamplesHandler
	estimateHandler *EstimateHandler
	modelsHandler   *ModelsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := newOptions(opts...)
	return &Server{
		log:             o.logger,
		healthHandler:   NewHealthHandler(deps),
		samplesHandler:  NewSamplesHandler(deps, o),
		estimateHandler: NewEstimateHandler(deps, o),
		modelsHandler:   NewModelsHandler(deps, o),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	routes := []struct {
		pattern string
		route   string
		handler http.HandlerFunc
	}{
		{"GET /healthz", "healthz", s.healthHandler.HandleHealth},
		{"GET /metrics", "metrics", s.healthHandler.HandleMetrics},
		{"GET /stats", "stats", s.healthHandler.HandleStats},

		{"GET /samples", "samples", s.samplesHandler.HandleList},
		{"POST /samples", "samples", s.samplesHandler.HandleCreate},
		{"POST /samples/refresh", "samples_refresh", s.samplesHandler.HandleRefresh},
		{"GET /samples/{id}", "sample", s.samplesHandler.HandleGet},
		{"PUT /samples/{id}", "sample", s.samplesHandler.HandleUpdate},
		{"DELETE /samples/{id}", "sample", s.samplesHandler.HandleDelete},

		{"POST /estimate", "estimate", s.estimateHandler.HandleEstimate},
		{"GET /models", "models", s.modelsHandler.HandleList},
		{"GET /models/{fiber}/series", "models_series", s.modelsHandler.HandleSeries},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, instrument(s.log, rt.route, rt.handler))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status, logs it and writes the error body.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	} else {
		log.Debug(r.Context(), "request rejected",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// decodeJSON reads a single JSON document from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
