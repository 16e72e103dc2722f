package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/fibertrace/pkg/metrics"
)

// StatsProvider reports service counters and the effective configuration.
// The "started" key tells whether the service accepts traffic.
type StatsProvider interface {
	GetStats(ctx context.Context) map[string]any
}

// HealthHandler serves liveness, stats and the Prometheus exposition.
type HealthHandler struct {
	stats   StatsProvider
	metrics http.Handler
}

// NewHealthHandler creates a health handler backed by stats.
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{
		stats:   stats,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth answers GET /healthz: 200 once the service is started,
// 503 before.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if started, _ := h.stats.GetStats(r.Context())["started"].(bool); !started {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Code: "unavailable", Message: "service not started"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStats answers GET /stats.
func (h *HealthHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.GetStats(r.Context()))
}

// HandleMetrics answers GET /metrics.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
