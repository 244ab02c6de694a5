package api

import (
	"net/http"

	"github.com/okian/faceid/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// KnownCounter reports the registry size.
type KnownCounter interface {
	Known() int
}

// HealthHandler handles health and metrics requests.
type HealthHandler struct {
	deps    KnownCounter
	metrics http.Handler
}

type healthResponse struct {
	Status string `json:"status"`
	Known  int    `json:"known"`
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps KnownCounter) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /health requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Known: h.deps.Known()})
}

// HandleMetrics handles GET /metrics requests.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	// Use our custom metrics registry to serve metrics
	h.metrics.ServeHTTP(w, r)
}
