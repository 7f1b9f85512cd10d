package api

import (
	"context"
	"net/http"
)

// ReadinessChecker reports whether the backing service can take requests.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	ready ReadinessChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ready ReadinessChecker) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.ready.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) map[string]any
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats(r.Context()))
}
