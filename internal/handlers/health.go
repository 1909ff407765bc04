package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Backend string `json:"backend"`
}

// BackendPinger checks that the RAG backend answers.
type BackendPinger interface {
	Health(ctx context.Context) error
}

// HealthHandler reports whether ragdesk and its backend are up.
type HealthHandler struct {
	backend BackendPinger
	timeout time.Duration
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(backend BackendPinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{backend: backend, timeout: timeout}
}

// HealthCheck handles GET /health
// ragdesk itself is up if it can answer; an unreachable backend only
// degrades the status.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Message: "ragdesk is running",
		Backend: "ok",
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.backend.Health(ctx); err != nil {
		response.Status = "degraded"
		response.Backend = "unreachable"
	}

	writeJSON(w, http.StatusOK, response)
}
