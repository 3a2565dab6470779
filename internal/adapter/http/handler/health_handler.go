package handler

import (
	"net/http"

	"github.com/iho/postings/internal/usecase"
)

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	store usecase.Store
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store usecase.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Liveness always reports OK while the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness reports OK once the storage backend answers.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
