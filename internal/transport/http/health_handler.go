package http

import (
	"net/http"

	"github.com/go-chi/render"

	"docpulse/internal/services"
)

// HealthHandler serves liveness checks.
type HealthHandler struct {
	service *services.HealthService
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(service *services.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Check returns the current health status. Degraded states still
// respond 200: the process is alive, just impaired.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Check())
}
