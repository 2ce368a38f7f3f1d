package handler

import (
	"net/http"
	"time"

	"github.com/clinicathon/patientsim/internal/api/response"
	"github.com/clinicathon/patientsim/internal/repository/postgres"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db        *postgres.DB
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *postgres.DB) *HealthHandler {
	return &HealthHandler{
		db:        db,
		startTime: time.Now(),
	}
}

// HealthCheck returns basic service health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadyCheck verifies the service can reach its dependencies
func (h *HealthHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		response.Error(w, http.StatusServiceUnavailable, "NOT_READY", "database unavailable")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
