package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/facepass/engine/internal/api/response"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// Pinger reports whether the database is reachable. Satisfied by
// *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DetectorHealth reports whether the face detector is reachable.
type DetectorHealth interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db        Pinger
	detector  DetectorHealth
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Pinger, detector DetectorHealth) *HealthHandler {
	return &HealthHandler{db: db, detector: detector, startTime: time.Now()}
}

// Check handles GET /health. Any failing dependency makes the whole check
// report 503.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"detector": "ok",
	}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = "unavailable"
		healthy = false
	}

	if err := h.detector.Health(ctx); err != nil {
		checks["detector"] = "unavailable"
		healthy = false
	}

	status := "ok"
	code := http.StatusOK

	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	response.RespondJSON(w, code, map[string]any{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"checks":         checks,
	})
}
