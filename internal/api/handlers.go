package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/ratelimit"
	"inkwell/internal/version"

	"github.com/gorilla/mux"
)

// Handlers serves the operational endpoints that sit beside the
// rate-limited application routes.
type Handlers struct {
	registry *ratelimit.Registry
	version  version.Info
	logger   *slog.Logger
}

// NewHandlers creates the handlers. A nil logger falls back to slog.Default.
func NewHandlers(registry *ratelimit.Registry, ver version.Info, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		registry: registry,
		version:  ver,
		logger:   logger,
	}
}

// HealthCheck handles health check requests
// GET /health, GET /api/v1/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()

	limiter := models.ComponentHealth{
		Status: models.StatusHealthy,
		Details: map[string]interface{}{
			"total_keys":  stats.Store.TotalKeys,
			"active_keys": stats.Store.ActiveKeys,
			"policies":    len(stats.Policies),
		},
	}
	if stats.Disabled {
		limiter.Status = models.StatusDisabled
		limiter.Message = "Rate limiting is disabled"
	}

	response := models.HealthCheckResponse{
		Status:     models.StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    h.version.Version,
		InstanceID: h.version.InstanceID,
		Components: map[string]models.ComponentHealth{
			"ratelimit": limiter,
		},
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// RateLimitStats reports window store occupancy and the active policies.
// GET /api/v1/ratelimit/stats
func (h *Handlers) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.registry.Stats())
}

// ResetRateLimit clears one caller's window for a policy so support staff
// can lift a lockout before it expires.
// DELETE /admin/ratelimit/{policy}?ip=...&path=...
func (h *Handlers) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["policy"]
	attrs := ratelimit.Attributes{
		IP:   r.URL.Query().Get("ip"),
		Path: r.URL.Query().Get("path"),
	}
	if attrs.IP == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "ip query parameter is required")
		return
	}

	cleared, err := h.registry.Reset(name, attrs)
	if errors.Is(err, ratelimit.ErrUnknownPolicy) {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeNotFound, "Unknown rate limit policy")
		return
	}
	if err != nil {
		h.logger.Error("Failed to reset rate limit", "policy", name, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to reset rate limit")
		return
	}

	h.logger.Info("Rate limit reset", "policy", name, "client_ip", attrs.IP, "path", attrs.Path, "cleared", cleared)
	h.writeJSONResponse(w, http.StatusOK, models.RateLimitResetResponse{
		Policy:    name,
		IP:        attrs.IP,
		Path:      attrs.Path,
		Cleared:   cleared,
		Timestamp: time.Now().UTC(),
	})
}

// NotFound is the fallback application handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeNotFound, "Resource not found")
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}
