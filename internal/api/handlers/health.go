package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult represents the result of a health check.
type HealthCheckResult struct {
	Status   HealthStatus `json:"status"`
	Duration string       `json:"duration,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status HealthStatus                  `json:"status"`
	Checks map[string]*HealthCheckResult `json:"checks,omitempty"`
}

// HealthCheck probes one component. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthHandler handles health-related HTTP endpoints.
type HealthHandler struct {
	checks map[string]HealthCheck
	logger zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler running the named checks.
func NewHealthHandler(checks map[string]HealthCheck, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterPublicRoutes registers health check routes on the engine root.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/health", h.Overall)
}

// Overall runs every check and reports 503 if any of them fails.
// GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := &HealthResponse{
		Status: HealthStatusHealthy,
		Checks: make(map[string]*HealthCheckResult, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		start := time.Now()
		result := &HealthCheckResult{Status: HealthStatusHealthy}
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
			result.Status = HealthStatusUnhealthy
			result.Error = err.Error()
			response.Status = HealthStatusUnhealthy
		}
		result.Duration = time.Since(start).String()
		response.Checks[name] = result
	}

	if response.Status == HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
