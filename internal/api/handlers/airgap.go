package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/airgap"
)

// AirGapHandler handles air-gap mode status endpoints.
type AirGapHandler struct {
	airGapMode bool
	lister     airgap.PartitionLister
	logger     zerolog.Logger
}

// NewAirGapHandler creates a new AirGapHandler reporting airGapMode.
func NewAirGapHandler(airGapMode bool, lister airgap.PartitionLister, logger zerolog.Logger) *AirGapHandler {
	return &AirGapHandler{
		airGapMode: airGapMode,
		lister:     lister,
		logger: logger.With().Str("component", "airgap_handler").Logger(),
	}
}

// RegisterRoutes registers air-gap routes on the given router group.
func (h *AirGapHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/system/airgap", h.GetStatus)
}

// GetStatus returns the air-gap mode and the removable media currently
// mounted. A media listing failure still returns the mode.
// GET /api/v1/system/airgap
func (h *AirGapHandler) GetStatus(c *gin.Context) {
	status, err := airgap.CurrentStatus(c.Request.Context(), h.airGapMode, h.lister)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to list removable media")
	}
	c.JSON(http.StatusOK, status)
}
