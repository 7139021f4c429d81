package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/license"
)

// LicenseVerifier checks license keys.
type LicenseVerifier interface {
	Verify(key string) license.Result
	CheckApplicability(parsed *license.ParsedLicense, currentAppVersion string, now time.Time) license.Applicability
}

// LicenseRecorder records verification outcomes.
type LicenseRecorder interface {
	RecordLicenseVerification(valid bool, reason string)
}

// VerifyLicenseRequest is the body of POST /license/verify.
type VerifyLicenseRequest struct {
	LicenseKey string `json:"licenseKey" binding:"required"`
	// AppVersion overrides the agent's application version for the
	// version policy check.
	AppVersion string `json:"appVersion,omitempty"`
}

// VerifyLicenseResponse is the body returned by POST /license/verify.
type VerifyLicenseResponse struct {
	Valid         bool                   `json:"valid"`
	Reason        license.Reason         `json:"reason,omitempty"`
	Message       string                 `json:"message,omitempty"`
	License       *license.ParsedLicense `json:"license,omitempty"`
	Applicability *license.Applicability `json:"applicability,omitempty"`
}

// LicenseHandler handles license HTTP endpoints.
type LicenseHandler struct {
	verifier   LicenseVerifier
	recorder   LicenseRecorder
	appVersion string
	now        func() time.Time
	logger     zerolog.Logger
}

// NewLicenseHandler creates a new LicenseHandler. verifier is nil when no
// license secret is configured; recorder may be nil.
func NewLicenseHandler(verifier LicenseVerifier, recorder LicenseRecorder, appVersion string, logger zerolog.Logger) *LicenseHandler {
	return &LicenseHandler{
		verifier:   verifier,
		recorder:   recorder,
		appVersion: appVersion,
		now:        time.Now,
		logger:     logger.With().Str("component", "license_handler").Logger(),
	}
}

// RegisterRoutes registers license routes on the given router group.
func (h *LicenseHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/license/verify", h.Verify)
}

// Verify checks a license key. Invalid keys are answered with 200 and
// valid=false; only a malformed request body is a client error.
// POST /api/v1/license/verify
func (h *LicenseHandler) Verify(c *gin.Context) {
	if h.verifier == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "license verification not configured"})
		return
	}

	var req VerifyLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "licenseKey is required"})
		return
	}

	result := h.verifier.Verify(req.LicenseKey)
	if h.recorder != nil {
		h.recorder.RecordLicenseVerification(result.Valid, string(result.Reason))
	}

	resp := VerifyLicenseResponse{
		Valid:   result.Valid,
		Reason:  result.Reason,
		Message: result.Message,
		License: result.License,
	}
	if result.Valid {
		appVersion := strings.TrimSpace(req.AppVersion)
		if appVersion == "" {
			appVersion = h.appVersion
		}
		applicability := h.verifier.CheckApplicability(result.License, appVersion, h.now())
		resp.Applicability = &applicability
	}

	c.JSON(http.StatusOK, resp)
}
