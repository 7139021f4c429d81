package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/updater"
)

// VersionInfo contains agent version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	// AppVersion is the host application version used for update and
	// license checks. It differs from Version when the agent is embedded.
	AppVersion string `json:"app_version"`
	Platform   string `json:"platform"`
	GoVersion  string `json:"go_version"`
}

// VersionHandler handles version-related HTTP endpoints.
type VersionHandler struct {
	info   VersionInfo
	logger zerolog.Logger
}

// NewVersionHandler creates a new VersionHandler. An empty appVersion
// defaults to version.
func NewVersionHandler(version, commit, buildDate, appVersion string, logger zerolog.Logger) *VersionHandler {
	if appVersion == "" {
		appVersion = version
	}
	return &VersionHandler{
		info: VersionInfo{
			Version:    version,
			Commit:     commit,
			BuildDate:  buildDate,
			AppVersion: appVersion,
			Platform:   updater.CurrentPlatform(),
			GoVersion:  runtime.Version(),
		},
		logger: logger.With().Str("component", "version_handler").Logger(),
	}
}

// RegisterRoutes registers version routes on the given router group.
func (h *VersionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/version", h.Get)
}

// Get returns the agent version information.
// GET /api/v1/version
func (h *VersionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}
