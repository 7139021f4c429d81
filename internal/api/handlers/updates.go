package handlers

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/airgap"
	"github.com/MacJediWizard/scanmaster/internal/updater"
	"github.com/MacJediWizard/scanmaster/internal/updates"
)

// UpdateWatcher exposes the cached and on-demand media scans and the roots
// they cover.
type UpdateWatcher interface {
	Cached() *updates.Snapshot
	ScanNow(ctx context.Context) *updates.Snapshot
	Roots(ctx context.Context) ([]string, error)
}

// PackageRequest names an update package directory.
type PackageRequest struct {
	Path string `json:"path" binding:"required"`
}

// ScanRequest is the body of POST /updates/scan. An empty path rescans the
// watcher's roots.
type ScanRequest struct {
	Path string `json:"path"`
}

// InstallRequest is the body of POST /updates/install.
type InstallRequest struct {
	Path        string `json:"path" binding:"required"`
	Silent      bool   `json:"silent"`
	AutoRestart bool   `json:"autoRestart"`
}

// UpdatesHandler handles offline update HTTP endpoints.
type UpdatesHandler struct {
	watcher  UpdateWatcher
	scanner  *updater.Scanner
	pipeline *updater.Pipeline
	logger   zerolog.Logger
}

// NewUpdatesHandler creates a new UpdatesHandler. watcher may be nil.
func NewUpdatesHandler(watcher UpdateWatcher, scanner *updater.Scanner, pipeline *updater.Pipeline, logger zerolog.Logger) *UpdatesHandler {
	return &UpdatesHandler{
		watcher:  watcher,
		scanner:  scanner,
		pipeline: pipeline,
		logger:   logger.With().Str("component", "updates_handler").Logger(),
	}
}

// RegisterRoutes registers update routes on the given router group.
func (h *UpdatesHandler) RegisterRoutes(r *gin.RouterGroup) {
	updatesGroup := r.Group("/updates")
	{
		updatesGroup.GET("", h.Status)
		updatesGroup.POST("/scan", h.Scan)
		updatesGroup.POST("/verify", h.Verify)
		updatesGroup.POST("/install", h.Install)
	}
}

// Status returns the cached result of the media watcher, scanning once if
// nothing is cached yet.
// GET /api/v1/updates
func (h *UpdatesHandler) Status(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "update watcher not running"})
		return
	}

	snap := h.watcher.Cached()
	if snap == nil {
		snap = h.watcher.ScanNow(c.Request.Context())
	}
	c.JSON(http.StatusOK, snap)
}

// Scan scans a directory for update packages, or rescans all media when no
// path is given.
// POST /api/v1/updates/scan
func (h *UpdatesHandler) Scan(c *gin.Context) {
	var req ScanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	path := strings.TrimSpace(req.Path)
	if path == "" {
		if h.watcher == nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path is required"})
			return
		}
		c.JSON(http.StatusOK, h.watcher.ScanNow(c.Request.Context()).Result)
		return
	}

	c.JSON(http.StatusOK, h.scanner.Scan(c.Request.Context(), path))
}

// Verify runs the checksum and signature checks of a package without
// installing it. Verification failures are answered with 422.
// POST /api/v1/updates/verify
func (h *UpdatesHandler) Verify(c *gin.Context) {
	var req PackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path is required"})
		return
	}
	pkg, ok := h.loadPackage(c, req.Path)
	if !ok {
		return
	}

	res := h.pipeline.Verify(c.Request.Context(), pkg)
	if res.Failed() {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Install verifies a package and launches its installer detached. Only
// packages under the watcher's media roots are installed. The response is
// sent once the installer has been launched; the host application is
// expected to exit so the installer can replace it.
// POST /api/v1/updates/install
func (h *UpdatesHandler) Install(c *gin.Context) {
	var req InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path is required"})
		return
	}
	if !h.onUpdateMedia(c.Request.Context(), req.Path) {
		h.logger.Warn().Str("path", req.Path).Msg("refused install outside update media")
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "package is not on update media"})
		return
	}
	pkg, ok := h.loadPackage(c, req.Path)
	if !ok {
		return
	}

	res, err := h.pipeline.Run(c.Request.Context(), pkg, updater.InstallOptions{
		Silent:      req.Silent,
		AutoRestart: req.AutoRestart,
	})
	if err != nil {
		_ = c.Error(err)
		h.logger.Error().Err(err).Str("path", pkg.Path).Msg("failed to launch installer")
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	if res.Failed() {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// onUpdateMedia reports whether path lies under a configured media root or
// a mounted removable volume. Without a watcher nothing is.
func (h *UpdatesHandler) onUpdateMedia(ctx context.Context, path string) bool {
	if h.watcher == nil {
		return false
	}
	roots, err := h.watcher.Roots(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to detect removable media")
	}
	return airgap.WithinRoots(path, roots)
}

// loadPackage loads the package manifest in path, writing the error
// response itself when it fails.
func (h *UpdatesHandler) loadPackage(c *gin.Context, path string) (*updater.Package, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path is required"})
		return nil, false
	}

	pkg, err := h.scanner.LoadPackage(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "update package not found"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return nil, false
	}
	return pkg, true
}
