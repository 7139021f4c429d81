// Package api provides the local HTTP API of the ScanMaster agent.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/airgap"
	"github.com/MacJediWizard/scanmaster/internal/api/handlers"
	"github.com/MacJediWizard/scanmaster/internal/api/middleware"
	"github.com/MacJediWizard/scanmaster/internal/metrics"
	"github.com/MacJediWizard/scanmaster/internal/updater"
)

// Config holds configuration for the API router.
type Config struct {
	// RateLimitRequests is the number of requests allowed per period and client.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
	// AppVersion is the host application version; empty means Version.
	AppVersion string
	// AirGapMode is reported by /api/v1/system/airgap.
	AirGapMode bool
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		RateLimitRequests: 60,
		RateLimitPeriod:   "1m",
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Dependencies are the services behind the API. Verifier, Watcher and
// Metrics are optional; Scanner and Pipeline are required.
type Dependencies struct {
	Verifier     handlers.LicenseVerifier
	Watcher      handlers.UpdateWatcher
	Scanner      *updater.Scanner
	Pipeline     *updater.Pipeline
	Partitions   airgap.PartitionLister
	Metrics      *metrics.PrometheusMetrics
	HealthChecks map[string]handlers.HealthCheck
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Dependencies, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestID())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.SecurityHeaders())
	if deps.Metrics != nil {
		r.Engine.Use(middleware.Metrics(deps.Metrics))
	}

	// Rate limiting
	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	healthHandler := handlers.NewHealthHandler(deps.HealthChecks, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	if deps.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.JSONBody(middleware.DefaultMaxBodyBytes))

	versionHandler := handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate, cfg.AppVersion, logger)
	versionHandler.RegisterRoutes(apiV1)

	appVersion := cfg.AppVersion
	if appVersion == "" {
		appVersion = cfg.Version
	}
	var recorder handlers.LicenseRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	licenseHandler := handlers.NewLicenseHandler(deps.Verifier, recorder, appVersion, logger)
	licenseHandler.RegisterRoutes(apiV1)

	updatesHandler := handlers.NewUpdatesHandler(deps.Watcher, deps.Scanner, deps.Pipeline, logger)
	updatesHandler.RegisterRoutes(apiV1)

	partitions := deps.Partitions
	if partitions == nil {
		partitions = airgap.SystemPartitions{}
	}
	airGapHandler := handlers.NewAirGapHandler(cfg.AirGapMode, partitions, logger)
	airGapHandler.RegisterRoutes(apiV1)

	r.logger.Debug().Int("routes", len(r.Engine.Routes())).Msg("API routes registered")
	return r, nil
}
