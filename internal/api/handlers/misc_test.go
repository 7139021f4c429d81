package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/scanmaster/internal/airgap"
)

func TestVersionHandler_Get(t *testing.T) {
	t.Run("app version defaults to agent version", func(t *testing.T) {
		r := gin.New()
		NewVersionHandler("1.0.0", "abc1234", "2026-10-01T10:30:00Z", "", zerolog.Nop()).RegisterRoutes(r.Group("/api/v1"))

		w := doJSON(r, "GET", "/api/v1/version", nil)
		require.Equal(t, http.StatusOK, w.Code)

		info := decode[VersionInfo](t, w)
		assert.Equal(t, "1.0.0", info.Version)
		assert.Equal(t, "abc1234", info.Commit)
		assert.Equal(t, "1.0.0", info.AppVersion)
		assert.NotEmpty(t, info.Platform)
		assert.NotEmpty(t, info.GoVersion)
	})

	t.Run("app version override", func(t *testing.T) {
		r := gin.New()
		NewVersionHandler("1.0.0", "", "", "3.4.0", zerolog.Nop()).RegisterRoutes(r.Group("/api/v1"))

		info := decode[VersionInfo](t, doJSON(r, "GET", "/api/v1/version", nil))
		assert.Equal(t, "3.4.0", info.AppVersion)
	})
}

func TestHealthHandler_Overall(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("database is locked") }

	t.Run("all healthy", func(t *testing.T) {
		r := gin.New()
		NewHealthHandler(map[string]HealthCheck{"registry": healthy, "watcher": healthy}, zerolog.Nop()).RegisterPublicRoutes(r)

		w := doJSON(r, "GET", "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[HealthResponse](t, w)
		assert.Equal(t, HealthStatusHealthy, resp.Status)
		assert.Len(t, resp.Checks, 2)
	})

	t.Run("no checks", func(t *testing.T) {
		r := gin.New()
		NewHealthHandler(nil, zerolog.Nop()).RegisterPublicRoutes(r)
		assert.Equal(t, http.StatusOK, doJSON(r, "GET", "/health", nil).Code)
	})

	t.Run("one failing", func(t *testing.T) {
		r := gin.New()
		NewHealthHandler(map[string]HealthCheck{"registry": failing, "watcher": healthy}, zerolog.Nop()).RegisterPublicRoutes(r)

		w := doJSON(r, "GET", "/health", nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp := decode[HealthResponse](t, w)
		assert.Equal(t, HealthStatusUnhealthy, resp.Status)
		assert.Equal(t, "database is locked", resp.Checks["registry"].Error)
		assert.Equal(t, HealthStatusHealthy, resp.Checks["watcher"].Status)
	})
}

type stubPartitions struct {
	parts []disk.PartitionStat
	err   error
}

func (s stubPartitions) Partitions(context.Context) ([]disk.PartitionStat, error) {
	return s.parts, s.err
}

func TestAirGapHandler_GetStatus(t *testing.T) {
	t.Run("air-gap mode with media", func(t *testing.T) {
		r := gin.New()
		lister := stubPartitions{parts: []disk.PartitionStat{
			{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4"},
			{Device: "/dev/sdb1", Mountpoint: "/media/usb0", Fstype: "vfat"},
		}}
		NewAirGapHandler(true, lister, zerolog.Nop()).RegisterRoutes(r.Group("/api/v1"))

		w := doJSON(r, "GET", "/api/v1/system/airgap", nil)
		require.Equal(t, http.StatusOK, w.Code)

		status := decode[airgap.Status](t, w)
		assert.True(t, status.AirGapMode)
		assert.NotEmpty(t, status.DisabledFeatures)
		require.Len(t, status.RemovableMedia, 1)
		assert.Equal(t, "/media/usb0", status.RemovableMedia[0].Mountpoint)
	})

	t.Run("listing failure still reports mode", func(t *testing.T) {
		r := gin.New()
		NewAirGapHandler(false, stubPartitions{err: errors.New("permission denied")}, zerolog.Nop()).RegisterRoutes(r.Group("/api/v1"))

		w := doJSON(r, "GET", "/api/v1/system/airgap", nil)
		require.Equal(t, http.StatusOK, w.Code)
		status := decode[airgap.Status](t, w)
		assert.False(t, status.AirGapMode)
		assert.Empty(t, status.RemovableMedia)
	})
}
