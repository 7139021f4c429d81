package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/scanmaster/internal/license"
	"github.com/MacJediWizard/scanmaster/internal/updater"
	"github.com/MacJediWizard/scanmaster/internal/updates"
)

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	assert.Equal(t, DefaultListenAddr, cfg.API.ListenAddr)
	assert.Equal(t, DefaultRateLimitRequests, cfg.API.RateLimitRequests)
	assert.Equal(t, DefaultRateLimitPeriod, cfg.API.RateLimitPeriod)
	assert.Equal(t, updates.DefaultSchedule, cfg.Updates.Schedule)
	assert.Equal(t, updater.DefaultSettleDelay, cfg.Updates.SettleDelay)
	assert.True(t, cfg.ShouldDetectMedia())
}

func TestConfig_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.yml")
	detect := false

	original := &Config{
		AppVersion:   "2.3.0",
		Policy:       license.Policy{MinAppVersion: "2.0.0"},
		LicenseFile:  "/var/lib/scanmaster/license.json",
		RegistryPath: "/var/lib/scanmaster/licenses.db",
		Catalog: []license.Entitlement{
			{ShortCode: "AMS", Standard: "AMS-STD-2154E", Price: 1500},
		},
		Updates: UpdatesConfig{
			MediaRoots:  []string{"/srv/updates"},
			DetectMedia: &detect,
			SettleDelay: 3 * time.Second,
			Silent:      true,
		},
		API: APIConfig{ListenAddr: "127.0.0.1:9000"},
	}

	require.NoError(t, original.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2.3.0", loaded.AppVersion)
	assert.Equal(t, "2.0.0", loaded.Policy.MinAppVersion)
	assert.Equal(t, original.Catalog, loaded.Catalog)
	assert.Equal(t, []string{"/srv/updates"}, loaded.Updates.MediaRoots)
	assert.False(t, loaded.ShouldDetectMedia())
	assert.Equal(t, 3*time.Second, loaded.Updates.SettleDelay)
	assert.True(t, loaded.Updates.Silent)
	assert.Equal(t, "127.0.0.1:9000", loaded.API.ListenAddr)
	assert.Equal(t, DefaultRateLimitRequests, loaded.API.RateLimitRequests)
}

func TestLoad_YAMLDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "updates:\n  settle_delay: 2500ms\n  schedule: \"0 */5 * * * *\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.Updates.SettleDelay)
	assert.Equal(t, "0 */5 * * * *", cfg.Updates.Schedule)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("invalid: yaml: content: ["), 0600))

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty config", cfg: Config{}},
		{
			name: "valid catalog override",
			cfg:  Config{Catalog: []license.Entitlement{{ShortCode: "X1", Standard: "STD-X1"}}},
		},
		{
			name:    "invalid catalog override",
			cfg:     Config{Catalog: []license.Entitlement{{ShortCode: "x-1", Standard: "STD"}}},
			wantErr: true,
		},
		{
			name: "ambiguous catalog override",
			cfg: Config{Catalog: []license.Entitlement{
				{ShortCode: "AM", Standard: "STD-AM"},
				{ShortCode: "S", Standard: "STD-S"},
				{ShortCode: "AMS", Standard: "STD-AMS"},
			}},
			wantErr: true,
		},
		{
			name:    "invalid public key",
			cfg:     Config{Updates: UpdatesConfig{PublicKey: "nope"}},
			wantErr: true,
		},
		{
			name:    "signature required without key",
			cfg:     Config{Updates: UpdatesConfig{RequireSignature: true}},
			wantErr: true,
		},
		{
			name: "hex public key",
			cfg:  Config{Updates: UpdatesConfig{PublicKey: "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a", RequireSignature: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_LicenseCatalog(t *testing.T) {
	cfg := &Config{}
	c, err := cfg.LicenseCatalog()
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 6)

	cfg.Catalog = []license.Entitlement{{ShortCode: "UT", Standard: "UT-1", Price: 10}}
	c, err = cfg.LicenseCatalog()
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}
