// Package config provides configuration management for ScanMaster tools.
package config

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MacJediWizard/scanmaster/internal/license"
	"github.com/MacJediWizard/scanmaster/internal/updater"
	"github.com/MacJediWizard/scanmaster/internal/updates"
)

const (
	// DefaultListenAddr is the local API address. It binds loopback only.
	DefaultListenAddr = "127.0.0.1:8765"
	// DefaultRateLimitRequests is the number of API requests a client may make per period.
	DefaultRateLimitRequests int64 = 60
	// DefaultRateLimitPeriod is the window of DefaultRateLimitRequests.
	DefaultRateLimitPeriod = "1m"
)

// DefaultConfigDir returns the default config directory (~/.scanmaster).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".scanmaster"), nil
}

// DefaultConfigPath returns the default config file path (~/.scanmaster/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Config holds the file-based configuration.
type Config struct {
	// AppVersion overrides the build version used for update and license
	// version checks. Used by host applications that embed the agent.
	AppVersion   string                `yaml:"app_version,omitempty"`
	Catalog      []license.Entitlement `yaml:"catalog,omitempty"`
	Policy       license.Policy        `yaml:"license_policy,omitempty"`
	LicenseFile  string                `yaml:"license_file,omitempty"`
	RegistryPath string                `yaml:"registry_path,omitempty"`
	Updates      UpdatesConfig         `yaml:"updates"`
	API          APIConfig             `yaml:"api"`
}

// UpdatesConfig configures offline update handling.
type UpdatesConfig struct {
	MediaRoots       []string      `yaml:"media_roots,omitempty"`
	DetectMedia      *bool         `yaml:"detect_media,omitempty"`
	Schedule         string        `yaml:"schedule,omitempty"`
	PublicKey        string        `yaml:"public_key,omitempty"`
	RequireSignature bool          `yaml:"require_signature,omitempty"`
	Platform         string        `yaml:"platform,omitempty"`
	SettleDelay      time.Duration `yaml:"settle_delay,omitempty"`
	Silent           bool          `yaml:"silent,omitempty"`
	AutoRestart      bool          `yaml:"auto_restart,omitempty"`
}

// APIConfig configures the local HTTP API.
type APIConfig struct {
	ListenAddr        string `yaml:"listen_addr,omitempty"`
	RateLimitRequests int64  `yaml:"rate_limit_requests,omitempty"`
	RateLimitPeriod   string `yaml:"rate_limit_period,omitempty"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Updates.Schedule == "" {
		c.Updates.Schedule = updates.DefaultSchedule
	}
	if c.Updates.DetectMedia == nil {
		detect := true
		c.Updates.DetectMedia = &detect
	}
	if c.Updates.SettleDelay <= 0 {
		c.Updates.SettleDelay = updater.DefaultSettleDelay
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = DefaultListenAddr
	}
	if c.API.RateLimitRequests <= 0 {
		c.API.RateLimitRequests = DefaultRateLimitRequests
	}
	if c.API.RateLimitPeriod == "" {
		c.API.RateLimitPeriod = DefaultRateLimitPeriod
	}
}

// Validate checks the catalog override and the update public key.
func (c *Config) Validate() error {
	if _, err := c.LicenseCatalog(); err != nil {
		return err
	}
	if _, err := c.UpdatePublicKey(); err != nil {
		return err
	}
	if c.Updates.RequireSignature && c.Updates.PublicKey == "" {
		return errors.New("updates.require_signature needs updates.public_key")
	}
	return nil
}

// LicenseCatalog returns the configured catalog, or the default catalog when
// none is configured.
func (c *Config) LicenseCatalog() (*license.Catalog, error) {
	if len(c.Catalog) == 0 {
		return license.DefaultCatalog(), nil
	}
	return license.NewCatalog(c.Catalog)
}

// UpdatePublicKey decodes the configured package signing key. A nil key with
// a nil error means signature checks are skipped.
func (c *Config) UpdatePublicKey() (ed25519.PublicKey, error) {
	if c.Updates.PublicKey == "" {
		return nil, nil
	}
	return updater.ParsePublicKey(c.Updates.PublicKey)
}

// ShouldDetectMedia reports whether removable media are scanned.
func (c *Config) ShouldDetectMedia() bool {
	return c.Updates.DetectMedia == nil || *c.Updates.DetectMedia
}

// Load reads the configuration from the given path.
// If the file does not exist, a default config is returned.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Save writes the configuration to the given path, creating directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Write with restricted permissions (user-only read/write)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
