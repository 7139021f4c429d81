package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// EnvConfig holds settings read from environment variables. Secrets only
// ever come from the environment, never from the config file.
type EnvConfig struct {
	Environment Environment
	LogLevel    string
	// LicenseSecret is the HMAC key for license keys. Empty disables issuing
	// and verifying.
	LicenseSecret   string
	AirGapMode      bool
	ConfigPath      string
	ListenAddr      string
	UpdatePublicKey string
	// SettleDelay overrides updates.settle_delay when positive.
	SettleDelay time.Duration
}

// LoadEnv reads configuration from environment variables.
func LoadEnv() EnvConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	settle := getEnvInt("INSTALL_SETTLE_MS", 0)
	if settle < 0 {
		settle = 0
	}

	return EnvConfig{
		Environment:     env,
		LogLevel:        strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LicenseSecret:   os.Getenv("LICENSE_SECRET"),
		AirGapMode:      getEnvBool("AIR_GAP_MODE", false),
		ConfigPath:      strings.TrimSpace(os.Getenv("SCANMASTER_CONFIG")),
		ListenAddr:      strings.TrimSpace(os.Getenv("LISTEN_ADDR")),
		UpdatePublicKey: strings.TrimSpace(os.Getenv("UPDATE_PUBLIC_KEY")),
		SettleDelay:     time.Duration(settle) * time.Millisecond,
	}
}

// IsProduction reports whether the environment is production.
func (e EnvConfig) IsProduction() bool {
	return e.Environment == EnvProduction
}

// ConfigFile returns SCANMASTER_CONFIG or the default config path.
func (e EnvConfig) ConfigFile() (string, error) {
	if e.ConfigPath != "" {
		return e.ConfigPath, nil
	}
	return DefaultConfigPath()
}

// ApplyEnv overlays environment settings on the file configuration.
// Environment values win.
func (c *Config) ApplyEnv(env EnvConfig) {
	if env.ListenAddr != "" {
		c.API.ListenAddr = env.ListenAddr
	}
	if env.UpdatePublicKey != "" {
		c.Updates.PublicKey = env.UpdatePublicKey
	}
	if env.SettleDelay > 0 {
		c.Updates.SettleDelay = env.SettleDelay
	}
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
