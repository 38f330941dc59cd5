// Package config provides configuration management for the ocean-color
// matchup service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	CMR       CMRConfig       `envPrefix:"CMR_"`
	OceanData OceanDataConfig `envPrefix:"OCEANDATA_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Matchup   MatchupConfig   `envPrefix:"MATCHUP_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// CMRConfig contains CMR API client configuration.
type CMRConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"https://cmr.earthdata.nasa.gov/search"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// OceanDataConfig contains GSFC ocean-color archive client
// configuration. Downloads need Earthdata credentials.
type OceanDataConfig struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"https://oceandata.sci.gsfc.nasa.gov"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10m"`
}

// StorageConfig contains granule archive configuration.
type StorageConfig struct {
	// Backend selects where fetched granules are archived: "filesystem"
	// or "minio".
	Backend string `env:"BACKEND" envDefault:"filesystem"`

	// Root is the archive directory for the filesystem backend.
	Root string `env:"ROOT" envDefault:"./granules"`

	// Download allows fetching granules missing from the archive.
	Download bool `env:"DOWNLOAD" envDefault:"true"`

	// MinIO backend settings.
	MinIOEndpoint  string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY"`
	MinIOBucket    string `env:"MINIO_BUCKET" envDefault:"granules"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	MinIOCacheDir  string `env:"MINIO_CACHE_DIR" envDefault:"/tmp/oceancolor-cache"`
}

// MatchupConfig contains matchup search defaults and limits.
type MatchupConfig struct {
	Workers int `env:"WORKERS" envDefault:"4"`

	// RegistryPath optionally overrides the embedded product table.
	RegistryPath string `env:"REGISTRY_PATH"`

	// MaxTrackPoints caps the number of waypoints accepted per request.
	MaxTrackPoints int `env:"MAX_TRACK_POINTS" envDefault:"1000"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: false,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.CMR.BaseURL == "" {
		return fmt.Errorf("CMR base URL is required")
	}

	if c.CMR.Timeout <= 0 {
		return fmt.Errorf("CMR timeout must be positive, got %s", c.CMR.Timeout)
	}

	if c.OceanData.BaseURL == "" {
		return fmt.Errorf("ocean data base URL is required")
	}

	if c.Storage.Download && (c.OceanData.Username == "" || c.OceanData.Password == "") {
		return fmt.Errorf("granule download requires Earthdata credentials (OCEANDATA_USERNAME, OCEANDATA_PASSWORD)")
	}

	switch c.Storage.Backend {
	case "filesystem":
		if c.Storage.Root == "" {
			return fmt.Errorf("filesystem storage requires a root directory")
		}
	case "minio":
		if c.Storage.MinIOEndpoint == "" {
			return fmt.Errorf("minio storage requires an endpoint")
		}
		if c.Storage.MinIOAccessKey == "" || c.Storage.MinIOSecretKey == "" {
			return fmt.Errorf("minio storage requires access credentials")
		}
	default:
		return fmt.Errorf("storage backend must be 'filesystem' or 'minio', got %q", c.Storage.Backend)
	}

	if c.Matchup.Workers < 1 {
		return fmt.Errorf("matchup workers must be at least 1, got %d", c.Matchup.Workers)
	}

	if c.Matchup.MaxTrackPoints < 1 {
		return fmt.Errorf("max track points must be at least 1, got %d", c.Matchup.MaxTrackPoints)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
