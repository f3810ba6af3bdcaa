// Package config provides YAML configuration with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Processing ProcessingConfig `yaml:"processing"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int           `yaml:"port" envconfig:"DATAMART_PORT"`
	BindAddress  string        `yaml:"bindAddress" envconfig:"DATAMART_BIND_ADDRESS"`
	AllowOrigins []string      `yaml:"allowOrigins" envconfig:"DATAMART_ALLOW_ORIGINS"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"DATAMART_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"DATAMART_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idleTimeout" envconfig:"DATAMART_IDLE_TIMEOUT"`
	BodyLimit    string        `yaml:"bodyLimit" envconfig:"DATAMART_BODY_LIMIT"`
	XSRFSecure   bool          `yaml:"xsrfSecure" envconfig:"DATAMART_XSRF_SECURE"`
}

// StorageConfig contains dataset storage settings
type StorageConfig struct {
	DataDirectory     string `yaml:"dataDirectory" envconfig:"DATAMART_DATA_DIR"`
	UploadsDirectory  string `yaml:"uploadsDirectory" envconfig:"DATAMART_UPLOADS_DIR"`
	TempDirectory     string `yaml:"tempDirectory" envconfig:"DATAMART_TEMP_DIR"`
	EnablePersistence bool   `yaml:"enablePersistence" envconfig:"DATAMART_PERSISTENCE"`
}

// ProcessingConfig contains upload job settings
type ProcessingConfig struct {
	JobMaxAge       time.Duration `yaml:"jobMaxAge" envconfig:"DATAMART_JOB_MAX_AGE"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" envconfig:"DATAMART_CLEANUP_INTERVAL"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout" envconfig:"DATAMART_FETCH_TIMEOUT"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level          string `yaml:"level" envconfig:"DATAMART_LOG_LEVEL"`
	RequestLogging bool   `yaml:"requestLogging" envconfig:"DATAMART_REQUEST_LOGGING"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8002,
			BindAddress:  "0.0.0.0",
			AllowOrigins: []string{"*"},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  2 * time.Minute,
			BodyLimit:    "60M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			TempDirectory:     "./data/temp",
			EnablePersistence: true,
		},
		Processing: ProcessingConfig{
			JobMaxAge:       time.Hour,
			CleanupInterval: 5 * time.Minute,
			FetchTimeout:    5 * time.Minute,
		},
		Log: LogConfig{
			Level:          "info",
			RequestLogging: true,
		},
	}
}

// LoadConfig loads the YAML file at configPath over the defaults, then applies
// environment overrides. A missing file is created with the defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Datamart server configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides lets DATAMART_* variables override config values.
// Unset variables leave the file values untouched.
func (c *AppConfig) applyEnvironmentOverrides() error {
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// Validate rejects unusable values.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Processing.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", c.Processing.CleanupInterval)
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
