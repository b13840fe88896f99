// Package config provides configuration management for Threadline.
// It loads settings from environment variables with the THREADLINE_ prefix
// and provides sensible defaults for all configuration options.
//
// An optional YAML file can overlay the defaults. The file is resolved in
// order: the THREADLINE_CONFIG env var, a threadline.yaml next to the
// binary, then a threadline.yaml in the working directory. Environment
// variables always win over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Threadline server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Batch   BatchConfig   `yaml:"batch"`
}

// ServerConfig contains transport configuration. Host/Port apply only to the
// WebSocket binary; the stdio binary ignores them.
type ServerConfig struct {
	Host string `yaml:"host"` // WebSocket bind host (default: 127.0.0.1)
	Port int    `yaml:"port"` // WebSocket bind port (default: 7171)

	// Name and Version are advertised in the initialize response.
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// StorageConfig contains durable-store configuration.
type StorageConfig struct {
	// Engine selects the backend: "sqlite" (default) or "postgres".
	Engine string `yaml:"engine"`

	// DataPath is the directory holding the sqlite database file.
	DataPath string `yaml:"dataPath"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgresDsn"`
}

// BatchConfig tunes batch-mode execution.
type BatchConfig struct {
	// Concurrency caps in-flight sub-operations per batch (default: 4).
	Concurrency int `yaml:"concurrency"`

	// StaggerPerSecond is the admission rate for batch items (default: 20).
	StaggerPerSecond float64 `yaml:"staggerPerSecond"`
}

// LoadConfig builds the configuration: defaults, then the optional YAML
// overlay, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	path, err := resolveConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    7171,
			Name:    "threadline",
			Version: "1.0.0",
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Batch: BatchConfig{
			Concurrency:      4,
			StaggerPerSecond: 20,
		},
	}
}

// resolveConfigFile finds the YAML overlay, if any. A path set explicitly via
// THREADLINE_CONFIG must exist; the fallback locations are optional.
func resolveConfigFile() (string, error) {
	if path := os.Getenv("THREADLINE_CONFIG"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config: THREADLINE_CONFIG points to %s: %w", path, err)
		}
		return path, nil
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "threadline.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if _, err := os.Stat("threadline.yaml"); err == nil {
		return "threadline.yaml", nil
	}
	return "", nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("THREADLINE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("THREADLINE_PORT", cfg.Server.Port)
	cfg.Server.Name = getEnv("THREADLINE_SERVER_NAME", cfg.Server.Name)
	cfg.Server.Version = getEnv("THREADLINE_SERVER_VERSION", cfg.Server.Version)

	cfg.Storage.Engine = getEnv("THREADLINE_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("THREADLINE_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("THREADLINE_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Batch.Concurrency = getEnvInt("THREADLINE_BATCH_CONCURRENCY", cfg.Batch.Concurrency)
	cfg.Batch.StaggerPerSecond = getEnvFloat("THREADLINE_BATCH_STAGGER", cfg.Batch.StaggerPerSecond)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
