// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// JWTSecret signs auth cookies.
	JWTSecret string
	// FlagKey is the shared secret for flag generation/validation.
	FlagKey string

	// LabPortBase is the first host port handed out to lab containers.
	LabPortBase int
	// LabPortRange caps how many ports past LabPortBase are scanned.
	LabPortRange int
	// DockerCallTimeout bounds each call into the Docker daemon.
	DockerCallTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/letushack.db"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret-change-me"),
		FlagKey:           getEnv("FLAG_KEY", "dev-flag-key-change-me"),
		LabPortBase:       getEnvInt("LAB_PORT_BASE", 3001),
		LabPortRange:      getEnvInt("LAB_PORT_RANGE", 1000),
		DockerCallTimeout: getEnvDuration("DOCKER_CALL_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if c.LabPortBase <= 0 || c.LabPortBase > 65535 {
		return fmt.Errorf("LAB_PORT_BASE must be a valid port")
	}
	if c.LabPortRange <= 0 {
		return fmt.Errorf("LAB_PORT_RANGE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
