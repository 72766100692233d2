package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration. Directory credentials are
// sourced from the environment at process start and must never be logged.
type Config struct {
	Server ServerConfig
	Graph  GraphConfig

	// AdminToken is the opaque bearer credential for admin endpoints.
	AdminToken string

	// DataDir is where the code registry and account ledger persist.
	DataDir string

	// LogFile enables rotating file logging when non-empty.
	LogFile string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// GraphConfig holds the directory tenant and application credentials.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("PROVISIOND_HOST", "0.0.0.0"),
			Port:            getEnv("PROVISIOND_PORT", "5000"),
			ReadTimeout:     getEnvDuration("PROVISIOND_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("PROVISIOND_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("PROVISIOND_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("PROVISIOND_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Graph: GraphConfig{
			TenantID:     os.Getenv("PROVISIOND_TENANT_ID"),
			ClientID:     os.Getenv("PROVISIOND_CLIENT_ID"),
			ClientSecret: os.Getenv("PROVISIOND_CLIENT_SECRET"),
		},
		AdminToken: os.Getenv("PROVISIOND_ADMIN_TOKEN"),
		DataDir:    getEnv("PROVISIOND_DATA_DIR", "./data"),
		LogFile:    os.Getenv("PROVISIOND_LOG_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid. Credentials have no
// defaults; refusing to start beats provisioning against the wrong tenant.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Graph.TenantID == "" {
		return fmt.Errorf("PROVISIOND_TENANT_ID is required")
	}
	if c.Graph.ClientID == "" {
		return fmt.Errorf("PROVISIOND_CLIENT_ID is required")
	}
	if c.Graph.ClientSecret == "" {
		return fmt.Errorf("PROVISIOND_CLIENT_SECRET is required")
	}
	if c.AdminToken == "" {
		return fmt.Errorf("PROVISIOND_ADMIN_TOKEN is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
