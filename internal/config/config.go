// Package config loads the engine's layered configuration: file, then
// environment, then built-in defaults, via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/psp-engine/psp/internal/domain"
)

// Manager implements configuration loading and validation using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, falling back to environment
// variables and defaults.
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/psp-engine/")

	viper.SetEnvPrefix("PSP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables.
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values.
func (m *Manager) setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.tls_enabled", false)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "psp_engine")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	// Model endpoint defaults, keyed by model id (generalizes the teacher's
	// per-provider external_api.<provider>.* blocks).
	viper.SetDefault("models.claude-safety-v1.base_url", "https://api.anthropic.com/v1/messages")
	viper.SetDefault("models.claude-safety-v1.provider", "anthropic")
	viper.SetDefault("models.claude-safety-v1.api_key_env", "ANTHROPIC_API_KEY")
	viper.SetDefault("models.claude-safety-v1.timeout", "30s")
	viper.SetDefault("models.claude-safety-v1.rate_limit", 60)
	viper.SetDefault("models.claude-safety-v1.token_limit", 100000)
	viper.SetDefault("models.claude-safety-v1.retry_count", 3)
	viper.SetDefault("models.claude-safety-v1.max_tokens", 1024)

	viper.SetDefault("models.gpt4-safety.base_url", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("models.gpt4-safety.provider", "openai")
	viper.SetDefault("models.gpt4-safety.api_key_env", "OPENAI_API_KEY")
	viper.SetDefault("models.gpt4-safety.timeout", "30s")
	viper.SetDefault("models.gpt4-safety.rate_limit", 60)
	viper.SetDefault("models.gpt4-safety.token_limit", 100000)
	viper.SetDefault("models.gpt4-safety.retry_count", 3)
	viper.SetDefault("models.gpt4-safety.max_tokens", 1024)

	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")
	viper.SetDefault("cache.lru_size", 5000)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns the database configuration.
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetModelEndpoints returns the configured foundation-model endpoints.
func (m *Manager) GetModelEndpoints() map[string]domain.ModelEndpoint {
	return m.config.Models
}

// GetServerConfig returns the HTTP server configuration.
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration from disk/environment.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate checks the loaded configuration for obviously invalid values.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	for modelID, ep := range config.Models {
		if ep.BaseURL == "" {
			return fmt.Errorf("model %q is missing a base URL", modelID)
		}
	}

	if config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted Postgres DSN.
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string.
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode.
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}

// DefaultCacheTTL is the cache TTL used when a caller doesn't load one
// from config, e.g. in tests.
const DefaultCacheTTL = 24 * time.Hour
