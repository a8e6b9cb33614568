package domain

import "time"

// Client represents an authenticated caller of the HTTP surface.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	RateLimit int       `json:"rate_limit"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used,omitempty"`
}

// Config is the unmarshal target for the engine's layered (file + env +
// defaults) configuration, loaded by internal/config.
type Config struct {
	Server   ServerConfig              `mapstructure:"server"`
	Database DatabaseConfig            `mapstructure:"database"`
	Models   map[string]ModelEndpoint  `mapstructure:"models"`
	Cache    CacheConfig               `mapstructure:"cache"`
	Logging  LoggingConfig             `mapstructure:"logging"`
}

// ServerConfig configures the HTTP surface (internal/platform/httpapi).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
}

// DatabaseConfig configures the audit-archive and pathway-seed store
// (internal/platform/persistence).
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ModelEndpoint configures one foundation-model endpoint the Gateway can
// call, keyed by model id under Config.Models (generalizes the teacher's
// per-provider external_api.<provider>.* blocks to models.<model_id>.*).
type ModelEndpoint struct {
	BaseURL    string        `mapstructure:"base_url"`
	Provider   string        `mapstructure:"provider"`
	APIKeyEnv  string        `mapstructure:"api_key_env"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"` // requests per minute
	TokenLimit int           `mapstructure:"token_limit"`
	RetryCount int           `mapstructure:"retry_count"`
	MaxTokens  int           `mapstructure:"max_tokens"`
}

// CacheConfig configures the Redis-backed and in-process LRU caches
// (internal/platform/cache).
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	LRUSize     int           `mapstructure:"lru_size"`
}

// LoggingConfig configures the structured logger (internal/platform/logging).
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}
