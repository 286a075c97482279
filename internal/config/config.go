// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// NATSConfig configures the optional journal connection.
type NATSConfig struct {
	URL      string `mapstructure:"nats_url"`
	CAFile   string `mapstructure:"nats_ca_file"`
	CertFile string `mapstructure:"nats_cert_file"`
	KeyFile  string `mapstructure:"nats_key_file"`
	Token    string `mapstructure:"nats_token"`
}

// RedisConfig configures the redis session store.
type RedisConfig struct {
	Addr     string `mapstructure:"redis_addr"`
	Password string `mapstructure:"redis_password"`
	DB       int    `mapstructure:"redis_db"`
}

// StorageConfig configures the optional image archive.
type StorageConfig struct {
	Endpoint  string `mapstructure:"minio_endpoint"`
	AccessKey string `mapstructure:"minio_access_key"`
	SecretKey string `mapstructure:"minio_secret_key"`
	Bucket    string `mapstructure:"minio_bucket"`
	UseSSL    bool   `mapstructure:"minio_use_ssl"`
	Region    string `mapstructure:"minio_region"`
}

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `mapstructure:"port"`
	ServerReadTimeout  time.Duration `mapstructure:"server_read_timeout"`
	ServerWriteTimeout time.Duration `mapstructure:"server_write_timeout"`
	CORSOrigins        []string      `mapstructure:"cors_allowed_origins"`

	NATS NATSConfig `mapstructure:",squash"`

	// Sessions
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SessionStore  string        `mapstructure:"session_store"`

	Redis RedisConfig `mapstructure:",squash"`

	// LLM settings
	AnthropicAPIKey   string        `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey      string        `mapstructure:"openai_api_key"`
	DefaultLLM        string        `mapstructure:"default_llm"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
	ImageModel        string        `mapstructure:"image_model"`
	ImageSize         string        `mapstructure:"image_size"`

	// Accounts
	AdminEmail     string  `mapstructure:"admin_email"`
	AdminPassword  string  `mapstructure:"admin_password"`
	PasswordHasher string  `mapstructure:"password_hasher"`
	CostPerToken   float64 `mapstructure:"cost_per_token"`

	// Rate limiting
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	SignInRateLimit   int           `mapstructure:"sign_in_rate_limit"`

	// Background jobs
	SessionReapSchedule  string `mapstructure:"session_reap_schedule"`
	UsageMetricsSchedule string `mapstructure:"usage_metrics_schedule"`

	Storage StorageConfig `mapstructure:",squash"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Tracing
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
	TracingEnabled  bool   `mapstructure:"tracing_enabled"`
}

// Load reads configuration from defaults, an optional file named by
// CONFIG_FILE and the environment, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.SessionStore = strings.ToLower(c.SessionStore)
	switch c.SessionStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid SESSION_STORE %q: want memory or redis", c.SessionStore)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.ServerWriteTimeout > 0 && c.CompletionTimeout > 0 && c.ServerWriteTimeout <= c.CompletionTimeout {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT (%s) must exceed COMPLETION_TIMEOUT (%s)", c.ServerWriteTimeout, c.CompletionTimeout)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("server_read_timeout", "30s")
	v.SetDefault("server_write_timeout", "150s")
	v.SetDefault("cors_allowed_origins", "*")

	v.SetDefault("nats_url", "")
	v.SetDefault("nats_ca_file", "")
	v.SetDefault("nats_cert_file", "")
	v.SetDefault("nats_key_file", "")
	v.SetDefault("nats_token", "")

	v.SetDefault("jwt_secret", "development-secret-change-in-production")
	v.SetDefault("jwt_expiration", "12h")
	v.SetDefault("session_ttl", "12h")
	v.SetDefault("session_store", "memory")

	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("default_llm", "openai")
	v.SetDefault("completion_timeout", "2m")
	v.SetDefault("image_model", "gpt-image-1")
	v.SetDefault("image_size", "1024x1024")

	v.SetDefault("admin_email", "admin@company.local")
	v.SetDefault("admin_password", "admin123")
	v.SetDefault("password_hasher", "argon2id")
	v.SetDefault("cost_per_token", 0.000002)

	v.SetDefault("rate_limit_requests", 60)
	v.SetDefault("rate_limit_window", "1m")
	v.SetDefault("sign_in_rate_limit", 10)

	v.SetDefault("session_reap_schedule", "@every 5m")
	v.SetDefault("usage_metrics_schedule", "@every 1m")

	v.SetDefault("minio_endpoint", "")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_bucket", "chat-console-images")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("minio_region", "us-east-1")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("tracing_endpoint", "localhost:4318")
	v.SetDefault("tracing_enabled", false)
}
