// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Generator backends.
const (
	GeneratorSynthetic = "synthetic"
	GeneratorOpenAI    = "openai"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	Generator               string `mapstructure:"GENERATOR"`
	OpenAIAPIKey            string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel             string `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL           string `mapstructure:"OPENAI_BASE_URL"`
	GeneratorTimeoutSeconds int    `mapstructure:"GENERATOR_TIMEOUT_SECONDS"`
	SyntheticSeed           int64  `mapstructure:"SYNTHETIC_SEED"`

	FeedUserCount int `mapstructure:"FEED_USER_COUNT"`
	FeedPostCount int `mapstructure:"FEED_POST_COUNT"`

	SessionIdleTTLMinutes int `mapstructure:"SESSION_IDLE_TTL_MINUTES"`
	SessionLimit          int `mapstructure:"SESSION_LIMIT"`

	// Bootstrap budget per client IP, enforced through Redis.
	BootstrapRateLimit         int `mapstructure:"BOOTSTRAP_RATE_LIMIT"`
	BootstrapRateWindowSeconds int `mapstructure:"BOOTSTRAP_RATE_WINDOW_SECONDS"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		slog.Info("Loaded profile-specific configuration", slog.String("file", "config."+env+".yml"))
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.Generator = strings.ToLower(strings.TrimSpace(config.Generator))
	config.TracingExporter = strings.ToLower(strings.TrimSpace(config.TracingExporter))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("FEATURE_FLAGS", "")

	viper.SetDefault("GENERATOR", GeneratorSynthetic)
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("OPENAI_BASE_URL", "")
	viper.SetDefault("GENERATOR_TIMEOUT_SECONDS", 0)
	viper.SetDefault("SYNTHETIC_SEED", 0)

	viper.SetDefault("FEED_USER_COUNT", 5)
	viper.SetDefault("FEED_POST_COUNT", 8)

	viper.SetDefault("SESSION_IDLE_TTL_MINUTES", 60)
	viper.SetDefault("SESSION_LIMIT", 1000)

	viper.SetDefault("BOOTSTRAP_RATE_LIMIT", 10)
	viper.SetDefault("BOOTSTRAP_RATE_WINDOW_SECONDS", 60)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

// Validate ensures that required configuration values are present and consistent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.Generator {
	case GeneratorSynthetic, GeneratorOpenAI:
	default:
		return fmt.Errorf("GENERATOR must be %q or %q, got %q", GeneratorSynthetic, GeneratorOpenAI, c.Generator)
	}

	if c.FeedUserCount < 1 || c.FeedPostCount < 0 {
		return errors.New("FEED_USER_COUNT must be at least 1 and FEED_POST_COUNT must not be negative")
	}
	if c.GeneratorTimeoutSeconds < 0 {
		return errors.New("GENERATOR_TIMEOUT_SECONDS must not be negative")
	}
	if c.SessionIdleTTLMinutes < 1 {
		return errors.New("SESSION_IDLE_TTL_MINUTES must be at least 1")
	}
	if c.SessionLimit < 1 {
		return errors.New("SESSION_LIMIT must be at least 1")
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}
	if c.TracingEnabled && c.TracingExporter != "stdout" && c.TracingExporter != "otlp" {
		return fmt.Errorf("TRACING_EXPORTER must be stdout or otlp, got %q", c.TracingExporter)
	}

	if c.Generator == GeneratorOpenAI && c.OpenAIAPIKey == "" {
		if c.IsProduction() {
			return errors.New("OPENAI_API_KEY is required when GENERATOR=openai in production")
		}
		slog.Warn("GENERATOR=openai without OPENAI_API_KEY; every bootstrap will fail")
	}

	if c.IsProduction() && c.AllowedOrigins == "*" {
		slog.Warn("ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
	}

	return nil
}

// IsProduction reports whether the app runs with a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// GeneratorTimeout is the bound on one generator call; zero means none.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.GeneratorTimeoutSeconds) * time.Second
}

// SessionIdleTTL is how long an untouched session is kept.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMinutes) * time.Minute
}

// BootstrapRateWindow is the fixed window of the bootstrap rate limit.
func (c *Config) BootstrapRateWindow() time.Duration {
	return time.Duration(c.BootstrapRateWindowSeconds) * time.Second
}
