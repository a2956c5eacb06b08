// Package config loads application settings from defaults, an optional
// config file, a .env file and the process environment, in rising priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fridgechef/internal/fridge"
)

// Provider names accepted by ai.provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Session backends accepted by session.backend.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	AI       AIConfig       `mapstructure:"ai"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Images   ImagesConfig   `mapstructure:"images"`
	Recipes  RecipesConfig  `mapstructure:"recipes"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

type AIConfig struct {
	Provider string `mapstructure:"provider"`
}

type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	TopP            float32 `mapstructure:"top_p"`
	TopK            int32   `mapstructure:"top_k"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
}

type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	VisionMaxTokens int           `mapstructure:"vision_max_tokens"`
	TextMaxTokens   int           `mapstructure:"text_max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type ImagesConfig struct {
	Fingerprint string `mapstructure:"fingerprint"`
	MaxWidth    uint   `mapstructure:"max_width"`
}

type RecipesConfig struct {
	MaxCount    int `mapstructure:"max_count"`
	Parallelism int `mapstructure:"parallelism"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration. An empty path searches the working directory
// for config.json or config.yaml; neither file is required.
func Load(path string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.max_upload_bytes", 32<<20)

	v.SetDefault("ai.provider", ProviderGemini)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-pro")
	v.SetDefault("gemini.temperature", 1)
	v.SetDefault("gemini.top_p", 0.95)
	v.SetDefault("gemini.top_k", 64)
	v.SetDefault("gemini.max_output_tokens", 8192)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.vision_max_tokens", 300)
	v.SetDefault("openai.text_max_tokens", 500)
	v.SetDefault("openai.timeout", "60s")

	v.SetDefault("images.fingerprint", fridge.PolicyDigest)
	v.SetDefault("images.max_width", 1024)

	v.SetDefault("recipes.max_count", 5)
	v.SetDefault("recipes.parallelism", 1)

	v.SetDefault("session.backend", SessionMemory)
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.redis_db", 0)

	v.SetDefault("database.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.development", false)
}

// Validate checks that the selected provider has a credential and that
// enumerated settings hold known values.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return &ConfigurationError{Key: "gemini.api_key", Reason: "GEMINI_API_KEY is not set"}
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return &ConfigurationError{Key: "openai.api_key", Reason: "OPENAI_API_KEY is not set"}
		}
	default:
		return &ConfigurationError{Key: "ai.provider", Reason: fmt.Sprintf("unknown provider %q", c.AI.Provider)}
	}

	if _, err := fridge.FingerprinterByName(c.Images.Fingerprint); err != nil {
		return &ConfigurationError{Key: "images.fingerprint", Reason: err.Error()}
	}
	if c.Images.MaxWidth == 0 {
		return &ConfigurationError{Key: "images.max_width", Reason: "must be positive"}
	}

	if c.Recipes.MaxCount < 1 {
		return &ConfigurationError{Key: "recipes.max_count", Reason: "must be at least 1"}
	}
	if c.Recipes.Parallelism < 1 {
		return &ConfigurationError{Key: "recipes.parallelism", Reason: "must be at least 1"}
	}

	switch c.Session.Backend {
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisAddr == "" {
			return &ConfigurationError{Key: "session.redis_addr", Reason: "required for the redis backend"}
		}
	default:
		return &ConfigurationError{Key: "session.backend", Reason: fmt.Sprintf("unknown backend %q", c.Session.Backend)}
	}

	if c.Server.RequestTimeout <= 0 {
		return &ConfigurationError{Key: "server.request_timeout", Reason: "must be positive"}
	}
	return nil
}
