package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	StorageDisk = "disk"
	StorageS3   = "s3"
)

type Config struct {
	Port                  string          `json:"port"`
	LogLevel              string          `json:"log_level"`
	DatabaseURL           string          `json:"database_url"` // empty selects the in-memory store
	MigrationsDir         string          `json:"migrations_dir"`
	JWTSecret             string          `json:"jwt_secret"`
	SessionTTL            Duration        `json:"session_ttl"`
	SecureCookies         bool            `json:"secure_cookies"`
	Redis                 RedisConfig     `json:"redis"`
	Storage               StorageConfig   `json:"storage"`
	Generator             GeneratorConfig `json:"generator"`
	NatsURL               string          `json:"nats_url"`
	MaxUploadSize         int64           `json:"max_upload_size"`
	AllowAnonymousPrompts bool            `json:"allow_anonymous_prompts"`
	PopularRefresh        string          `json:"popular_refresh"` // cron spec
	RateLimit             RateLimit       `json:"rate_limit"`
	GenerationRateLimit   RateLimit       `json:"generation_rate_limit"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type StorageConfig struct {
	Driver    string `json:"driver"` // disk or s3
	UploadDir string `json:"upload_dir"`
	S3        struct {
		Endpoint     string `json:"endpoint"`
		Region       string `json:"region"`
		Bucket       string `json:"bucket"`
		AccessKey    string `json:"access_key"`
		SecretKey    string `json:"secret_key"`
		UsePathStyle bool   `json:"use_path_style"`
	} `json:"s3"`
}

type GeneratorConfig struct {
	Provider      string   `json:"provider"` // openai or gemini
	OpenAIAPIKey  string   `json:"-"`
	OpenAIBaseURL string   `json:"openai_base_url"`
	OpenAIModel   string   `json:"openai_model"`
	GeminiAPIKey  string   `json:"-"`
	GeminiModel   string   `json:"gemini_model"`
	ImageSize     string   `json:"image_size"`
	Timeout       Duration `json:"timeout"`
	MaxImageBytes int64    `json:"max_image_bytes"`
}

type RateLimit struct {
	Requests int `json:"requests"`
	Duration int `json:"duration"` // seconds
}

// Duration reads "30s"-style strings or plain seconds from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val) * time.Second)
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads the JSON config file at path, then .env and the process environment.
// A missing file is fine; every field has a default or an env override.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("Config file not found, using defaults and environment", "path", path)
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{
		Port:           "8080",
		LogLevel:       "info",
		MigrationsDir:  "migrations",
		SessionTTL:     Duration(24 * time.Hour),
		MaxUploadSize:  5 << 20,
		PopularRefresh: "@every 1m",
		RateLimit:      RateLimit{Requests: 100, Duration: 1},
		GenerationRateLimit: RateLimit{
			Requests: 5,
			Duration: 60,
		},
	}
	cfg.Redis = RedisConfig{Addr: "localhost:6379", PoolSize: 10}
	cfg.Storage.Driver = StorageDisk
	cfg.Storage.UploadDir = "media"
	cfg.Generator = GeneratorConfig{
		Provider:      ProviderOpenAI,
		OpenAIModel:   "dall-e-2",
		GeminiModel:   "gemini-2.5-flash-image-preview",
		ImageSize:     "512x512",
		Timeout:       Duration(60 * time.Second),
		MaxImageBytes: 20 << 20,
	}
	return cfg
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.NatsURL, "NATS_URL")
	setString(&c.Generator.Provider, "GENERATOR_PROVIDER")
	setString(&c.Generator.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Generator.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.S3.Region, "AWS_REGION")
	setString(&c.Storage.S3.Bucket, "S3_BUCKET_NAME")
	setString(&c.Storage.S3.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&c.Storage.S3.SecretKey, "AWS_SECRET_ACCESS_KEY")
	if v := os.Getenv("S3_USE_PATH_STYLE"); v != "" {
		c.Storage.S3.UsePathStyle = v == "true"
	}
}

// Validate fails fast on settings the server cannot run without.
func (c *Config) Validate() error {
	c.Generator.Provider = strings.ToLower(c.Generator.Provider)
	switch c.Generator.Provider {
	case ProviderOpenAI:
		if c.Generator.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required")
		}
	case ProviderGemini:
		if c.Generator.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Storage.Driver {
	case StorageDisk:
		if c.Storage.UploadDir == "" {
			return errors.New("storage.upload_dir is required")
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("S3_BUCKET_NAME is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Duration <= 0 {
		return errors.New("rate_limit requests and duration must be positive")
	}
	if c.GenerationRateLimit.Requests <= 0 || c.GenerationRateLimit.Duration <= 0 {
		return errors.New("generation_rate_limit requests and duration must be positive")
	}
	return nil
}

// SlogLevel maps log_level to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
