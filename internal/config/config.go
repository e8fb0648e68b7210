package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	Environment string `mapstructure:"ENVIRONMENT"`
	CORSOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	BackendURL     string        `mapstructure:"BACKEND_API_URL"`
	BackendTimeout time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	RankingURL     string        `mapstructure:"RANKING_URL"`
	RankingTimeout time.Duration `mapstructure:"RANKING_TIMEOUT"`

	JWTKey     string        `mapstructure:"JWT_KEY"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	DSN string `mapstructure:"DB_DSN"`

	S3Endpoint        string        `mapstructure:"S3_ENDPOINT"`
	S3Region          string        `mapstructure:"S3_REGION"`
	S3BucketName      string        `mapstructure:"S3_BUCKET_NAME"`
	S3AccessKeyID     string        `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string        `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3PresignTTL      time.Duration `mapstructure:"S3_PRESIGN_TTL"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`

	UploadMaxBytes     int64  `mapstructure:"UPLOAD_MAX_BYTES"`
	UploadAllowedTypes string `mapstructure:"UPLOAD_ALLOWED_TYPES"`
	LoginRatePerMinute int    `mapstructure:"LOGIN_RATE_PER_MINUTE"`
}

var defaults = map[string]any{
	"SERVER_PORT":           "8080",
	"ENVIRONMENT":           "development",
	"CORS_ALLOWED_ORIGINS":  "*",
	"BACKEND_API_URL":       "http://localhost:5000",
	"BACKEND_TIMEOUT":       "60s",
	"RANKING_URL":           "",
	"RANKING_TIMEOUT":       "5s",
	"JWT_KEY":               "",
	"SESSION_TTL":           "24h",
	"REDIS_ADDR":            "",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"DB_DSN":                "",
	"S3_ENDPOINT":           "",
	"S3_REGION":             "us-east-1",
	"S3_BUCKET_NAME":        "",
	"S3_ACCESS_KEY_ID":      "",
	"S3_SECRET_ACCESS_KEY":  "",
	"S3_PRESIGN_TTL":        "15m",
	"TELEGRAM_BOT_TOKEN":    "",
	"UPLOAD_MAX_BYTES":      5 * 1024 * 1024,
	"UPLOAD_ALLOWED_TYPES":  "",
	"LOGIN_RATE_PER_MINUTE": 5,
}

// Load reads .env (optional) and the process environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

func LoadFile(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_API_URL is required")
	}
	if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		return fmt.Errorf("BACKEND_API_URL is invalid: %w", err)
	}

	if c.JWTKey == "" && !c.IsDevelopment() {
		return fmt.Errorf("JWT_KEY is required")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}

	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive")
	}

	if c.S3BucketName != "" && c.S3Region == "" {
		return fmt.Errorf("S3_REGION is required when S3_BUCKET_NAME is set")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// AllowedTypes splits UPLOAD_ALLOWED_TYPES; an empty result means any type.
func (c *Config) AllowedTypes() []string {
	return splitList(c.UploadAllowedTypes)
}

func (c *Config) AllowedOrigins() []string {
	origins := splitList(c.CORSOrigins)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
