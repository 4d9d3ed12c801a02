package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Batch    BatchConfig
	DB       DBConfig
	S3       S3Config
	Email    EmailConfig
	Log      LogConfig
	CORS     CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// ProviderConfig holds settings for the batch inference provider.
type ProviderConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	Endpoint         string `mapstructure:"endpoint"`
	CompletionWindow string `mapstructure:"completion_window"`
	TimeoutSecs      int    `mapstructure:"timeout_secs"`
}

// BatchConfig holds defaults applied when a caller omits generation parameters.
type BatchConfig struct {
	DefaultModel string  `mapstructure:"default_model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
	TopP         float64 `mapstructure:"top_p"`
	MaxUploadMB  int64   `mapstructure:"max_upload_mb"`
}

// DBConfig holds PostgreSQL connection settings for the job ledger.
type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds settings for the result export bucket.
type S3Config struct {
	Enabled       bool   `mapstructure:"enabled"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Prefix        string `mapstructure:"prefix"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// EmailConfig holds completion notification settings.
type EmailConfig struct {
	Provider    string `mapstructure:"provider"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from environment variables with the BATCHFORGE_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BATCHFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.environment", "development")

	// Provider defaults
	v.SetDefault("provider.base_url", "https://open.bigmodel.cn/api/paas/v4")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.endpoint", "/v4/chat/completions")
	v.SetDefault("provider.completion_window", "24h")
	v.SetDefault("provider.timeout_secs", 120)

	// Batch defaults
	v.SetDefault("batch.default_model", "GLM-4-Air-250414")
	v.SetDefault("batch.max_tokens", 2048)
	v.SetDefault("batch.temperature", 0.7)
	v.SetDefault("batch.top_p", 0.9)
	v.SetDefault("batch.max_upload_mb", 20)

	// DB defaults
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "batchforge")
	v.SetDefault("db.password", "batchforge_secret")
	v.SetDefault("db.name", "batchforge_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)

	// S3 defaults
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "batchforge-results")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.prefix", "results")
	v.SetDefault("s3.presign_expiry", 3600)

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from_address", "noreply@batchforge.local")
	v.SetDefault("email.from_name", "batchforge")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                "BATCHFORGE_SERVER_PORT",
		"server.read_timeout":        "BATCHFORGE_SERVER_READ_TIMEOUT",
		"server.write_timeout":       "BATCHFORGE_SERVER_WRITE_TIMEOUT",
		"server.environment":         "BATCHFORGE_SERVER_ENVIRONMENT",
		"provider.base_url":          "BATCHFORGE_PROVIDER_BASE_URL",
		"provider.api_key":           "BATCHFORGE_PROVIDER_API_KEY",
		"provider.endpoint":          "BATCHFORGE_PROVIDER_ENDPOINT",
		"provider.completion_window": "BATCHFORGE_PROVIDER_COMPLETION_WINDOW",
		"provider.timeout_secs":      "BATCHFORGE_PROVIDER_TIMEOUT_SECS",
		"batch.default_model":        "BATCHFORGE_BATCH_DEFAULT_MODEL",
		"batch.max_tokens":           "BATCHFORGE_BATCH_MAX_TOKENS",
		"batch.temperature":          "BATCHFORGE_BATCH_TEMPERATURE",
		"batch.top_p":                "BATCHFORGE_BATCH_TOP_P",
		"batch.max_upload_mb":        "BATCHFORGE_BATCH_MAX_UPLOAD_MB",
		"db.enabled":                 "BATCHFORGE_DB_ENABLED",
		"db.host":                    "BATCHFORGE_DB_HOST",
		"db.port":                    "BATCHFORGE_DB_PORT",
		"db.user":                    "BATCHFORGE_DB_USER",
		"db.password":                "BATCHFORGE_DB_PASSWORD",
		"db.name":                    "BATCHFORGE_DB_NAME",
		"db.sslmode":                 "BATCHFORGE_DB_SSLMODE",
		"db.max_open":                "BATCHFORGE_DB_MAX_OPEN",
		"db.max_idle":                "BATCHFORGE_DB_MAX_IDLE",
		"s3.enabled":                 "BATCHFORGE_S3_ENABLED",
		"s3.region":                  "BATCHFORGE_S3_REGION",
		"s3.bucket":                  "BATCHFORGE_S3_BUCKET",
		"s3.endpoint":                "BATCHFORGE_S3_ENDPOINT",
		"s3.access_key":              "BATCHFORGE_S3_ACCESS_KEY",
		"s3.secret_key":              "BATCHFORGE_S3_SECRET_KEY",
		"s3.prefix":                  "BATCHFORGE_S3_PREFIX",
		"s3.presign_expiry":          "BATCHFORGE_S3_PRESIGN_EXPIRY",
		"email.provider":             "BATCHFORGE_EMAIL_PROVIDER",
		"email.region":               "BATCHFORGE_EMAIL_REGION",
		"email.from_address":         "BATCHFORGE_EMAIL_FROM_ADDRESS",
		"email.from_name":            "BATCHFORGE_EMAIL_FROM_NAME",
		"log.level":                  "BATCHFORGE_LOG_LEVEL",
		"log.format":                 "BATCHFORGE_LOG_FORMAT",
		"cors.allowed_origins":       "BATCHFORGE_CORS_ALLOWED_ORIGINS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Hosting platforms set PORT. Use it if BATCHFORGE_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("BATCHFORGE_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.Provider = ProviderConfig{
		BaseURL:          v.GetString("provider.base_url"),
		APIKey:           v.GetString("provider.api_key"),
		Endpoint:         v.GetString("provider.endpoint"),
		CompletionWindow: v.GetString("provider.completion_window"),
		TimeoutSecs:      v.GetInt("provider.timeout_secs"),
	}
	cfg.Batch = BatchConfig{
		DefaultModel: v.GetString("batch.default_model"),
		MaxTokens:    v.GetInt("batch.max_tokens"),
		Temperature:  v.GetFloat64("batch.temperature"),
		TopP:         v.GetFloat64("batch.top_p"),
		MaxUploadMB:  v.GetInt64("batch.max_upload_mb"),
	}
	cfg.DB = DBConfig{
		Enabled:  v.GetBool("db.enabled"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Enabled:       v.GetBool("s3.enabled"),
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		Prefix:        v.GetString("s3.prefix"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}

	return cfg, nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
