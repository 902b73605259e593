package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Canvas    CanvasConfig    `mapstructure:"canvas"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Runtime flag set from the command line, not the config file.
	MigrateOnly bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	// Path of the embedded SQLite file; ":memory:" is accepted for tests.
	Path string `mapstructure:"path"`
}

type CanvasConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// API token of the grader; prefer the PALETTE_CANVAS_TOKEN env var
	// over putting it in the config file.
	Token string `mapstructure:"token"`
	// Requests per second allowed against the Canvas API.
	RateLimit      float64       `mapstructure:"rate_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout_seconds"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval_seconds"`
}

type SyncConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	MaxRetries       int           `mapstructure:"max_retries"`
	AutoSyncInterval time.Duration `mapstructure:"auto_sync_minutes"`
	AutoSaveInterval time.Duration `mapstructure:"auto_save_seconds"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("PALETTE")
	viper.AutomaticEnv()

	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("canvas.base_url", "CANVAS_BASE_URL")
	viper.BindEnv("canvas.token", "CANVAS_TOKEN")
	viper.BindEnv("server.mode", "SERVER_MODE")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.path", "data/palette.db")
	viper.SetDefault("canvas.rate_limit", 5)
	viper.SetDefault("canvas.request_timeout_seconds", 30)
	viper.SetDefault("canvas.probe_interval_seconds", 60)
	viper.SetDefault("sync.batch_size", 50)
	viper.SetDefault("sync.max_retries", 3)
	viper.SetDefault("sync.auto_sync_minutes", 5)
	viper.SetDefault("sync.auto_save_seconds", 30)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Canvas.RequestTimeout = cfg.Canvas.RequestTimeout * time.Second
	cfg.Canvas.ProbeInterval = cfg.Canvas.ProbeInterval * time.Second
	cfg.Sync.AutoSyncInterval = cfg.Sync.AutoSyncInterval * time.Minute
	cfg.Sync.AutoSaveInterval = cfg.Sync.AutoSaveInterval * time.Second

	if cfg.Canvas.BaseURL == "" {
		return nil, fmt.Errorf("canvas.base_url is required")
	}

	if cfg.Database.Path != ":memory:" {
		dir := filepath.Dir(cfg.Database.Path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			os.MkdirAll(dir, 0755)
		}
	}

	return &cfg, nil
}
