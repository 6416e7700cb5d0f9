// Package config loads the application configuration from a YAML file
// with environment variable overrides. Secrets live in the environment
// (or a local .env); the file carries structure and defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the platform.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Dispatcher  DispatcherConfig  `yaml:"dispatcher"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Attribution AttributionConfig `yaml:"attribution"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the listen host. Containers listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the connection lifetime as a duration.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// RedisConfig holds the Redis settings. Redis is optional: caching and
// distributed locking degrade gracefully without it.
type RedisConfig struct {
	URL             string `yaml:"url"`
	Enabled         bool   `yaml:"enabled"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the campaign cache TTL as a duration.
func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DeliveryConfig holds the messaging provider settings.
type DeliveryConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PerSecond      int    `yaml:"rate_per_second"`
	PerMinute      int    `yaml:"rate_per_minute"`
	PerDay         int    `yaml:"rate_per_day"`
}

// Timeout returns the provider HTTP timeout as a duration.
func (c DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DispatcherConfig holds the interaction dispatch loop settings.
type DispatcherConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	BatchSize           int `yaml:"batch_size"`
	TickHour            int `yaml:"tick_hour"`
}

// PollInterval returns the dispatch polling cadence.
func (c DispatcherConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SweepConfig holds the expiration sweep settings.
type SweepConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	BatchSize       int `yaml:"batch_size"`
}

// Interval returns the sweep cadence.
func (c SweepConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// AttributionConfig holds attribution engine tuning.
type AttributionConfig struct {
	DormancyDays int `yaml:"dormancy_days"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 30
	}
	if cfg.Redis.CacheTTLSeconds == 0 {
		cfg.Redis.CacheTTLSeconds = 30
	}
	if cfg.Delivery.TimeoutSeconds == 0 {
		cfg.Delivery.TimeoutSeconds = 15
	}
	if cfg.Delivery.Provider == "" {
		cfg.Delivery.Provider = "default"
	}
	if cfg.Dispatcher.PollIntervalSeconds == 0 {
		cfg.Dispatcher.PollIntervalSeconds = 60
	}
	if cfg.Dispatcher.BatchSize == 0 {
		cfg.Dispatcher.BatchSize = 200
	}
	if cfg.Dispatcher.TickHour == 0 {
		cfg.Dispatcher.TickHour = 8
	}
	if cfg.Sweep.IntervalMinutes == 0 {
		cfg.Sweep.IntervalMinutes = 60
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = 500
	}
	if cfg.Attribution.DormancyDays == 0 {
		cfg.Attribution.DormancyDays = 90
	}

	return &cfg, nil
}

// LoadFromEnv loads the file and then applies environment overrides. A
// local .env file is read first when present, so secrets can stay out of
// both the YAML and the shell profile.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("DELIVERY_API_KEY"); v != "" {
		cfg.Delivery.APIKey = v
	}
	if v := os.Getenv("DELIVERY_BASE_URL"); v != "" {
		cfg.Delivery.BaseURL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATTRIBUTION_DORMANCY_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Attribution.DormancyDays = days
		}
	}

	return cfg, nil
}
