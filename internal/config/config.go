package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "BARBERSHOP_CONFIG_PATH"

type Config struct {
	Server struct {
		Address            string `yaml:"address"`
		ReadTimeoutSec     int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSec    int    `yaml:"write_timeout_seconds"`
		ShutdownTimeoutSec int    `yaml:"shutdown_timeout_seconds"`
		MaxBodyBytes       int64  `yaml:"max_body_bytes"`
		RateLimitPerMin    int    `yaml:"rate_limit_per_minute"`
		RateLimitBurst     int    `yaml:"rate_limit_burst"`
		TrustProxy         bool   `yaml:"trust_proxy"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Shop struct {
		Name               string `yaml:"name"`
		Timezone           string `yaml:"timezone"`
		SlotGranularityMin int    `yaml:"slot_granularity_minutes"`
		MinAdvanceMinutes  int    `yaml:"min_advance_minutes"`
		MaxAdvanceDays     int    `yaml:"max_advance_days"`
	} `yaml:"shop"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Telegram struct {
		BotToken    string `yaml:"bot_token"`
		AdminChatID int64  `yaml:"admin_chat_id"`
		Debug       bool   `yaml:"debug"`

		// DigestTime is the shop-local HH:MM when tomorrow's schedule is posted; empty disables it.
		DigestTime string `yaml:"digest_time"`
	} `yaml:"telegram"`

	API struct {
		AdminKey string `yaml:"admin_key"`
	} `yaml:"api"`

	location *time.Location
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Path returns the config file to load: $BARBERSHOP_CONFIG_PATH or configs/config.yaml.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// Load reads .env (if present) and then the YAML file at path.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = Path()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML with ${ENV_VAR} placeholders and fills defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/barbershop.db"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Shop.Timezone == "" {
		cfg.Shop.Timezone = "UTC"
	}

	loc, err := time.LoadLocation(cfg.Shop.Timezone)
	if err != nil {
		return nil, fmt.Errorf("shop timezone %q: %w", cfg.Shop.Timezone, err)
	}
	cfg.location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Shop.SlotGranularityMin < 0 {
		return fmt.Errorf("shop.slot_granularity_minutes must not be negative")
	}
	if c.Shop.SlotGranularityMin > 0 && 24*60%c.Shop.SlotGranularityMin != 0 {
		return fmt.Errorf("shop.slot_granularity_minutes must divide a day, got %d", c.Shop.SlotGranularityMin)
	}
	if c.Telegram.BotToken != "" && c.Telegram.AdminChatID == 0 {
		return fmt.Errorf("telegram.admin_chat_id is required when bot_token is set")
	}
	if c.Telegram.DigestTime != "" {
		if _, err := time.Parse("15:04", c.Telegram.DigestTime); err != nil {
			return fmt.Errorf("telegram.digest_time must be HH:MM, got %q", c.Telegram.DigestTime)
		}
	}
	return nil
}

// Location is the shop's time zone; working hours are interpreted in it.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) SlotGranularity() int {
	if c.Shop.SlotGranularityMin <= 0 {
		return 30
	}
	return c.Shop.SlotGranularityMin
}

func (c *Config) MinAdvance() time.Duration {
	if c.Shop.MinAdvanceMinutes < 0 {
		return 0
	}
	return time.Duration(c.Shop.MinAdvanceMinutes) * time.Minute
}

func (c *Config) MaxAdvance() time.Duration {
	if c.Shop.MaxAdvanceDays <= 0 {
		return 60 * 24 * time.Hour
	}
	return time.Duration(c.Shop.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) RateLimit() (perMinute, burst int) {
	perMinute, burst = c.Server.RateLimitPerMin, c.Server.RateLimitBurst
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 10
	}
	return perMinute, burst
}

func (c *Config) MaxBodyBytes() int64 {
	if c.Server.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return c.Server.MaxBodyBytes
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSec) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSec) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
