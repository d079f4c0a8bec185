package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envAIKey         = "UPBO_AI_API_KEY"
	envTelegramToken = "UPBO_TELEGRAM_BOT_TOKEN"
	envRedisPassword = "UPBO_REDIS_PASSWORD"
)

type Config struct {
	AI        AIConfig        `yaml:"ai"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Feed      FeedConfig      `yaml:"feed"`
	Storage   StorageConfig   `yaml:"storage"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Web       WebConfig       `yaml:"web"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AIConfig struct {
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	ProModel          string `yaml:"pro_model"`
	SearchModel       string `yaml:"search_model"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	CooldownSeconds   int    `yaml:"cooldown_seconds"`
	RetryDelayMs      int    `yaml:"retry_delay_ms"`
	MaxRetries        *int   `yaml:"max_retries"`
}

type PortfolioConfig struct {
	InitialCash float64 `yaml:"initial_cash"`
}

type FeedConfig struct {
	Interval string `yaml:"interval"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"` // sqlite, redis, memory
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applyEnv lets secrets live in the environment (or a .env file) instead of YAML.
func applyEnv(cfg *Config) {
	if v := os.Getenv(envAIKey); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv(envTelegramToken); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv(envRedisPassword); v != "" {
		cfg.Storage.RedisPassword = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.ProModel == "" {
		cfg.AI.ProModel = "gpt-4o"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.AI.RequestsPerMinute == 0 {
		cfg.AI.RequestsPerMinute = 60
	}
	if cfg.AI.CooldownSeconds == 0 {
		cfg.AI.CooldownSeconds = 10
	}
	if cfg.AI.RetryDelayMs == 0 {
		cfg.AI.RetryDelayMs = 2000
	}
	if cfg.AI.MaxRetries == nil {
		retries := 1
		cfg.AI.MaxRetries = &retries
	}
	if cfg.Portfolio.InitialCash == 0 {
		cfg.Portfolio.InitialCash = 100_000_000
	}
	if cfg.Feed.Interval == "" {
		cfg.Feed.Interval = "30s"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/upbotrading.db"
	}
	if cfg.Storage.RedisAddr == "" {
		cfg.Storage.RedisAddr = "localhost:6379"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required (or set %s)", envAIKey)
	}
	if c.AI.MaxRetries != nil && *c.AI.MaxRetries < 0 {
		return fmt.Errorf("ai.max_retries must not be negative")
	}
	if c.Portfolio.InitialCash < 0 {
		return fmt.Errorf("portfolio.initial_cash must not be negative")
	}
	interval, err := time.ParseDuration(c.Feed.Interval)
	if err != nil {
		return fmt.Errorf("invalid feed.interval %q: %w", c.Feed.Interval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("feed.interval must be positive")
	}
	switch c.Storage.Driver {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

func (c *Config) FeedInterval() time.Duration {
	d, _ := time.ParseDuration(c.Feed.Interval)
	return d
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

func (c *Config) AICooldown() time.Duration {
	return time.Duration(c.AI.CooldownSeconds) * time.Second
}

func (c *Config) AIRetryDelay() time.Duration {
	return time.Duration(c.AI.RetryDelayMs) * time.Millisecond
}

func (c *Config) AIMaxRetries() int {
	if c.AI.MaxRetries == nil {
		return 1
	}
	return *c.AI.MaxRetries
}
