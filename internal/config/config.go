// Package config loads the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Storage  StorageConfig  `yaml:"storage"`
	Engine   EngineConfig   `yaml:"engine"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bots     []BotSpec      `yaml:"bots"`
}

type ExchangeConfig struct {
	Name           string `yaml:"name"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	RESTEndpoint   string `yaml:"rest_endpoint"`
	RecvWindowMs   int    `yaml:"recv_window_ms"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type StorageConfig struct {
	Driver     string      `yaml:"driver"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type EngineConfig struct {
	CandleLimit        int    `yaml:"candle_limit"`
	DailyHour          int    `yaml:"daily_hour"`
	Timezone           string `yaml:"timezone"`
	ResumeOnStart      bool   `yaml:"resume_on_start"`
	StopTimeoutSeconds int    `yaml:"stop_timeout_seconds"`
}

type NotifyConfig struct {
	Kafka    KafkaConfig    `yaml:"kafka"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// BotSpec is a bot started automatically at launch.
type BotSpec struct {
	Symbol        string  `yaml:"symbol"`
	Strategy      string  `yaml:"strategy"`
	Amount        float64 `yaml:"amount"`
	Interval      string  `yaml:"interval"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
}

func (b BotSpec) BotConfig() domain.BotConfig {
	return domain.BotConfig{
		Symbol:        b.Symbol,
		StrategyID:    b.Strategy,
		Amount:        decimal.NewFromFloat(b.Amount),
		Interval:      b.Interval,
		TakeProfitPct: decimal.NewFromFloat(b.TakeProfitPct),
		StopLossPct:   decimal.NewFromFloat(b.StopLossPct),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
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

// applyEnv lets secrets stay out of the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Exchange.Name == "" {
		cfg.Exchange.Name = "binance"
	}
	if cfg.Exchange.RecvWindowMs == 0 {
		cfg.Exchange.RecvWindowMs = 5000
	}
	if cfg.Exchange.TimeoutSeconds == 0 {
		cfg.Exchange.TimeoutSeconds = 10
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "bot.db"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	if cfg.Engine.CandleLimit == 0 {
		cfg.Engine.CandleLimit = 100
	}
	if cfg.Engine.Timezone == "" {
		cfg.Engine.Timezone = "UTC"
	}
	if cfg.Engine.StopTimeoutSeconds == 0 {
		cfg.Engine.StopTimeoutSeconds = 30
	}
	if cfg.Notify.Kafka.Topic == "" {
		cfg.Notify.Kafka.Topic = "bot-events"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Exchange.Name != "binance" {
		return fmt.Errorf("unsupported exchange.name %q", c.Exchange.Name)
	}
	switch c.Storage.Driver {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage.driver %q (sqlite, redis, memory)", c.Storage.Driver)
	}
	if c.Engine.CandleLimit < 50 || c.Engine.CandleLimit > 1000 {
		return fmt.Errorf("engine.candle_limit must be between 50 and 1000, got %d", c.Engine.CandleLimit)
	}
	if c.Engine.DailyHour < 0 || c.Engine.DailyHour > 23 {
		return fmt.Errorf("engine.daily_hour must be between 0 and 23, got %d", c.Engine.DailyHour)
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("invalid engine.timezone %q: %w", c.Engine.Timezone, err)
	}
	if c.Notify.Kafka.Enabled && len(c.Notify.Kafka.Brokers) == 0 {
		return fmt.Errorf("notify.kafka.brokers is required when kafka is enabled")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if c.Notify.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	for i, b := range c.Bots {
		if err := b.BotConfig().Validate(); err != nil {
			return fmt.Errorf("bots[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Config) Credentials() domain.Credentials {
	return domain.Credentials{APIKey: c.Exchange.APIKey, APISecret: c.Exchange.APISecret}
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.Exchange.TimeoutSeconds) * time.Second
}

func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Engine.StopTimeoutSeconds) * time.Second
}
