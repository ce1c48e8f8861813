package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Payment  PaymentConfig  `yaml:"payment"`
	Device   DeviceConfig   `yaml:"device"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PaymentConfig holds the payment provider endpoint and retry policy.
type PaymentConfig struct {
	BaseURL             string        `yaml:"base_url"`
	APIToken            string        `yaml:"api_token"`
	TimeoutSeconds      int           `yaml:"timeout_seconds"`
	RetryAttempts       int           `yaml:"retry_attempts"`
	RetryBackoffMs      int           `yaml:"retry_backoff_ms"`
	PricePerMinuteCents int64         `yaml:"price_per_minute_cents"`
	Timeout             time.Duration `yaml:"-"`
	RetryBackoff        time.Duration `yaml:"-"`
}

// DeviceConfig holds the MQTT broker settings for the device command channel
// and the hard safety ceiling on activation duration.
type DeviceConfig struct {
	Broker               string        `yaml:"broker"`
	ClientID             string        `yaml:"client_id"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	TopicPrefix          string        `yaml:"topic_prefix"`
	SafetyCeilingMinutes int           `yaml:"safety_ceiling_minutes"`
	SafetyCeiling        time.Duration `yaml:"-"`
}

// SweeperConfig holds the reconciliation sweeper schedule.
type SweeperConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// RealtimeConfig holds the websocket notifier settings.
type RealtimeConfig struct {
	SendBufferSize int `yaml:"send_buffer_size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Payment.TimeoutSeconds <= 0 {
		cfg.Payment.TimeoutSeconds = 10
	}
	cfg.Payment.Timeout = time.Duration(cfg.Payment.TimeoutSeconds) * time.Second
	if cfg.Payment.RetryAttempts <= 0 {
		cfg.Payment.RetryAttempts = 3
	}
	if cfg.Payment.RetryBackoffMs <= 0 {
		cfg.Payment.RetryBackoffMs = 500
	}
	cfg.Payment.RetryBackoff = time.Duration(cfg.Payment.RetryBackoffMs) * time.Millisecond
	if cfg.Payment.PricePerMinuteCents <= 0 {
		cfg.Payment.PricePerMinuteCents = 100
	}

	if cfg.Device.Broker == "" {
		cfg.Device.Broker = "tcp://localhost:1883"
	}
	if cfg.Device.ClientID == "" {
		cfg.Device.ClientID = "rentald"
	}
	if cfg.Device.TopicPrefix == "" {
		cfg.Device.TopicPrefix = "vacuum"
	}
	if cfg.Device.SafetyCeilingMinutes <= 0 {
		cfg.Device.SafetyCeilingMinutes = 30
	}
	cfg.Device.SafetyCeiling = time.Duration(cfg.Device.SafetyCeilingMinutes) * time.Minute

	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 60
	}
	cfg.Sweeper.Interval = time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second

	if cfg.Realtime.SendBufferSize <= 0 {
		cfg.Realtime.SendBufferSize = 16
	}

	return &cfg, nil
}
