package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/contentsync/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Queue     QueueConfig     `yaml:"queue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Remote    RemoteConfig    `yaml:"remote"`
	Redis     RedisConfig     `yaml:"redis"`
}

type ServerConfig struct {
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode" validate:"oneof=debug release test"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type" validate:"eq=postgres"`
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type QueueConfig struct {
	// ItemTimeout bounds a single "process one item" call
	ItemTimeout   string `yaml:"item_timeout"`
	LeaseDuration string `yaml:"lease_duration"`
	StuckLimit    int    `yaml:"stuck_limit" validate:"min=1"`
	// Retention is how long successful items are kept
	Retention     string `yaml:"retention"`
	StatsInterval string `yaml:"stats_interval"`
}

type SchedulerConfig struct {
	Interval string `yaml:"interval"`
	// Cron takes precedence over Interval when set
	Cron     string `yaml:"cron"`
	Enabled  bool   `yaml:"enabled"`
}

type RemoteConfig struct {
	ImportPath  string             `yaml:"import_path" validate:"startswith=/"`
	Timeout     string             `yaml:"timeout"`
	MaxRetries  *int               `yaml:"max_retries" validate:"omitempty,min=0,max=10"`
	RateLimit   float64            `yaml:"rate_limit" validate:"min=0"`
	Connections []RemoteConnection `yaml:"connections" validate:"dive"`
}

// RemoteConnection holds the credentials for one remote network
type RemoteConnection struct {
	URL   string `yaml:"url" validate:"required,url"`
	Token string `yaml:"token"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Queue.ItemTimeout == "" {
		cfg.Queue.ItemTimeout = "60s"
	}
	if cfg.Queue.LeaseDuration == "" {
		cfg.Queue.LeaseDuration = "5m"
	}
	if cfg.Queue.StuckLimit == 0 {
		cfg.Queue.StuckLimit = 500
	}
	if cfg.Queue.Retention == "" {
		cfg.Queue.Retention = "2160h"
	}
	if cfg.Queue.StatsInterval == "" {
		cfg.Queue.StatsInterval = "1m"
	}
	if cfg.Scheduler.Interval == "" {
		cfg.Scheduler.Interval = "5m"
	}
	if cfg.Remote.ImportPath == "" {
		cfg.Remote.ImportPath = "/wp-json/contentsync/v1/import"
	}
	if cfg.Remote.Timeout == "" {
		cfg.Remote.Timeout = "30s"
	}
	// 0 is a valid setting that disables retries
	if cfg.Remote.MaxRetries == nil {
		retries := 3
		cfg.Remote.MaxRetries = &retries
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "contentsync:queue"
	}
}

// Validate checks struct tags and every duration string
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	durations := map[string]string{
		"queue.item_timeout":   cfg.Queue.ItemTimeout,
		"queue.lease_duration": cfg.Queue.LeaseDuration,
		"queue.retention":      cfg.Queue.Retention,
		"queue.stats_interval": cfg.Queue.StatsInterval,
		"scheduler.interval":   cfg.Scheduler.Interval,
		"remote.timeout":       cfg.Remote.Timeout,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid config: %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive", key)
		}
	}

	return nil
}

// Duration parses a value already checked by Validate
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// Token returns the bearer token configured for the network at url
func (c RemoteConfig) Token(url string) string {
	for _, conn := range c.Connections {
		if conn.URL == url {
			return conn.Token
		}
	}
	return ""
}
