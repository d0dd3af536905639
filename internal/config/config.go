package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"rate-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// FeedConfig covers the external USD price feed.
type FeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SchedulerConfig governs the per-alert check queue.
type SchedulerConfig struct {
	Workers         int           `mapstructure:"workers"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ExclusiveChecks bool          `mapstructure:"exclusive_checks"`
}

// RecoveryConfig governs re-arming of active alerts.
type RecoveryConfig struct {
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
}

// NotifierConfig defines delivery channels and retry behaviour.
type NotifierConfig struct {
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	SMTP         SMTPConfig    `mapstructure:"smtp"`
	Webhook      WebhookConfig `mapstructure:"webhook"`
}

// SMTPConfig parameterises the outbound mail sink.
type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// WebhookConfig parameterises the JSON webhook sink.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RATEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ratewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 7)
	v.SetDefault("logging.file.max_age_days", 30)

	v.SetDefault("feed.base_url", "https://rest.coinapi.io/v1")
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "ratewatcher/1.0")

	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.poll_interval", "60s")
	v.SetDefault("scheduler.exclusive_checks", false)

	v.SetDefault("recovery.rescan_interval", "1m")

	v.SetDefault("notifier.retry_backoff", "10m")
	v.SetDefault("notifier.max_attempts", 0)
	v.SetDefault("notifier.smtp.enabled", false)
	v.SetDefault("notifier.smtp.port", 587)
	v.SetDefault("notifier.webhook.enabled", false)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be greater than zero")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be greater than zero")
	}
	if c.Notifier.RetryBackoff <= 0 {
		return fmt.Errorf("notifier.retry_backoff must be greater than zero")
	}
	if c.Notifier.MaxAttempts < 0 {
		return fmt.Errorf("notifier.max_attempts cannot be negative")
	}
	if c.Notifier.SMTP.Enabled {
		if c.Notifier.SMTP.Host == "" {
			return fmt.Errorf("notifier.smtp.host is required when smtp is enabled")
		}
		if c.Notifier.SMTP.From == "" {
			return fmt.Errorf("notifier.smtp.from is required when smtp is enabled")
		}
	}
	if c.Notifier.Webhook.Enabled && c.Notifier.Webhook.URL == "" {
		return fmt.Errorf("notifier.webhook.url is required when webhook is enabled")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
