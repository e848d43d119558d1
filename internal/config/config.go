package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"adwatcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Currency  CurrencyConfig  `mapstructure:"currency"`
	History   HistoryConfig   `mapstructure:"history"`
	Sources   []SourceConfig  `mapstructure:"sources"`
	Publisher PublisherConfig `mapstructure:"publisher"`
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

// SchedulerConfig governs the auto-fetch cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// FetchConfig tunes per-candidate retrieval.
type FetchConfig struct {
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	PoliteDelay    time.Duration   `mapstructure:"polite_delay"`
	RetryBackoff   []time.Duration `mapstructure:"retry_backoff"`
	UserAgent      string          `mapstructure:"user_agent"`
	AcceptLanguage string          `mapstructure:"accept_language"`
}

// CurrencyConfig selects the reference currency and the conversion table.
type CurrencyConfig struct {
	Reference string             `mapstructure:"reference"`
	Rates     map[string]float64 `mapstructure:"rates"`
}

// HistoryConfig bounds history retrieval and trend enrichment.
type HistoryConfig struct {
	Limit      int `mapstructure:"limit"`
	TrendWidth int `mapstructure:"trend_width"`
}

// SourceConfig describes one marketplace endpoint served by the generic
// JSON adapter.
type SourceConfig struct {
	Tag     string `mapstructure:"tag"`
	BaseURL string `mapstructure:"base_url"`
	Query   string `mapstructure:"query"`
}

// PublisherConfig routes enriched record events to RabbitMQ when enabled.
type PublisherConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
	Queue      string `mapstructure:"queue"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults. A local
// .env file is folded into the environment first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ADWATCHER")
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
	v.SetDefault("app.name", "adwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x61647761))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("fetch.request_timeout", "20s")
	v.SetDefault("fetch.polite_delay", "1200ms")
	v.SetDefault("fetch.retry_backoff", []string{"0s", "1s", "2500ms"})
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("fetch.accept_language", "nl-NL,nl;q=0.9,en;q=0.8")

	v.SetDefault("currency.reference", "EUR")
	v.SetDefault("currency.rates", map[string]float64{
		"EUR": 1.0,
		"GBP": 1.16,
		"USD": 0.92,
		"AUD": 0.60,
		"CAD": 0.68,
	})

	v.SetDefault("history.limit", 32)
	v.SetDefault("history.trend_width", 16)

	v.SetDefault("publisher.enabled", false)
	v.SetDefault("publisher.exchange", "adwatcher")
	v.SetDefault("publisher.routing_key", "listings")
	v.SetDefault("publisher.queue", "adwatcher.listings")

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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Fetch.RequestTimeout <= 0 {
		return fmt.Errorf("fetch.request_timeout must be greater than zero")
	}
	if c.Fetch.PoliteDelay < 0 {
		return fmt.Errorf("fetch.polite_delay cannot be negative")
	}
	if len(c.Fetch.RetryBackoff) == 0 {
		return fmt.Errorf("fetch.retry_backoff needs at least one attempt")
	}
	if c.Currency.Reference == "" {
		return fmt.Errorf("currency.reference is required")
	}
	if c.History.Limit <= 0 {
		return fmt.Errorf("history.limit must be greater than zero")
	}
	if c.History.TrendWidth <= 0 {
		return fmt.Errorf("history.trend_width must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for _, src := range c.Sources {
		if src.Tag == "" {
			return fmt.Errorf("sources[].tag is required")
		}
		if src.BaseURL == "" {
			return fmt.Errorf("sources[%s].base_url is required", src.Tag)
		}
	}
	if c.Publisher.Enabled && c.Publisher.URL == "" {
		return fmt.Errorf("publisher.url is required when publisher.enabled")
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
