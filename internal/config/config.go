package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is where the server looks for its configuration file.
const DefaultPath = "/etc/playtime/config.yaml"

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Reporter ReporterConfig `mapstructure:"reporter"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// ServerConfig defines listener ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	MetricsPort int    `mapstructure:"metrics_port"`
	APIPort     int    `mapstructure:"api_port"`
	APIEnabled  bool   `mapstructure:"api_enabled"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // bolt, redis or sqlite
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines connection settings for a Redis server.
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines which activities are timed and how closed sessions are written.
type TrackingConfig struct {
	Denylist           []string    `mapstructure:"denylist"`
	EligibleKinds      []string    `mapstructure:"eligible_kinds"`
	MinSessionDuration string      `mapstructure:"min_session_duration"`
	QueueSize          int         `mapstructure:"queue_size"`
	WriteRetry         RetryConfig `mapstructure:"write_retry"`
}

// RetryConfig defines the exponential backoff used for durable writes.
type RetryConfig struct {
	InitialInterval string `mapstructure:"initial_interval"`
	MaxInterval     string `mapstructure:"max_interval"`
	MaxElapsedTime  string `mapstructure:"max_elapsed_time"`
}

// FeedConfig defines where presence notifications come from
type FeedConfig struct {
	Type    string      `mapstructure:"type"` // redis or stdin
	Channel string      `mapstructure:"channel"`
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// ReporterConfig defines the periodic status line for one label
type ReporterConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Label    string `mapstructure:"label"`
	Interval string `mapstructure:"interval"`
	Template string `mapstructure:"template"`
	Channel  string `mapstructure:"channel"`
}

// CacheConfig defines the usage record read cache
type CacheConfig struct {
	Size int    `mapstructure:"size"`
	TTL  string `mapstructure:"ttl"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("PLAYTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file: defaults and environment only.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration used when no file or environment
// overrides are present.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// UnknownKeys returns keys present in the file at configPath that no
// setting reads, sorted.
func UnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	known := viper.New()
	setDefaults(known)
	valid := make(map[string]bool)
	for _, key := range known.AllKeys() {
		valid[key] = true
	}

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

// isNotFound reports whether viper failed only because the file is absent.
// SetConfigFile yields an fs error rather than ConfigFileNotFoundError.
func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.api_enabled", true)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/playtime/playtime.bolt")
	setRedisDefaults(v, "storage.redis")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.denylist", []string{"Spotify"})
	v.SetDefault("tracking.eligible_kinds", []string{"playing", "streaming"})
	v.SetDefault("tracking.min_session_duration", "60s")
	v.SetDefault("tracking.queue_size", 256)
	v.SetDefault("tracking.write_retry.initial_interval", "500ms")
	v.SetDefault("tracking.write_retry.max_interval", "30s")
	v.SetDefault("tracking.write_retry.max_elapsed_time", "5m")

	// Feed defaults
	v.SetDefault("feed.type", "redis")
	v.SetDefault("feed.channel", "playtime:presence")
	v.SetDefault("feed.path", "-")
	setRedisDefaults(v, "feed.redis")

	// Reporter defaults
	v.SetDefault("reporter.enabled", false)
	v.SetDefault("reporter.label", "")
	v.SetDefault("reporter.interval", "10m")
	v.SetDefault("reporter.template", "casino game: %s")
	v.SetDefault("reporter.channel", "playtime:status")

	// Cache defaults
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", "1m")
}

func setRedisDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".host", "localhost")
	v.SetDefault(prefix+".port", 6379)
	v.SetDefault(prefix+".password", "")
	v.SetDefault(prefix+".db", 0)
	v.SetDefault(prefix+".pool_size", 10)
	v.SetDefault(prefix+".min_idle_conns", 2)
	v.SetDefault(prefix+".dial_timeout", "5s")
	v.SetDefault(prefix+".read_timeout", "3s")
	v.SetDefault(prefix+".write_timeout", "3s")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}
	if cfg.Server.APIEnabled && (cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535) {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage redis host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}

	switch cfg.Feed.Type {
	case "redis":
		if cfg.Feed.Channel == "" {
			return fmt.Errorf("feed channel is required for redis feed")
		}
	case "stdin":
	default:
		return fmt.Errorf("unknown feed type: %q", cfg.Feed.Type)
	}

	if len(cfg.Tracking.EligibleKinds) == 0 {
		return fmt.Errorf("at least one eligible activity kind is required")
	}
	if cfg.Tracking.QueueSize < 0 {
		return fmt.Errorf("invalid queue size: %d", cfg.Tracking.QueueSize)
	}

	durations := map[string]string{
		"tracking.min_session_duration":         cfg.Tracking.MinSessionDuration,
		"tracking.write_retry.initial_interval": cfg.Tracking.WriteRetry.InitialInterval,
		"tracking.write_retry.max_interval":     cfg.Tracking.WriteRetry.MaxInterval,
		"tracking.write_retry.max_elapsed_time": cfg.Tracking.WriteRetry.MaxElapsedTime,
		"reporter.interval":                     cfg.Reporter.Interval,
		"cache.ttl":                             cfg.Cache.TTL,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: must not be negative", key)
		}
	}

	// Zero would otherwise fall back to the default threshold.
	if d, _ := time.ParseDuration(cfg.Tracking.MinSessionDuration); d == 0 {
		return fmt.Errorf("tracking.min_session_duration must be positive (use a small value such as 1s to count almost every session)")
	}

	if cfg.Reporter.Enabled {
		if cfg.Reporter.Label == "" {
			return fmt.Errorf("reporter label is required when the reporter is enabled")
		}
		if !strings.Contains(cfg.Reporter.Template, "%s") {
			return fmt.Errorf("reporter template must contain %%s")
		}
		if d, _ := time.ParseDuration(cfg.Reporter.Interval); d <= 0 {
			return fmt.Errorf("reporter interval must be positive")
		}
	}

	return nil
}
