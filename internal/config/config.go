package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the service configuration, loaded from YAML and the environment.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	FCM      FCMConfig      `mapstructure:"fcm"`
	Log      LogConfig      `mapstructure:"log"`
	Business BusinessConfig `mapstructure:"business"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver     string      `mapstructure:"driver"` // mysql | sqlite
	MySQL      MySQLConfig `mapstructure:"mysql"`
	SQLitePath string      `mapstructure:"sqlite_path"`
	LogLevel   string      `mapstructure:"log_level"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PointsEvents     string `mapstructure:"points_events"`
	RedemptionEvents string `mapstructure:"redemption_events"`
}

type FCMConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Endpoint  string        `mapstructure:"endpoint"`
	ServerKey string        `mapstructure:"server_key"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// breaker opens after this many consecutive failures and stays open for BreakerOpenFor
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerOpenFor  time.Duration `mapstructure:"breaker_open_for"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text | json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type BusinessConfig struct {
	DefaultTierID int64 `mapstructure:"default_tier_id"`

	TxMaxRetries    int           `mapstructure:"tx_max_retries"`
	TxRetryBackoff  time.Duration `mapstructure:"tx_retry_backoff"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	LockRetryDelay  time.Duration `mapstructure:"lock_retry_interval"`
	LockMaxAttempts int           `mapstructure:"lock_max_retries"`

	NotificationWorkers    int `mapstructure:"notification_workers"`
	NotificationQueueSize  int `mapstructure:"notification_queue_size"`
	NotificationMaxRetries int `mapstructure:"notification_max_retries"`

	LeaderboardCacheTTL     time.Duration `mapstructure:"leaderboard_cache_ttl"`
	LeaderboardDefaultLimit int           `mapstructure:"leaderboard_default_limit"`

	MaxRetryCount int `mapstructure:"outbox_max_retry"`

	OutboxInterval            time.Duration `mapstructure:"outbox_interval"`
	NotificationRetryInterval time.Duration `mapstructure:"notification_retry_interval"`
	TierReconcileInterval     time.Duration `mapstructure:"tier_reconcile_interval"`
}

// SeedConfig fills an empty catalog on startup.
type SeedConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	Tiers      []TierSeed     `mapstructure:"tiers"`
	Categories []CategorySeed `mapstructure:"categories"`
}

type TierSeed struct {
	Name        string  `mapstructure:"name"`
	PointFrom   int64   `mapstructure:"point_from"`
	PointTo     int64   `mapstructure:"point_to"`
	Multiplier  float64 `mapstructure:"multiplier"`
	Description string  `mapstructure:"description"`
}

type CategorySeed struct {
	Name        string  `mapstructure:"name"`
	PointsPerKg float64 `mapstructure:"points_per_kg"`
}

const envPrefix = "KITARCYCLE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.user", "root")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "kitarcycle")
	v.SetDefault("database.mysql.max_open_conns", 50)
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.sqlite_path", "kitarcycle.db")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.points_events", "kitarcycle.points")
	v.SetDefault("kafka.topic.redemption_events", "kitarcycle.redemptions")

	v.SetDefault("fcm.enabled", false)
	v.SetDefault("fcm.endpoint", "https://fcm.googleapis.com/fcm/send")
	v.SetDefault("fcm.server_key", "")
	v.SetDefault("fcm.timeout", 5*time.Second)
	v.SetDefault("fcm.breaker_failures", 5)
	v.SetDefault("fcm.breaker_open_for", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("business.default_tier_id", 0)
	v.SetDefault("business.tx_max_retries", 3)
	v.SetDefault("business.tx_retry_backoff", 50*time.Millisecond)
	v.SetDefault("business.lock_ttl", 30*time.Second)
	v.SetDefault("business.lock_retry_interval", 100*time.Millisecond)
	v.SetDefault("business.lock_max_retries", 30)
	v.SetDefault("business.notification_workers", 4)
	v.SetDefault("business.notification_queue_size", 1024)
	v.SetDefault("business.notification_max_retries", 5)
	v.SetDefault("business.leaderboard_cache_ttl", 30*time.Second)
	v.SetDefault("business.leaderboard_default_limit", 3)
	v.SetDefault("business.outbox_max_retry", 5)
	v.SetDefault("business.outbox_interval", 100*time.Millisecond)
	v.SetDefault("business.notification_retry_interval", 30*time.Second)
	v.SetDefault("business.tier_reconcile_interval", 10*time.Minute)

	v.SetDefault("seed.enabled", false)
}

// Load reads configPath (YAML) on top of the defaults. Every key can be
// overridden from the environment, e.g. KITARCYCLE_DATABASE_DRIVER=sqlite.
// An empty configPath loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be mysql or sqlite, got %q", c.Database.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is empty"))
	}
	if c.FCM.Enabled && c.FCM.ServerKey == "" {
		errs = append(errs, errors.New("fcm.server_key is required when fcm is enabled"))
	}
	if c.Business.DefaultTierID < 0 {
		errs = append(errs, errors.New("business.default_tier_id must not be negative"))
	}
	if c.Business.TxMaxRetries < 1 {
		errs = append(errs, errors.New("business.tx_max_retries must be at least 1"))
	}
	if c.Business.NotificationWorkers < 1 || c.Business.NotificationQueueSize < 1 {
		errs = append(errs, errors.New("business.notification_workers and notification_queue_size must be positive"))
	}
	if c.Business.LeaderboardDefaultLimit < 1 {
		errs = append(errs, errors.New("business.leaderboard_default_limit must be positive"))
	}
	return errors.Join(errs...)
}
