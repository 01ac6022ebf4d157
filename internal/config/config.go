// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Referral  ReferralConfig  `mapstructure:"referral"`
	Payout    PayoutConfig    `mapstructure:"payout"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the listen address for the HTTP server.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// LedgerConfig bounds every atomic unit.
// UnitTimeout is the overall deadline of one unit, LockTimeout the longest
// the unit may wait on a row lock before it is abandoned.
type LedgerConfig struct {
	UnitTimeout time.Duration `mapstructure:"unit_timeout"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// ReferralConfig holds the commission table, indexed by level-1.
// Rates are decimal strings so that "0.02" stays exactly two percent.
type ReferralConfig struct {
	Rates []string `mapstructure:"rates"`
}

// PayoutConfig holds payout engine configuration.
// BatchLimit caps how many due purchases one run scans.
type PayoutConfig struct {
	BatchLimit int `mapstructure:"batch_limit"`
}

// SchedulerConfig holds the daily trigger configuration.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Time     string `mapstructure:"time"`
	Timezone string `mapstructure:"timezone"`
}

// AuthConfig holds the shared secrets of the auth collaborator.
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	AdminSecret  string        `mapstructure:"admin_secret"`
	SystemSecret string        `mapstructure:"system_secret"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// KafkaConfig holds ledger event streaming configuration.
// Publishing is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether events should be published to Kafka.
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// TelegramConfig holds the admin console bot configuration.
type TelegramConfig struct {
	Token    string  `mapstructure:"token"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., DATABASE_HOST, AUTH_JWT_SECRET, SCHEDULER_TIMEZONE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional - env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	if len(c.Referral.Rates) == 0 {
		return fmt.Errorf("referral.rates must contain at least one level")
	}
	if c.Ledger.UnitTimeout <= 0 {
		return fmt.Errorf("ledger.unit_timeout must be positive, got %v", c.Ledger.UnitTimeout)
	}
	if c.Ledger.LockTimeout <= 0 || c.Ledger.LockTimeout > c.Ledger.UnitTimeout {
		return fmt.Errorf("ledger.lock_timeout must be positive and not exceed unit_timeout, got %v", c.Ledger.LockTimeout)
	}
	if c.Payout.BatchLimit <= 0 {
		return fmt.Errorf("payout.batch_limit must be positive, got %d", c.Payout.BatchLimit)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "payout")
	v.SetDefault("database.name", "payout")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("ledger.unit_timeout", "30s")
	v.SetDefault("ledger.lock_timeout", "10s")

	v.SetDefault("referral.rates", []string{"0.25", "0.02", "0.01"})

	v.SetDefault("payout.batch_limit", 5000)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.time", "00:00")
	v.SetDefault("scheduler.timezone", "Africa/Luanda")

	// Secrets come from the environment; the empty defaults register the keys.
	v.SetDefault("database.password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "720h")
	v.SetDefault("auth.admin_secret", "")
	v.SetDefault("auth.system_secret", "")

	v.SetDefault("telegram.token", "")

	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 50)

	v.SetDefault("kafka.topic", "ledger-events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// IsTelegramAdmin checks if a Telegram user ID is in the admin list.
func (c *Config) IsTelegramAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
