package config

import (
	"fmt"
	"time"
)

// Config holds the runtime configuration of the persistence service.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Log    LogConfig    `mapstructure:"log" validate:"required"`
	HTTP   HTTPConfig   `mapstructure:"http" validate:"required"`
	Local  LocalConfig  `mapstructure:"local" validate:"required"`
	Remote RemoteConfig `mapstructure:"remote"`
	Store  StoreConfig  `mapstructure:"store"`
	Sentry SentryConfig `mapstructure:"sentry"`
}

// LogConfig controls the slog output chain.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// File enables a size-rotated log file next to stdout when non-empty.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// HTTPConfig configures the debug endpoint server.
type HTTPConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LocalConfig locates the embedded fallback database.
type LocalConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RemoteConfig describes the PostgreSQL connection. ForceOffline makes the
// service run on the local store alone without ever dialing out.
type RemoteConfig struct {
	ForceOffline bool `mapstructure:"force_offline"`

	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	// MigrationsDir holds plain .up.sql files applied to the remote schema
	// when the service starts in remote mode. Empty disables migration.
	MigrationsDir string `mapstructure:"migrations_dir"`

	MaxOpenConns int `mapstructure:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

// StoreConfig carries the mode machine and cache tunables. Zero values fall
// back to the manager defaults.
type StoreConfig struct {
	InitialHealthTimeout time.Duration `mapstructure:"initial_health_timeout"`
	HealthTimeout        time.Duration `mapstructure:"health_timeout"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`

	HealthInterval   time.Duration `mapstructure:"health_interval"`
	SyncInterval     time.Duration `mapstructure:"sync_interval"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`

	SyncBatchSize   int `mapstructure:"sync_batch_size"`
	ReapEveryCycles int `mapstructure:"reap_every_cycles"`

	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig sizes the per-family read caches of the remote accessor.
type CacheConfig struct {
	GuildTTL     time.Duration `mapstructure:"guild_ttl"`
	GuildMaxSize int           `mapstructure:"guild_max_size"`

	UserTTL     time.Duration `mapstructure:"user_ttl"`
	UserMaxSize int           `mapstructure:"user_max_size"`

	EconomyTTL     time.Duration `mapstructure:"economy_ttl"`
	EconomyMaxSize int           `mapstructure:"economy_max_size"`

	LevelTTL     time.Duration `mapstructure:"level_ttl"`
	LevelMaxSize int           `mapstructure:"level_max_size"`
}

// SentryConfig enables error forwarding when DSN is set.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// RemoteDSN returns a PostgreSQL connection string for lib/pq.
func (c *RemoteConfig) RemoteDSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode,
	)
}
