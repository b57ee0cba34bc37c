// Package config loads service configuration from defaults, an optional
// config file and RENTLEDGER_* environment variables, in increasing order of
// precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RENTLEDGER_DATABASE_DSN.
const EnvPrefix = "RENTLEDGER"

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Policy   PolicyConfig
	Receipts ReceiptsConfig
	EventBus EventBusConfig
	Metrics  MetricsConfig
	Activity ActivityConfig
}

type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

type LogConfig struct {
	Level  string
	Format string
}

type PolicyConfig struct {
	File string
}

type ReceiptsConfig struct {
	Dir string
}

type EventBusConfig struct {
	Buffer int
}

type MetricsConfig struct {
	Enabled bool
}

// ActivityConfig selects where the per-entity activity stream is kept:
// "sql" writes activity_entries in the ledger database, "memory" keeps at
// most MemoryLimit entries per entity in process.
type ActivityConfig struct {
	Store       string
	MemoryLimit int
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("policy.file", "")
	v.SetDefault("receipts.dir", "")
	v.SetDefault("eventbus.buffer", 256)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("activity.store", "sql")
	v.SetDefault("activity.memory_limit", 1000)
}

// Load reads configuration into v. file may be empty.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Database: DatabaseConfig{
			Driver:       v.GetString("database.driver"),
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Policy:   PolicyConfig{File: v.GetString("policy.file")},
		Receipts: ReceiptsConfig{Dir: v.GetString("receipts.dir")},
		EventBus: EventBusConfig{Buffer: v.GetInt("eventbus.buffer")},
		Metrics:  MetricsConfig{Enabled: v.GetBool("metrics.enabled")},
		Activity: ActivityConfig{
			Store:       v.GetString("activity.store"),
			MemoryLimit: v.GetInt("activity.memory_limit"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	switch c.Activity.Store {
	case "sql", "memory":
	default:
		return fmt.Errorf("activity.store must be sql or memory, got %q", c.Activity.Store)
	}
	if c.Activity.MemoryLimit < 0 {
		return fmt.Errorf("activity.memory_limit must not be negative, got %d", c.Activity.MemoryLimit)
	}
	return nil
}
