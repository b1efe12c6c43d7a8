// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/fernandezvara/opsledger"
)

// Database holds the DB_* keys.
type Database struct {
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	SSLMode        string
	Driver         string
	MaxConnections int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	SlowQuery      time.Duration
}

// Config is the process configuration.
type Config struct {
	Database       Database
	LogLevel       string
	LogFile        string
	HTTPAddr       string
	RollupSchedule string
	ExportDir      string
}

// Defaults for optional keys.
const (
	DefaultHTTPAddr       = ":8080"
	DefaultRollupSchedule = "15 0 * * *"
	DefaultExportDir      = "exports"
	DefaultLogLevel       = "info"
)

var required = []string{"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD"}

// Load reads .env from the working directory when present, then the YAML file
// at path when path is not empty, then the environment. Environment values win.
// A missing required key is returned as *opsledger.ConfigurationError.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_DRIVER", string(opsledger.DriverPgx))
	v.SetDefault("DB_MAX_CONNECTIONS", opsledger.DefaultMaxConns)
	v.SetDefault("DB_IDLE_TIMEOUT_MS", opsledger.DefaultIdleTimeout.Milliseconds())
	v.SetDefault("DB_CONNECT_TIMEOUT_MS", opsledger.DefaultConnectTimeout.Milliseconds())
	v.SetDefault("DB_SLOW_QUERY_MS", opsledger.DefaultSlowQueryThreshold.Milliseconds())
	v.SetDefault("LOG_LEVEL", DefaultLogLevel)
	v.SetDefault("HTTP_ADDR", DefaultHTTPAddr)
	v.SetDefault("ROLLUP_SCHEDULE", DefaultRollupSchedule)
	v.SetDefault("EXPORT_DIR", DefaultExportDir)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			return Config{}, &opsledger.ConfigurationError{Field: key, Message: "is required"}
		}
	}

	var c Config
	var err error
	if c.Database.Port, err = integer(v, "DB_PORT"); err != nil {
		return Config{}, err
	}
	if c.Database.MaxConnections, err = integer(v, "DB_MAX_CONNECTIONS"); err != nil {
		return Config{}, err
	}
	if c.Database.IdleTimeout, err = millis(v, "DB_IDLE_TIMEOUT_MS"); err != nil {
		return Config{}, err
	}
	if c.Database.ConnectTimeout, err = millis(v, "DB_CONNECT_TIMEOUT_MS"); err != nil {
		return Config{}, err
	}
	if c.Database.SlowQuery, err = millis(v, "DB_SLOW_QUERY_MS"); err != nil {
		return Config{}, err
	}

	c.Database.Host = v.GetString("DB_HOST")
	c.Database.Name = v.GetString("DB_NAME")
	c.Database.User = v.GetString("DB_USER")
	c.Database.Password = v.GetString("DB_PASSWORD")
	c.Database.SSLMode = v.GetString("DB_SSLMODE")
	c.Database.Driver = v.GetString("DB_DRIVER")
	c.LogLevel = strings.ToLower(v.GetString("LOG_LEVEL"))
	c.LogFile = v.GetString("LOG_FILE")
	c.HTTPAddr = v.GetString("HTTP_ADDR")
	c.RollupSchedule = v.GetString("ROLLUP_SCHEDULE")
	c.ExportDir = v.GetString("EXPORT_DIR")
	return c, nil
}

func integer(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &opsledger.ConfigurationError{Field: key, Message: fmt.Sprintf("must be an integer, got %q", raw)}
	}
	if n < 0 {
		return 0, &opsledger.ConfigurationError{Field: key, Message: "must not be negative"}
	}
	return n, nil
}

func millis(v *viper.Viper, key string) (time.Duration, error) {
	n, err := integer(v, key)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Ledger returns the pool configuration. A zero slow-query value disables the
// slow query log.
func (c Config) Ledger(logger *zap.Logger) opsledger.Config {
	cfg := opsledger.DefaultConfig(c.Database.Host, c.Database.Port, c.Database.Name, c.Database.User, c.Database.Password)
	cfg.SSLMode = c.Database.SSLMode
	cfg.Driver = opsledger.Driver(c.Database.Driver)
	cfg.Logger = logger
	if c.Database.MaxConnections > 0 {
		cfg.MaxConns = c.Database.MaxConnections
	}
	if c.Database.IdleTimeout > 0 {
		cfg.IdleTimeout = c.Database.IdleTimeout
	}
	if c.Database.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.Database.ConnectTimeout
	}
	cfg.SlowQueryThreshold = c.Database.SlowQuery
	if c.Database.SlowQuery == 0 {
		cfg.SlowQueryThreshold = -1
	}
	return cfg
}
