package opsledger

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Driver selects the database/sql driver behind the pool.
type Driver string

const (
	DriverPgx      Driver = "pgx"      // jackc/pgx stdlib (default)
	DriverPgdriver Driver = "pgdriver" // uptrace/bun pgdriver
)

// Pool defaults.
const (
	DefaultMaxConns           = 20
	DefaultIdleTimeout        = 30 * time.Second
	DefaultConnectTimeout     = 2 * time.Second
	DefaultSlowQueryThreshold = 200 * time.Millisecond
)

// Config holds database configuration
type Config struct {
	// Connection (Host, Port, Database, User and Password are required)
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string // default: disable
	ApplicationName string // default: opsledger
	Driver          Driver // default: DriverPgx

	// Pool settings
	MaxConns       int           // Max open connections (default: 20)
	IdleTimeout    time.Duration // Idle connection lifetime (default: 30s)
	ConnectTimeout time.Duration // Connect timeout (default: 2s)

	// Observability (all optional)
	Logger             *zap.Logger           // Structured logger (default: nop)
	LogQueries         bool                  // Log every statement at debug level
	SlowQueryThreshold time.Duration         // Warn on statements slower than this (default: 200ms, negative disables)
	MetricsRegistry    prometheus.Registerer // Prometheus registry for metrics
	Tracer             trace.Tracer          // OpenTelemetry tracer
}

// DefaultConfig returns a configuration with pool defaults for the given server.
func DefaultConfig(host string, port int, database, user, password string) Config {
	return Config{
		Host:               host,
		Port:               port,
		Database:           database,
		User:               user,
		Password:           password,
		SSLMode:            "disable",
		ApplicationName:    "opsledger",
		Driver:             DriverPgx,
		MaxConns:           DefaultMaxConns,
		IdleTimeout:        DefaultIdleTimeout,
		ConnectTimeout:     DefaultConnectTimeout,
		SlowQueryThreshold: DefaultSlowQueryThreshold,
	}
}

// applyDefaults fills in zero values with defaults
func (c *Config) applyDefaults() {
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "opsledger"
	}
	if c.Driver == "" {
		c.Driver = DriverPgx
	}
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.SlowQueryThreshold == 0 {
		c.SlowQueryThreshold = DefaultSlowQueryThreshold
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Validate reports the first missing or invalid connection field.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return missingField("host")
	case c.Port == 0:
		return missingField("port")
	case c.Database == "":
		return missingField("database")
	case c.User == "":
		return missingField("user")
	case c.Password == "":
		return missingField("password")
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigurationError{Field: "port", Message: fmt.Sprintf("out of range: %d", c.Port)}
	}
	if c.MaxConns < 0 {
		return &ConfigurationError{Field: "max_conns", Message: "must not be negative"}
	}
	switch c.Driver {
	case "", DriverPgx, DriverPgdriver:
	default:
		return &ConfigurationError{Field: "driver", Message: fmt.Sprintf("unknown driver %q", c.Driver)}
	}
	return nil
}

func missingField(name string) error {
	return &ConfigurationError{Field: name, Message: "is required"}
}

// DSN returns the connection URL for the configured server.
func (c Config) DSN() string {
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ApplicationName != "" {
		q.Set("application_name", c.ApplicationName)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// WithLogger enables query logging
func (c Config) WithLogger(logger *zap.Logger) Config {
	c.Logger = logger
	return c
}

// WithSlowQueryLog logs queries slower than the threshold
func (c Config) WithSlowQueryLog(threshold time.Duration) Config {
	c.SlowQueryThreshold = threshold
	return c
}

// WithMetrics enables Prometheus metrics
func (c Config) WithMetrics(registry prometheus.Registerer) Config {
	c.MetricsRegistry = registry
	return c
}

// WithTracing enables OpenTelemetry tracing
func (c Config) WithTracing(tracer trace.Tracer) Config {
	c.Tracer = tracer
	return c
}
