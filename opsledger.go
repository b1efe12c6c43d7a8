package opsledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/fernandezvara/opsledger/hooks"
)

// DB is the handle to the shared connection pool. It is safe for concurrent use.
type DB struct {
	sql    *sql.DB
	bun    *bun.DB
	config Config
	logger *zap.Logger
	hooks  []hooks.QueryHook

	poolCollector prometheus.Collector
	closeOnce     sync.Once
	closeErr      error
}

// New opens the connection pool and verifies it with a single ping bounded by
// cfg.ConnectTimeout. A failed connect is returned immediately; there is no retry.
func New(ctx context.Context, cfg Config) (*DB, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		cfg.Logger.Error("invalid database configuration", zap.Error(err))
		return nil, err
	}

	sqlDB, err := openSQL(cfg, cfg.Logger.With(zap.String("component", "opsledger")))
	if err != nil {
		return nil, err
	}

	db, err := NewFromDB(sqlDB, cfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		db.logger.Error("database connection failed",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("database", cfg.Database),
			zap.Error(err),
		)
		_ = db.Close()
		return nil, &QueryError{
			Code:    CodeConnectionFailed,
			Message: "failed to connect to database",
			Op:      "New",
			Cause:   err,
		}
	}

	db.logger.Info("database pool ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("driver", string(cfg.Driver)),
		zap.Int("max_conns", cfg.MaxConns),
	)
	return db, nil
}

func openSQL(cfg Config, logger *zap.Logger) (*sql.DB, error) {
	if cfg.Driver == DriverPgdriver {
		connector := pgdriver.NewConnector(
			pgdriver.WithDSN(cfg.DSN()),
			pgdriver.WithDialTimeout(cfg.ConnectTimeout),
		)
		return sql.OpenDB(connector), nil
	}

	connCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, &ConfigurationError{Field: "dsn", Message: "cannot be parsed"}
	}
	connCfg.ConnectTimeout = cfg.ConnectTimeout

	return stdlib.OpenDB(*connCfg, stdlib.OptionAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
		logger.Info("new database connection established", zap.Uint32("pid", conn.PgConn().PID()))
		return nil
	})), nil
}

// NewFromDB wraps an already opened *sql.DB. Pool limits and hooks from cfg are
// applied; connection fields are not validated.
func NewFromDB(sqlDB *sql.DB, cfg Config) (*DB, error) {
	cfg.applyDefaults()

	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxConns)
	sqlDB.SetConnMaxIdleTime(cfg.IdleTimeout)

	db := &DB{
		sql:    sqlDB,
		bun:    bun.NewDB(sqlDB, pgdialect.New(), bun.WithDiscardUnknownColumns()),
		config: cfg,
		logger: cfg.Logger.With(zap.String("component", "opsledger")),
	}

	db.hooks = append(db.hooks, hooks.NewLoggerHook(db.logger, cfg.LogQueries, cfg.SlowQueryThreshold))
	if cfg.MetricsRegistry != nil {
		hook, err := hooks.NewMetricsHook(cfg.MetricsRegistry)
		if err != nil {
			return nil, fmt.Errorf("opsledger: failed to create metrics hook: %w", err)
		}
		db.hooks = append(db.hooks, hook)

		pool := collectors.NewDBStatsCollector(sqlDB, "opsledger")
		if err := cfg.MetricsRegistry.Register(pool); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, fmt.Errorf("opsledger: failed to register pool metrics: %w", err)
			}
		} else {
			db.poolCollector = pool
		}
	}
	if cfg.Tracer != nil {
		db.hooks = append(db.hooks, hooks.NewTracingHook(cfg.Tracer))
	}

	db.bun.AddQueryHook(bunBridge{hooks: db.hooks})
	return db, nil
}

// Close drains and closes the pool. It is safe to call more than once.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		if db.poolCollector != nil {
			db.config.MetricsRegistry.Unregister(db.poolCollector)
		}
		db.closeErr = db.sql.Close()
		db.logger.Info("database pool closed")
	})
	return db.closeErr
}

// Ping verifies the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return classify(db.sql.PingContext(ctx), "Ping", "")
}

// Stats returns connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.sql.Stats()
}

// Bun returns a bun.DB over the same pool, for report and migration queries.
func (db *DB) Bun() *bun.DB {
	return db.bun
}

// Config returns the effective configuration
func (db *DB) Config() Config {
	return db.config
}

// Logger returns the pool's component logger.
func (db *DB) Logger() *zap.Logger {
	return db.logger
}

// bunBridge feeds bun's query events to the pool's hooks so bun-level
// queries are logged, measured and traced like the core's own statements.
type bunBridge struct {
	hooks []hooks.QueryHook
}

type bunEventKey struct{}

func (b bunBridge) BeforeQuery(ctx context.Context, e *bun.QueryEvent) context.Context {
	event := &hooks.QueryEvent{Op: "bun", Query: e.Query, StartTime: e.StartTime}
	for _, h := range b.hooks {
		ctx = h.BeforeQuery(ctx, event)
	}
	return context.WithValue(ctx, bunEventKey{}, event)
}

func (b bunBridge) AfterQuery(ctx context.Context, e *bun.QueryEvent) {
	event, ok := ctx.Value(bunEventKey{}).(*hooks.QueryEvent)
	if !ok {
		return
	}
	if e.Err != nil && !errors.Is(e.Err, sql.ErrNoRows) {
		event.Err = e.Err
	}
	if e.Result != nil {
		if n, err := e.Result.RowsAffected(); err == nil {
			event.Rows = n
		}
	}
	for i := len(b.hooks) - 1; i >= 0; i-- {
		b.hooks[i].AfterQuery(ctx, event)
	}
}
