package opsledger

import (
	"context"
	"database/sql"
	"time"
)

// HealthStatus is the outcome of one health probe, served on /healthz.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Driver    Driver        `json:"driver"`
	Database  string        `json:"database,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	PoolStats PoolStats     `json:"pool_stats"`
}

// PoolStats is the subset of sql.DBStats reported by health probes.
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
	MaxIdleTimeClosed  int64         `json:"max_idle_time_closed"`
}

const healthQuery = "SELECT 1 AS health"

// Health runs the health query and reports its latency with pool statistics.
func (db *DB) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := db.checkHealth(ctx)

	status := HealthStatus{
		Healthy:   err == nil,
		Driver:    db.config.Driver,
		Database:  db.config.Database,
		CheckedAt: start.UTC(),
		Latency:   time.Since(start),
		PoolStats: PoolStatsFromSQL(db.Stats()),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// IsHealthy returns true if the health query succeeds
func (db *DB) IsHealthy(ctx context.Context) bool {
	return db.checkHealth(ctx) == nil
}

func (db *DB) checkHealth(ctx context.Context) error {
	row, err := db.QueryOne(ctx, NewStatement(healthQuery))
	if err != nil {
		return err
	}
	if row == nil {
		return &QueryError{Code: CodeUnknown, Op: "Health", Message: "health query returned no row"}
	}
	if n, err := Int64(row["health"]); err != nil || n != 1 {
		return &QueryError{Code: CodeUnknown, Op: "Health", Message: "unexpected health query result"}
	}
	return nil
}

// PoolStatsFromSQL converts sql.DBStats to PoolStats
func PoolStatsFromSQL(stats sql.DBStats) PoolStats {
	return PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
	}
}
