package opsledger

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestHealth_Healthy(t *testing.T) {
	db, mock, _ := newMockDB(t)

	mock.ExpectQuery(q("SELECT 1 AS health")).
		WillReturnRows(sqlmock.NewRows([]string{"health"}).AddRow(int64(1)))

	status := db.Health(context.Background())
	if !status.Healthy {
		t.Fatalf("expected healthy, got error %q", status.Error)
	}
	if status.Latency <= 0 {
		t.Error("latency should be positive")
	}
	if status.Driver != DriverPgx || status.CheckedAt.IsZero() {
		t.Errorf("expected driver and check time, got %q %v", status.Driver, status.CheckedAt)
	}
	if status.PoolStats.MaxOpenConnections != 4 {
		t.Errorf("expected max open connections 4, got %d", status.PoolStats.MaxOpenConnections)
	}
	if status.PoolStats.InUse != 0 {
		t.Errorf("expected no connection in use, got %d", status.PoolStats.InUse)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	db, mock, _ := newMockDB(t)

	mock.ExpectQuery(q("SELECT 1 AS health")).WillReturnError(errors.New("server closed the connection unexpectedly"))

	status := db.Health(context.Background())
	if status.Healthy {
		t.Fatal("expected unhealthy")
	}
	if status.Error == "" {
		t.Error("expected an error message")
	}
}

func TestHealth_UnexpectedValue(t *testing.T) {
	db, mock, _ := newMockDB(t)

	mock.ExpectQuery(q("SELECT 1 AS health")).
		WillReturnRows(sqlmock.NewRows([]string{"health"}).AddRow(int64(2)))

	if db.IsHealthy(context.Background()) {
		t.Error("expected unhealthy for an unexpected result")
	}
}

func TestPoolStatsFromSQL(t *testing.T) {
	db, _, _ := newMockDB(t)

	stats := PoolStatsFromSQL(db.Stats())
	if stats.MaxOpenConnections != 4 {
		t.Errorf("expected 4, got %d", stats.MaxOpenConnections)
	}
	if stats.InUse < 0 || stats.Idle < 0 {
		t.Errorf("unexpected negative stats: %+v", stats)
	}
}
