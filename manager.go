package opsledger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// OpenFunc opens a pool for a configuration. New is the default.
type OpenFunc func(ctx context.Context, cfg Config) (*DB, error)

// Manager owns the process-wide pool. Construct one at startup and pass it,
// or the *DB it returns, to every caller.
type Manager struct {
	mu   sync.Mutex
	db   *DB
	open OpenFunc
}

// NewManager returns a manager that opens pools with open, or New when nil.
func NewManager(open OpenFunc) *Manager {
	if open == nil {
		open = New
	}
	return &Manager{open: open}
}

// Acquire opens the pool on first use and returns the same handle on every
// later call until Shutdown. The configuration of later calls is ignored.
func (m *Manager) Acquire(ctx context.Context, cfg Config) (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}

	db, err := m.open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.db = db
	return db, nil
}

// Current returns the open pool, or ErrPoolClosed.
func (m *Manager) Current() (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil, ErrPoolClosed
	}
	return m.db, nil
}

// Shutdown closes the pool and resets the manager, so a later Acquire opens
// a fresh pool. It is a no-op when no pool is open.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	db := m.db
	m.db = nil

	if err := db.Close(); err != nil {
		db.logger.Error("database pool shutdown failed", zap.Error(err))
		return classify(err, "Shutdown", "")
	}
	return nil
}
