package opsledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Migration is one schema change.
type Migration struct {
	ID          string // Sortable identifier, e.g. "0003"
	Description string
	SQL         string
}

// MigrationResult represents the result of running migrations
type MigrationResult struct {
	Applied   []string
	Skipped   []string
	TotalTime time.Duration
}

// MigrationStatusEntry represents the status of a single migration
type MigrationStatusEntry struct {
	ID            string
	Description   string
	Applied       bool
	ChecksumMatch bool // Only relevant if Applied is true
}

type migrationRecord struct {
	bun.BaseModel `bun:"table:_opsledger_migrations"`

	ID          string    `bun:"id,pk"`
	Description string    `bun:"description"`
	Checksum    string    `bun:"checksum"`
	AppliedAt   time.Time `bun:"applied_at"`
	DurationMs  int64     `bun:"duration_ms"`
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS _opsledger_migrations (
    id VARCHAR(255) PRIMARY KEY,
    description TEXT,
    checksum VARCHAR(64) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    duration_ms BIGINT NOT NULL
);
`

// LoadMigrations reads dir/*.sql from fsys. File names take the form
// "<id>_<description>.sql", e.g. "0001_create_materials.sql"; migrations are
// returned sorted by id.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("opsledger: read migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".sql")
		id, desc, ok := strings.Cut(base, "_")
		if !ok || id == "" {
			return nil, fmt.Errorf("opsledger: migration file %q must be named <id>_<description>.sql", e.Name())
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("opsledger: read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{
			ID:          id,
			Description: strings.ReplaceAll(desc, "_", " "),
			SQL:         string(body),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for i := 1; i < len(out); i++ {
		if out[i].ID == out[i-1].ID {
			return nil, fmt.Errorf("opsledger: duplicate migration id %s", out[i].ID)
		}
	}
	return out, nil
}

// Migrate applies pending migrations in order, each in its own transaction.
// An applied migration whose SQL has changed stops the run.
func (db *DB) Migrate(ctx context.Context, migrations []Migration) (*MigrationResult, error) {
	start := time.Now()
	result := &MigrationResult{}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	for _, m := range migrations {
		checksum := checksumSQL(m.SQL)

		if existing, ok := applied[m.ID]; ok {
			if existing != checksum {
				return nil, &QueryError{
					Code:    CodeUnknown,
					Message: fmt.Sprintf("migration %s has changed (checksum mismatch: expected %s, got %s)", m.ID, existing, checksum),
					Op:      "Migrate",
				}
			}
			result.Skipped = append(result.Skipped, m.ID)
			continue
		}

		if err := db.applyMigration(ctx, m, checksum); err != nil {
			return nil, err
		}
		db.logger.Info("migration applied", zap.String("id", m.ID), zap.String("description", m.Description))
		result.Applied = append(result.Applied, m.ID)
	}

	result.TotalTime = time.Since(start)
	return result, nil
}

// MigrationStatus returns the status of all known migrations
func (db *DB) MigrationStatus(ctx context.Context, migrations []Migration) ([]MigrationStatusEntry, error) {
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatusEntry, 0, len(migrations))
	for _, m := range migrations {
		entry := MigrationStatusEntry{ID: m.ID, Description: m.Description}
		if sum, ok := applied[m.ID]; ok {
			entry.Applied = true
			entry.ChecksumMatch = sum == checksumSQL(m.SQL)
		}
		out = append(out, entry)
	}
	return out, nil
}

// appliedMigrations ensures the tracking table exists and returns id -> checksum.
func (db *DB) appliedMigrations(ctx context.Context) (map[string]string, error) {
	if _, err := db.bun.ExecContext(ctx, migrationsTable); err != nil {
		return nil, classify(err, "Migrate.Init", migrationsTable)
	}

	var rows []migrationRecord
	err := db.bun.NewSelect().
		Model(&rows).
		Column("id", "checksum").
		Scan(ctx)
	if err != nil {
		return nil, WithErr1(err).Op("Migrate.Applied").Err()
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Checksum
	}
	return out, nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration, checksum string) error {
	start := time.Now()
	return db.bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			qe, _ := classify(err, "Migrate.Apply", m.SQL).(*QueryError)
			if qe != nil {
				qe.Message = fmt.Sprintf("migration %s failed: %s", m.ID, qe.Message)
				return qe
			}
			return err
		}

		record := &migrationRecord{
			ID:          m.ID,
			Description: m.Description,
			Checksum:    checksum,
			AppliedAt:   time.Now(),
			DurationMs:  time.Since(start).Milliseconds(),
		}
		_, err := tx.NewInsert().Model(record).Exec(ctx)
		return WithErr1(err).Op("Migrate.Record").Err()
	})
}

// checksumSQL creates a SHA256 checksum of SQL content
func checksumSQL(sql string) string {
	hash := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(hash[:])
}
