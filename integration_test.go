package opsledger_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fernandezvara/opsledger"
	"github.com/fernandezvara/opsledger/ledger"
	"github.com/fernandezvara/opsledger/migrations"
)

// getTestDB connects to the PostgreSQL server named by TEST_DB_* and applies
// the schema. The test is skipped when TEST_DB_HOST is not set.
func getTestDB(t *testing.T) *opsledger.DB {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}
	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	db, err := opsledger.New(context.Background(), opsledger.DefaultConfig(
		host, port,
		env("TEST_DB_NAME", "opsledger_test"),
		env("TEST_DB_USER", "postgres"),
		env("TEST_DB_PASSWORD", "password"),
	))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	all, err := migrations.All()
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}
	if _, err := db.Migrate(context.Background(), all); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func ptr[T any](v T) *T { return &v }

func TestIntegration_LedgerDay(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	svc := ledger.NewService(db)

	code := "IT-" + uuid.NewString()[:8]
	material, err := svc.CreateMaterial(ctx, ledger.NewMaterial{
		Code:     code,
		Name:     "Integration aggregate",
		Category: ledger.CategoryAggregate,
		Unit:     ledger.UnitTon,
	})
	if err != nil {
		t.Fatalf("CreateMaterial failed: %v", err)
	}

	day := time.Date(2031, 1, 15, 0, 0, 0, 0, time.UTC)
	if _, err := svc.RecordProduction(ctx, ledger.NewProduction{
		MaterialID:     material.ID,
		ProductionDate: day,
		QuantityTons:   ptr(250.0),
		Shift:          ledger.ShiftDay,
	}); err != nil {
		t.Fatalf("RecordProduction failed: %v", err)
	}
	if _, err := svc.RecordDispatch(ctx, ledger.NewDispatch{
		MaterialID:     material.ID,
		DispatchDate:   day,
		NetWeightTons:  ptr(120.0),
		WeightEntrance: ptr(135.5),
		WeightExit:     ptr(15.5),
	}); err != nil {
		t.Fatalf("RecordDispatch failed: %v", err)
	}

	summaries, err := svc.RollupInventory(ctx, day)
	if err != nil {
		t.Fatalf("RollupInventory failed: %v", err)
	}
	var found bool
	for _, s := range summaries {
		if s.MaterialID != material.ID {
			continue
		}
		found = true
		if s.TotalProduction != 250 || s.TotalDispatched != 120 || s.ClosingBalance != s.OpeningBalance+130 {
			t.Errorf("unexpected summary %+v", s)
		}
	}
	if !found {
		t.Error("expected a summary for the new material")
	}

	// A second rollup of the same day updates in place.
	if _, err := svc.RollupInventory(ctx, day); err != nil {
		t.Fatalf("second RollupInventory failed: %v", err)
	}
	row, err := db.QueryOne(ctx, opsledger.NewStatement(
		"SELECT COUNT(*) AS count FROM inventory_summary WHERE material_id = $1 AND summary_date = $2", material.ID, day))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n, _ := opsledger.Int64(row["count"]); n != 1 {
		t.Errorf("expected one summary row, got %d", n)
	}
}

func TestIntegration_RollbackReleasesConnection(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()

	code := "RB-" + uuid.NewString()[:8]
	err := db.Transaction(ctx, func(ctx context.Context, tx *opsledger.Tx) error {
		stmt, err := opsledger.BuildInsert("materials", opsledger.Values{}.
			Set("material_code", code).
			Set("material_name", "Rolled back").
			Set("category", "AGGREGATE").
			Set("unit_of_measure", "Ton"), "")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
		return opsledger.ErrValidation
	})
	if err != opsledger.ErrValidation {
		t.Fatalf("expected the unit of work error, got %v", err)
	}

	row, err := db.QueryOne(ctx, opsledger.NewStatement("SELECT material_id FROM materials WHERE material_code = $1", code))
	if err != nil {
		t.Fatalf("QueryOne failed: %v", err)
	}
	if row != nil {
		t.Error("expected the insert to be rolled back")
	}
	if in := db.Stats().InUse; in != 0 {
		t.Errorf("expected connection back in the pool, %d in use", in)
	}
}

func TestIntegration_DuplicateCode(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	svc := ledger.NewService(db)

	in := ledger.NewMaterial{
		Code:     "DUP-" + uuid.NewString()[:8],
		Name:     "Duplicate",
		Category: ledger.CategoryFineMaterial,
		Unit:     ledger.UnitTon,
	}
	if _, err := svc.CreateMaterial(ctx, in); err != nil {
		t.Fatalf("CreateMaterial failed: %v", err)
	}
	if _, err := svc.CreateMaterial(ctx, in); !opsledger.IsDuplicate(err) {
		t.Errorf("expected duplicate error, got %v", err)
	}
}

func TestIntegration_Health(t *testing.T) {
	db := getTestDB(t)
	if status := db.Health(context.Background()); !status.Healthy {
		t.Errorf("expected healthy database, got %q", status.Error)
	}
}
