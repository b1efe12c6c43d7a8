package opsledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

const auditInsert = "INSERT INTO system_audit_log (table_name, operation, record_id, old_values, new_values, changed_by) VALUES ($1, $2, $3, $4, $5, $6) RETURNING audit_id"

func TestAudit_Update(t *testing.T) {
	db, mock, _ := newMockDB(t)

	user := "7d9a3c55-2a4e-4d0f-9a61-1f0e6c1b2a90"
	mock.ExpectQuery(q(auditInsert)).
		WithArgs("materials", "UPDATE", "m1", `{"is_active":true}`, `{"is_active":false}`, user).
		WillReturnRows(sqlmock.NewRows([]string{"audit_id"}).AddRow("a1"))

	err := Audit(context.Background(), db, AuditEntry{
		Table:     "materials",
		Operation: AuditUpdate,
		RecordID:  "m1",
		OldValues: map[string]bool{"is_active": true},
		NewValues: map[string]bool{"is_active": false},
		ChangedBy: &user,
	})
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAudit_InsertBySystem(t *testing.T) {
	db, mock, _ := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(auditInsert)).
		WithArgs("production_daily", "INSERT", "p1", nil, `{"quantity_tons":55.5}`, nil).
		WillReturnRows(sqlmock.NewRows([]string{"audit_id"}).AddRow("a2"))
	mock.ExpectCommit()

	err := db.Transaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		return Audit(ctx, tx, AuditEntry{
			Table:     "production_daily",
			Operation: AuditInsert,
			RecordID:  "p1",
			NewValues: map[string]float64{"quantity_tons": 55.5},
		})
	})
	if err != nil {
		t.Fatalf("Audit in transaction failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAudit_UnmarshalableValues(t *testing.T) {
	db, mock, _ := newMockDB(t)

	err := Audit(context.Background(), db, AuditEntry{
		Table:     "materials",
		Operation: AuditInsert,
		RecordID:  "m1",
		NewValues: map[string]any{"bad": make(chan int)},
	})
	if err == nil {
		t.Fatal("expected marshal error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestContextPrincipal(t *testing.T) {
	var r PrincipalResolver = ContextPrincipal{}

	if id := r.PrincipalID(context.Background()); id != nil {
		t.Errorf("expected nil principal, got %s", *id)
	}
	if id := r.PrincipalID(WithPrincipal(context.Background(), "")); id != nil {
		t.Errorf("expected empty id to resolve to nil, got %s", *id)
	}

	id := r.PrincipalID(WithPrincipal(context.Background(), "u1"))
	if id == nil || *id != "u1" {
		t.Errorf("expected u1, got %v", id)
	}
}

func TestPrincipalFunc(t *testing.T) {
	fixed := "supervisor"
	r := PrincipalFunc(func(ctx context.Context) *string { return &fixed })
	if got := r.PrincipalID(context.Background()); got == nil || *got != "supervisor" {
		t.Errorf("unexpected principal %v", got)
	}
}

func TestNullString(t *testing.T) {
	if NullString(nil) != nil {
		t.Error("expected nil")
	}
	s := "x"
	if NullString(&s) != "x" {
		t.Error("expected x")
	}
}
