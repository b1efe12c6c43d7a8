package opsledger

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuildInsert(t *testing.T) {
	stmt, err := BuildInsert("materials", Values{}.Set("material_code", "A1").Set("material_name", "Test"), "")
	if err != nil {
		t.Fatalf("BuildInsert failed: %v", err)
	}

	want := "INSERT INTO materials (material_code, material_name) VALUES ($1, $2) RETURNING *"
	if stmt.Text != want {
		t.Errorf("expected %q, got %q", want, stmt.Text)
	}
	if !reflect.DeepEqual(stmt.Args, []any{"A1", "Test"}) {
		t.Errorf("unexpected args: %v", stmt.Args)
	}
}

func TestBuildInsert_Returning(t *testing.T) {
	stmt, err := BuildInsert("system_audit_log", Values{}.Set("table_name", "materials"), "audit_id")
	if err != nil {
		t.Fatalf("BuildInsert failed: %v", err)
	}
	if stmt.Text != "INSERT INTO system_audit_log (table_name) VALUES ($1) RETURNING audit_id" {
		t.Errorf("unexpected text: %q", stmt.Text)
	}
}

func TestBuildInsert_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		values Values
	}{
		{"empty values", "materials", nil},
		{"bad table", "materials; DROP TABLE x", Values{}.Set("a", 1)},
		{"bad column", "materials", Values{}.Set("code)", 1)},
		{"duplicate column", "materials", Values{}.Set("a", 1).Set("a", 2)},
	}

	for _, tt := range tests {
		_, err := BuildInsert(tt.table, tt.values, "")
		if !errors.Is(err, ErrInvalidStatement) {
			t.Errorf("%s: expected ErrInvalidStatement, got %v", tt.name, err)
		}
	}
}

func TestBuildUpdate_Numbering(t *testing.T) {
	values := Values{}.Set("quantity_tons", 55.5).Set("shift", "Night")
	stmt, err := BuildUpdate("production_daily", values, "production_id = $3", []any{"p1"}, "")
	if err != nil {
		t.Fatalf("BuildUpdate failed: %v", err)
	}

	want := "UPDATE production_daily SET quantity_tons = $1, shift = $2 WHERE production_id = $3 RETURNING *"
	if stmt.Text != want {
		t.Errorf("expected %q, got %q", want, stmt.Text)
	}
	if !reflect.DeepEqual(stmt.Args, []any{55.5, "Night", "p1"}) {
		t.Errorf("unexpected args: %v", stmt.Args)
	}
}

func TestBuildUpdate_RequiresWhere(t *testing.T) {
	_, err := BuildUpdate("materials", Values{}.Set("is_active", false), "  ", nil, "")
	if !errors.Is(err, ErrInvalidStatement) {
		t.Errorf("expected ErrInvalidStatement, got %v", err)
	}
}

func TestSelect_Build(t *testing.T) {
	stmt, err := Select("materials").
		Columns("material_id, material_code").
		Where("category = $1 AND is_active = $2", "AGGREGATE", true).
		OrderBy("material_code").
		Limit(20).
		Offset(40).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := "SELECT material_id, material_code FROM materials WHERE category = $1 AND is_active = $2 ORDER BY material_code LIMIT $3 OFFSET $4"
	if stmt.Text != want {
		t.Errorf("expected %q, got %q", want, stmt.Text)
	}
	if !reflect.DeepEqual(stmt.Args, []any{"AGGREGATE", true, 20, 40}) {
		t.Errorf("unexpected args: %v", stmt.Args)
	}
}

func TestSelect_Locks(t *testing.T) {
	stmt, err := Select("dispatch_transactions").Where("dispatch_id = $1", "d1").ForUpdate().Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if stmt.Text != "SELECT * FROM dispatch_transactions WHERE dispatch_id = $1 FOR UPDATE" {
		t.Errorf("unexpected text: %q", stmt.Text)
	}

	stmt, _ = Select("materials").Columns("is_active").Where("material_id = $1", "m1").ForShare().Build()
	if stmt.Text != "SELECT is_active FROM materials WHERE material_id = $1 FOR SHARE" {
		t.Errorf("unexpected text: %q", stmt.Text)
	}
}

func TestSelect_IsImmutable(t *testing.T) {
	base := Select("materials").Where("is_active = $1", true)
	_ = base.Limit(5)

	stmt, _ := base.Build()
	if stmt.Text != "SELECT * FROM materials WHERE is_active = $1" {
		t.Errorf("base query was modified: %q", stmt.Text)
	}
}

func TestSelect_NegativeLimit(t *testing.T) {
	if _, err := Select("materials").Limit(-1).Build(); !errors.Is(err, ErrInvalidStatement) {
		t.Errorf("expected ErrInvalidStatement, got %v", err)
	}
	if _, err := Select("materials").Offset(-20).Build(); !errors.Is(err, ErrInvalidStatement) {
		t.Errorf("expected ErrInvalidStatement, got %v", err)
	}
}

func TestValues(t *testing.T) {
	v := Values{}.Set("a", 1).SetIf(false, "b", 2).SetIf(true, "c", 3)
	if !reflect.DeepEqual(v.Columns(), []string{"a", "c"}) {
		t.Errorf("unexpected columns: %v", v.Columns())
	}
	if !reflect.DeepEqual(v.Args(), []any{1, 3}) {
		t.Errorf("unexpected args: %v", v.Args())
	}

	m := ValuesFromMap(map[string]any{"shift": "Day", "material_id": "m1"})
	if !reflect.DeepEqual(m.Columns(), []string{"material_id", "shift"}) {
		t.Errorf("expected sorted columns, got %v", m.Columns())
	}
}

func TestPlaceholder(t *testing.T) {
	if Placeholder(1) != "$1" || Placeholder(12) != "$12" {
		t.Errorf("unexpected placeholders %s %s", Placeholder(1), Placeholder(12))
	}
}

func TestJoinColumns(t *testing.T) {
	if got := joinColumns([]string{"a", "b", "c"}); got != "a, b, c" {
		t.Errorf("expected 'a, b, c', got %q", got)
	}
	if got := joinColumns(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestInt64(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{int64(41), 41},
		{int32(7), 7},
		{"12", 12},
		{[]byte(" 3 "), 3},
		{float64(9), 9},
	}
	for _, tt := range tests {
		got, err := Int64(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("Int64(%v): expected %d, got %d (%v)", tt.in, tt.want, got, err)
		}
	}
	if _, err := Int64(nil); err == nil {
		t.Error("expected error for NULL")
	}
}

func TestFloat64(t *testing.T) {
	got, err := Float64("130.02")
	if err != nil || got != 130.02 {
		t.Errorf("expected 130.02, got %v (%v)", got, err)
	}
	if _, err := Float64(true); err == nil {
		t.Error("expected error for bool")
	}
}
