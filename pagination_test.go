package opsledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestOffsetAndTotalPages(t *testing.T) {
	tests := []struct {
		page, limit int
		total       int64
		offset      int
		pages       int
	}{
		{1, 20, 0, 0, 0},
		{1, 20, 1, 0, 1},
		{2, 20, 41, 20, 3},
		{3, 20, 60, 40, 3},
		{5, 7, 50, 28, 8},
	}
	for _, tt := range tests {
		if got := Offset(tt.page, tt.limit); got != tt.offset {
			t.Errorf("Offset(%d, %d): expected %d, got %d", tt.page, tt.limit, tt.offset, got)
		}
		if got := TotalPages(tt.total, tt.limit); got != tt.pages {
			t.Errorf("TotalPages(%d, %d): expected %d, got %d", tt.total, tt.limit, tt.pages, got)
		}
	}
}

func TestValidatePage(t *testing.T) {
	if err := ValidatePage(1, DefaultPageSize); err != nil {
		t.Errorf("expected valid page, got %v", err)
	}

	err := ValidatePage(0, MaxPageSize+1)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !ve.Has("page") || !ve.Has("limit") {
		t.Errorf("expected page and limit issues, got %v", ve.Fields())
	}
}

func TestPaginate(t *testing.T) {
	db, mock, _ := newMockDB(t)
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(q("SELECT * FROM production_daily WHERE shift = $1 ORDER BY production_date DESC LIMIT $2 OFFSET $3")).
		WithArgs("Day", 20, 20).
		WillReturnRows(sqlmock.NewRows([]string{"production_id", "quantity_tons"}).
			AddRow("p21", "120.50").
			AddRow("p22", "98.00"))
	mock.ExpectQuery(q("SELECT COUNT(*) AS count FROM production_daily WHERE shift = $1")).
		WithArgs("Day").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(41)))

	page, err := Paginate(context.Background(), db, PageQuery{
		Query:      "SELECT * FROM production_daily WHERE shift = $1 ORDER BY production_date DESC",
		CountQuery: "SELECT COUNT(*) AS count FROM production_daily WHERE shift = $1",
		Args:       []any{"Day"},
	}, 2, 20)
	if err != nil {
		t.Fatalf("Paginate failed: %v", err)
	}

	if len(page.Data) != 2 {
		t.Errorf("expected 2 rows, got %d", len(page.Data))
	}
	want := Pagination{Page: 2, Limit: 20, Total: 41, TotalPages: 3}
	if page.Pagination != want {
		t.Errorf("expected %+v, got %+v", want, page.Pagination)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPaginateInto_EmptyCount(t *testing.T) {
	db, mock, _ := newMockDB(t)
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(q("SELECT material_id, material_code, size_mm, is_active FROM materials LIMIT $1 OFFSET $2")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"material_id", "material_code", "size_mm", "is_active"}))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM materials")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}))

	page, err := PaginateInto[materialRow](context.Background(), db, PageQuery{
		Query:      "SELECT material_id, material_code, size_mm, is_active FROM materials",
		CountQuery: "SELECT COUNT(*) FROM materials",
	}, 1, 10)
	if err != nil {
		t.Fatalf("PaginateInto failed: %v", err)
	}
	if page.Data == nil || len(page.Data) != 0 {
		t.Errorf("expected empty data, got %#v", page.Data)
	}
	if page.Pagination.Total != 0 || page.Pagination.TotalPages != 0 {
		t.Errorf("expected empty pagination, got %+v", page.Pagination)
	}
}

func TestPaginate_InvalidPageIssuesNoSQL(t *testing.T) {
	db, mock, _ := newMockDB(t)

	_, err := Paginate(context.Background(), db, PageQuery{Query: "SELECT * FROM materials", CountQuery: "SELECT COUNT(*) FROM materials"}, 0, 20)
	if !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPaginate_CountFailure(t *testing.T) {
	db, mock, _ := newMockDB(t)
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(q("SELECT * FROM materials LIMIT $1 OFFSET $2")).
		WillReturnRows(sqlmock.NewRows([]string{"material_id"}))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM materials")).
		WillReturnError(context.DeadlineExceeded)

	_, err := Paginate(context.Background(), db, PageQuery{
		Query:      "SELECT * FROM materials",
		CountQuery: "SELECT COUNT(*) FROM materials",
	}, 1, 20)
	if !IsTimeout(err) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestCountValue(t *testing.T) {
	tests := []struct {
		row     Row
		want    int64
		wantErr bool
	}{
		{nil, 0, false},
		{Row{"count": int64(7)}, 7, false},
		{Row{"total": "12"}, 12, false},
		{Row{"count": nil}, 0, false},
		{Row{"a": 1, "b": 2}, 0, true},
		{Row{"count": "many"}, 0, true},
	}
	for _, tt := range tests {
		got, err := countValue(tt.row)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("countValue(%v): expected %d (err %v), got %d (%v)", tt.row, tt.want, tt.wantErr, got, err)
		}
	}
}
