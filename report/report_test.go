package report

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fernandezvara/opsledger"
	"github.com/fernandezvara/opsledger/ledger"
)

var (
	start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
)

func newTestReporter(t *testing.T) (*Reporter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := opsledger.NewFromDB(sqlDB, opsledger.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestDailyProduction(t *testing.T) {
	r, mock := newTestReporter(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "daily_production_summary"`)).
		WillReturnRows(sqlmock.NewRows([]string{"production_date", "shift", "materials_produced", "total_production_tons"}).
			AddRow(start, "Day", int64(3), 410.5).
			AddRow(start, "Night", int64(2), 220.0))

	rows, err := r.DailyProduction(context.Background(), ledger.DateRange{StartDate: start, EndDate: end})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Day", rows[0].Shift)
	assert.Equal(t, 3, rows[0].MaterialsProduced)
	assert.Equal(t, 410.5, rows[0].TotalTons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyDispatch_InvalidRange(t *testing.T) {
	r, mock := newTestReporter(t)

	_, err := r.DailyDispatch(context.Background(), ledger.DateRange{StartDate: end, EndDate: start})
	assert.True(t, opsledger.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentInventory_Error(t *testing.T) {
	r, mock := newTestReporter(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "current_inventory"`)).
		WillReturnError(context.DeadlineExceeded)

	_, err := r.CurrentInventory(context.Background())
	assert.True(t, opsledger.IsTimeout(err), "got %v", err)
}

func TestWriteWorkbook(t *testing.T) {
	hours := 7.5
	rep := &Report{
		Range: ledger.DateRange{StartDate: start, EndDate: end},
		Inventory: []InventoryLevel{
			{MaterialCode: "AGG-20", MaterialName: "Aggregate 20mm", Category: "AGGREGATE", CurrentStock: 130, Unit: "Ton", LastUpdated: start},
		},
		Production: []ProductionDay{
			{Date: start, Shift: "Day", MaterialsProduced: 3, TotalTons: 410.5},
		},
		Dispatch: []DispatchDay{
			{Date: start, MaterialsDispatched: 2, TotalTons: 180, TotalTrips: 9},
		},
		Utilization: []Utilization{
			{EquipmentType: "Loader", EquipmentName: "Wheel loader", Date: start, TotalUnits: 2, UnitsOperational: 1, HoursOperated: &hours, Percentage: 50},
			{EquipmentType: "Crusher", EquipmentName: "Jaw crusher", Date: start, TotalUnits: 1, UnitsOperational: 1, Percentage: 100},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetInventory, SheetProduction, SheetDispatch, SheetUtilization}, f.GetSheetList())

	rows, err := f.GetRows(SheetInventory)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Material code", rows[0][0])
	assert.Equal(t, []string{"AGG-20", "Aggregate 20mm", "AGGREGATE", "130", "Ton", "2024-03-01 00:00:00"}, rows[1])

	rows, err = f.GetRows(SheetUtilization)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "7.5", rows[1][5])
	assert.Equal(t, "", rows[2][5])
}
