package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the exported workbook, in order.
const (
	SheetInventory   = "Inventory"
	SheetProduction  = "Production"
	SheetDispatch    = "Dispatch"
	SheetUtilization = "Equipment"
)

type sheet struct {
	name   string
	header []any
	rows   [][]any
}

func sheets(rep *Report) []sheet {
	inventory := sheet{
		name:   SheetInventory,
		header: []any{"Material code", "Material name", "Category", "Current stock", "Unit", "Last updated"},
	}
	for _, r := range rep.Inventory {
		inventory.rows = append(inventory.rows, []any{
			r.MaterialCode, r.MaterialName, r.Category, r.CurrentStock, r.Unit, r.LastUpdated.Format(time.DateTime),
		})
	}

	production := sheet{
		name:   SheetProduction,
		header: []any{"Date", "Shift", "Materials produced", "Total tons"},
	}
	for _, r := range rep.Production {
		production.rows = append(production.rows, []any{
			r.Date.Format(time.DateOnly), r.Shift, r.MaterialsProduced, r.TotalTons,
		})
	}

	dispatch := sheet{
		name:   SheetDispatch,
		header: []any{"Date", "Materials dispatched", "Total tons", "Trips"},
	}
	for _, r := range rep.Dispatch {
		dispatch.rows = append(dispatch.rows, []any{
			r.Date.Format(time.DateOnly), r.MaterialsDispatched, r.TotalTons, r.TotalTrips,
		})
	}

	utilization := sheet{
		name:   SheetUtilization,
		header: []any{"Date", "Type", "Name", "Total units", "Units operational", "Hours", "Utilization %"},
	}
	for _, r := range rep.Utilization {
		var hours any = ""
		if r.HoursOperated != nil {
			hours = *r.HoursOperated
		}
		utilization.rows = append(utilization.rows, []any{
			r.Date.Format(time.DateOnly), r.EquipmentType, r.EquipmentName, r.TotalUnits, r.UnitsOperational, hours, r.Percentage,
		})
	}

	return []sheet{inventory, production, dispatch, utilization}
}

// WriteWorkbook writes rep as an .xlsx workbook with one sheet per view.
func WriteWorkbook(w io.Writer, rep *Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets(rep) {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), s.name); err != nil {
				return fmt.Errorf("report: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("report: create sheet %s: %w", s.name, err)
		}

		if err := f.SetSheetRow(s.name, "A1", &s.header); err != nil {
			return fmt.Errorf("report: %s header: %w", s.name, err)
		}
		for j, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return fmt.Errorf("report: %s row %d: %w", s.name, j+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}
