// Package report reads the ledger's reporting views and exports them.
package report

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fernandezvara/opsledger"
	"github.com/fernandezvara/opsledger/ledger"
)

// InventoryLevel is a row of the current_inventory view.
type InventoryLevel struct {
	bun.BaseModel `bun:"table:current_inventory"`

	MaterialCode string    `bun:"material_code" json:"material_code"`
	MaterialName string    `bun:"material_name" json:"material_name"`
	Category     string    `bun:"category" json:"category"`
	CurrentStock float64   `bun:"current_stock" json:"current_stock"`
	Unit         string    `bun:"unit_of_measure" json:"unit_of_measure"`
	LastUpdated  time.Time `bun:"last_updated" json:"last_updated"`
}

// ProductionDay is a row of the daily_production_summary view.
type ProductionDay struct {
	bun.BaseModel `bun:"table:daily_production_summary"`

	Date              time.Time `bun:"production_date" json:"production_date"`
	Shift             string    `bun:"shift" json:"shift"`
	MaterialsProduced int       `bun:"materials_produced" json:"materials_produced"`
	TotalTons         float64   `bun:"total_production_tons" json:"total_production_tons"`
}

// DispatchDay is a row of the daily_dispatch_summary view.
type DispatchDay struct {
	bun.BaseModel `bun:"table:daily_dispatch_summary"`

	Date                time.Time `bun:"dispatch_date" json:"dispatch_date"`
	MaterialsDispatched int       `bun:"materials_dispatched" json:"materials_dispatched"`
	TotalTons           float64   `bun:"total_dispatched_tons" json:"total_dispatched_tons"`
	TotalTrips          int       `bun:"total_trips" json:"total_trips"`
}

// Utilization is a row of the equipment_utilization view.
type Utilization struct {
	bun.BaseModel `bun:"table:equipment_utilization"`

	EquipmentType    string    `bun:"equipment_type" json:"equipment_type"`
	EquipmentName    string    `bun:"equipment_name" json:"equipment_name"`
	Date             time.Time `bun:"attendance_date" json:"attendance_date"`
	TotalUnits       int       `bun:"total_units" json:"total_units"`
	UnitsOperational int       `bun:"units_operational" json:"units_operational"`
	HoursOperated    *float64  `bun:"hours_operated" json:"hours_operated"`
	Percentage       float64   `bun:"utilization_percentage" json:"utilization_percentage"`
}

// Report is every view over one date range.
type Report struct {
	Range       ledger.DateRange `json:"range"`
	GeneratedAt time.Time        `json:"generated_at"`
	Inventory   []InventoryLevel `json:"inventory"`
	Production  []ProductionDay  `json:"production"`
	Dispatch    []DispatchDay    `json:"dispatch"`
	Utilization []Utilization    `json:"utilization"`
}

// Reporter runs report queries through bun on the ledger pool.
type Reporter struct {
	db     *bun.DB
	logger *zap.Logger
}

// New returns a Reporter over db.
func New(db *opsledger.DB) *Reporter {
	return &Reporter{db: db.Bun(), logger: db.Logger().Named("report")}
}

// CurrentInventory returns the latest closing balance of every active material.
func (r *Reporter) CurrentInventory(ctx context.Context) ([]InventoryLevel, error) {
	rows := make([]InventoryLevel, 0)
	err := r.db.NewSelect().Model(&rows).Order("material_code").Scan(ctx)
	if err != nil {
		return nil, opsledger.WithErr1(err).Op("report.CurrentInventory").Err()
	}
	return rows, nil
}

// DailyProduction returns production totals per day and shift.
func (r *Reporter) DailyProduction(ctx context.Context, rng ledger.DateRange) ([]ProductionDay, error) {
	rng, err := ledger.ValidateDateRange(rng)
	if err != nil {
		return nil, err
	}
	rows := make([]ProductionDay, 0)
	err = r.db.NewSelect().Model(&rows).
		Where("production_date BETWEEN ? AND ?", rng.StartDate, rng.EndDate).
		Order("production_date", "shift").
		Scan(ctx)
	if err != nil {
		return nil, opsledger.WithErr1(err).Op("report.DailyProduction").Err()
	}
	return rows, nil
}

// DailyDispatch returns dispatch totals per day.
func (r *Reporter) DailyDispatch(ctx context.Context, rng ledger.DateRange) ([]DispatchDay, error) {
	rng, err := ledger.ValidateDateRange(rng)
	if err != nil {
		return nil, err
	}
	rows := make([]DispatchDay, 0)
	err = r.db.NewSelect().Model(&rows).
		Where("dispatch_date BETWEEN ? AND ?", rng.StartDate, rng.EndDate).
		Order("dispatch_date").
		Scan(ctx)
	if err != nil {
		return nil, opsledger.WithErr1(err).Op("report.DailyDispatch").Err()
	}
	return rows, nil
}

// EquipmentUtilization returns per-day utilization of every piece of equipment.
func (r *Reporter) EquipmentUtilization(ctx context.Context, rng ledger.DateRange) ([]Utilization, error) {
	rng, err := ledger.ValidateDateRange(rng)
	if err != nil {
		return nil, err
	}
	rows := make([]Utilization, 0)
	err = r.db.NewSelect().Model(&rows).
		Where("attendance_date BETWEEN ? AND ?", rng.StartDate, rng.EndDate).
		Order("attendance_date", "equipment_type", "equipment_name").
		Scan(ctx)
	if err != nil {
		return nil, opsledger.WithErr1(err).Op("report.EquipmentUtilization").Err()
	}
	return rows, nil
}

// Build runs every report over rng concurrently.
func (r *Reporter) Build(ctx context.Context, rng ledger.DateRange) (*Report, error) {
	rng, err := ledger.ValidateDateRange(rng)
	if err != nil {
		return nil, err
	}

	rep := &Report{Range: rng, GeneratedAt: time.Now().UTC()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rep.Inventory, err = r.CurrentInventory(gctx)
		return err
	})
	g.Go(func() (err error) {
		rep.Production, err = r.DailyProduction(gctx, rng)
		return err
	})
	g.Go(func() (err error) {
		rep.Dispatch, err = r.DailyDispatch(gctx, rng)
		return err
	})
	g.Go(func() (err error) {
		rep.Utilization, err = r.EquipmentUtilization(gctx, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Info("report built",
		zap.Stringer("range", rng),
		zap.Int("inventory", len(rep.Inventory)),
		zap.Int("production_days", len(rep.Production)),
		zap.Int("dispatch_days", len(rep.Dispatch)),
		zap.Int("utilization_rows", len(rep.Utilization)),
	)
	return rep, nil
}
