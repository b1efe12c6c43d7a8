package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fernandezvara/opsledger"
)

// NewInventorySummary is the input of RecordInventorySummary. The closing
// balance is always derived.
type NewInventorySummary struct {
	MaterialID      string    `json:"material_id"`
	SummaryDate     time.Time `json:"summary_date"`
	OpeningBalance  *float64  `json:"opening_balance"`
	TotalProduction *float64  `json:"total_production"`
	TotalDispatched *float64  `json:"total_dispatched"`
}

var inventoryRules = []rule[InventorySummary]{
	{
		field:   "closing_balance",
		message: "must equal opening_balance + total_production - total_dispatched within 0.01",
		holds: func(s InventorySummary) bool {
			return BalanceReconciles(s.OpeningBalance, s.TotalProduction, s.TotalDispatched, s.ClosingBalance)
		},
	},
}

// ValidateCreateInventorySummary checks the input and returns the summary
// with its closing balance derived and CalculatedAt set to calculatedAt.
func ValidateCreateInventorySummary(in NewInventorySummary, calculatedAt time.Time) (InventorySummary, error) {
	var issues opsledger.Issues
	out := InventorySummary{
		MaterialID:  requiredUUID(&issues, "material_id", in.MaterialID),
		SummaryDate: requiredDate(&issues, "summary_date", in.SummaryDate),
	}
	if in.OpeningBalance == nil {
		issues.Add("opening_balance", "is required")
	} else if finite(&issues, "opening_balance", *in.OpeningBalance) {
		out.OpeningBalance = *in.OpeningBalance
	}
	nonNegative(&issues, "total_production", in.TotalProduction)
	nonNegative(&issues, "total_dispatched", in.TotalDispatched)
	if err := issues.Err(); err != nil {
		return InventorySummary{}, err
	}

	out.TotalProduction = *in.TotalProduction
	out.TotalDispatched = *in.TotalDispatched
	out.ClosingBalance = ClosingBalance(out.OpeningBalance, out.TotalProduction, out.TotalDispatched)
	out.CalculatedAt = calculatedAt
	return out, nil
}

// ValidateInventorySummary checks a complete summary, including the balance
// reconciliation.
func ValidateInventorySummary(s InventorySummary) error {
	var issues opsledger.Issues
	requiredUUID(&issues, "material_id", s.MaterialID)
	requiredDate(&issues, "summary_date", s.SummaryDate)
	finite(&issues, "opening_balance", s.OpeningBalance)
	nonNegative(&issues, "total_production", &s.TotalProduction)
	nonNegative(&issues, "total_dispatched", &s.TotalDispatched)
	finite(&issues, "closing_balance", s.ClosingBalance)
	check(s, inventoryRules, &issues)
	return issues.Err()
}

func (s InventorySummary) values() opsledger.Values {
	return opsledger.Values{}.
		Set("material_id", s.MaterialID).
		Set("summary_date", s.SummaryDate).
		Set("opening_balance", s.OpeningBalance).
		Set("total_production", s.TotalProduction).
		Set("total_dispatched", s.TotalDispatched).
		Set("closing_balance", s.ClosingBalance).
		Set("calculated_at", s.CalculatedAt)
}

// RecordInventorySummary validates and inserts a summary. A second summary
// for the same material and day fails with a duplicate QueryError.
func (s *Service) RecordInventorySummary(ctx context.Context, in NewInventorySummary) (*InventorySummary, error) {
	summary, err := ValidateCreateInventorySummary(in, s.now().UTC())
	if err != nil {
		return nil, s.rejected("inventory", err)
	}

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*InventorySummary, error) {
		created, err := insertReturning[InventorySummary](ctx, tx, tableInventory, summary.values())
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableInventory, opsledger.AuditInsert, created.ID, nil, created); err != nil {
			return nil, err
		}
		return created, nil
	})
}

// ListInventory returns one page of summaries, newest first.
func (s *Service) ListInventory(ctx context.Context, filter InventoryFilter, page PageParams) (*opsledger.Page[InventorySummary], error) {
	f, err := ValidateInventoryFilter(filter)
	if err != nil {
		return nil, err
	}
	p, err := ValidatePageParams(page)
	if err != nil {
		return nil, err
	}
	q, err := f.pageQuery()
	if err != nil {
		return nil, err
	}
	return opsledger.PaginateInto[InventorySummary](ctx, s.db, q, p.Page, p.Limit)
}

// rollupSQL totals one day per active material. The opening balance is the
// closing balance of the latest earlier summary, or 0.
const rollupSQL = `SELECT m.material_id,
       COALESCE((SELECT s.closing_balance FROM inventory_summary s
                 WHERE s.material_id = m.material_id AND s.summary_date < $1
                 ORDER BY s.summary_date DESC LIMIT 1), 0) AS opening_balance,
       COALESCE((SELECT SUM(p.quantity_tons) FROM production_daily p
                 WHERE p.material_id = m.material_id AND p.production_date = $1), 0) AS total_production,
       COALESCE((SELECT SUM(d.net_weight_tons) FROM dispatch_transactions d
                 WHERE d.material_id = m.material_id AND d.dispatch_date = $1), 0) AS total_dispatched
FROM materials m
WHERE m.is_active
ORDER BY m.material_code`

type rollupRow struct {
	MaterialID      string  `bun:"material_id"`
	OpeningBalance  float64 `bun:"opening_balance"`
	TotalProduction float64 `bun:"total_production"`
	TotalDispatched float64 `bun:"total_dispatched"`
}

// RollupInventory computes the summary of day for every active material and
// writes it, replacing a summary already recorded for that day.
func (s *Service) RollupInventory(ctx context.Context, day time.Time) ([]InventorySummary, error) {
	var issues opsledger.Issues
	day = requiredDate(&issues, "summary_date", day)
	if err := issues.Err(); err != nil {
		return nil, s.rejected("inventory", err)
	}
	calculatedAt := s.now().UTC()

	out, err := opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) ([]InventorySummary, error) {
		rows, err := opsledger.QueryAll[rollupRow](ctx, tx, opsledger.NewStatement(rollupSQL, day))
		if err != nil {
			return nil, err
		}

		out := make([]InventorySummary, 0, len(rows))
		for _, r := range rows {
			summary := InventorySummary{
				MaterialID:      r.MaterialID,
				SummaryDate:     day,
				OpeningBalance:  r.OpeningBalance,
				TotalProduction: r.TotalProduction,
				TotalDispatched: r.TotalDispatched,
				ClosingBalance:  ClosingBalance(r.OpeningBalance, r.TotalProduction, r.TotalDispatched),
				CalculatedAt:    calculatedAt,
			}
			if err := ValidateInventorySummary(summary); err != nil {
				return nil, err
			}
			written, err := s.writeSummary(ctx, tx, summary)
			if err != nil {
				return nil, err
			}
			out = append(out, *written)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inventory rolled up",
		zap.Time("date", day),
		zap.Int("materials", len(out)),
	)
	return out, nil
}

// writeSummary inserts summary or updates the one recorded for the same
// material and day.
func (s *Service) writeSummary(ctx context.Context, tx *opsledger.Tx, summary InventorySummary) (*InventorySummary, error) {
	stmt, err := opsledger.Select(tableInventory).
		Where("material_id = $1 AND summary_date = $2", summary.MaterialID, summary.SummaryDate).
		ForUpdate().
		Build()
	if err != nil {
		return nil, err
	}
	existing, err := opsledger.QueryFirst[InventorySummary](ctx, tx, stmt)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		created, err := insertReturning[InventorySummary](ctx, tx, tableInventory, summary.values())
		if err != nil {
			return nil, err
		}
		return created, s.audit(ctx, tx, tableInventory, opsledger.AuditInsert, created.ID, nil, created)
	}

	values := opsledger.Values{}.
		Set("opening_balance", summary.OpeningBalance).
		Set("total_production", summary.TotalProduction).
		Set("total_dispatched", summary.TotalDispatched).
		Set("closing_balance", summary.ClosingBalance).
		Set("calculated_at", summary.CalculatedAt)
	updated, err := updateReturning[InventorySummary](ctx, tx, tableInventory, "inventory_id", existing.ID, values)
	if err != nil {
		return nil, err
	}
	return updated, s.audit(ctx, tx, tableInventory, opsledger.AuditUpdate, existing.ID, existing, updated)
}
