package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/fernandezvara/opsledger"
)

// MaxBulkRecords bounds a bulk request.
const MaxBulkRecords = 100

// NewProduction is the input of RecordProduction.
type NewProduction struct {
	MaterialID     string    `json:"material_id"`
	ProductionDate time.Time `json:"production_date"`
	QuantityTons   *float64  `json:"quantity_tons"`
	Shift          Shift     `json:"shift"`
	OperationCode  string    `json:"operation_code"`
	RecordedBy     *string   `json:"recorded_by"`
}

// ProductionPatch is the input of UpdateProduction.
type ProductionPatch struct {
	MaterialID     *string    `json:"material_id"`
	ProductionDate *time.Time `json:"production_date"`
	QuantityTons   *float64   `json:"quantity_tons"`
	Shift          *Shift     `json:"shift"`
	OperationCode  *string    `json:"operation_code"`
}

// ValidateCreateProduction checks a production record and applies defaults.
func ValidateCreateProduction(in NewProduction) (NewProduction, error) {
	var issues opsledger.Issues
	out := validateProduction(&issues, in)
	if err := issues.Err(); err != nil {
		return NewProduction{}, err
	}
	return out, nil
}

func validateProduction(issues *opsledger.Issues, in NewProduction) NewProduction {
	out := in
	out.MaterialID = requiredUUID(issues, "material_id", in.MaterialID)
	out.ProductionDate = requiredDate(issues, "production_date", in.ProductionDate)
	nonNegative(issues, "quantity_tons", in.QuantityTons)
	oneOf(issues, "shift", in.Shift, shifts)
	out.OperationCode = strings.TrimSpace(in.OperationCode)
	if out.OperationCode == "" {
		out.OperationCode = DefaultProductionOperationCode
	} else {
		requiredString(issues, "operation_code", out.OperationCode, 20)
	}
	out.RecordedBy = optionalUUID(issues, "recorded_by", in.RecordedBy)
	return out
}

// ValidateProductionBulk checks 1 to MaxBulkRecords production records.
// Issues are reported as records.<index>.<field>.
func ValidateProductionBulk(records []NewProduction) ([]NewProduction, error) {
	var issues opsledger.Issues
	bulkSize(&issues, len(records))
	out := make([]NewProduction, len(records))
	for i, r := range records {
		var rec opsledger.Issues
		out[i] = validateProduction(&rec, r)
		issues.Merge(recordPath(i), rec)
	}
	if err := issues.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func bulkSize(issues *opsledger.Issues, n int) {
	if n < 1 || n > MaxBulkRecords {
		issues.Add("records", "must contain between 1 and %d records", MaxBulkRecords)
	}
}

// ValidateUpdateProduction checks the fields present in a patch.
func ValidateUpdateProduction(in ProductionPatch) (ProductionPatch, error) {
	var issues opsledger.Issues
	out := in
	if in == (ProductionPatch{}) {
		issues.Add("fields", "at least one field must be provided")
	}
	out.MaterialID = optionalUUID(&issues, "material_id", in.MaterialID)
	if in.ProductionDate != nil {
		d := requiredDate(&issues, "production_date", *in.ProductionDate)
		out.ProductionDate = &d
	}
	if in.QuantityTons != nil {
		nonNegative(&issues, "quantity_tons", in.QuantityTons)
	}
	if in.Shift != nil {
		oneOf(&issues, "shift", *in.Shift, shifts)
	}
	out.OperationCode = optionalString(&issues, "operation_code", in.OperationCode, 20)
	if err := issues.Err(); err != nil {
		return ProductionPatch{}, err
	}
	return out, nil
}

func (in NewProduction) values() opsledger.Values {
	return opsledger.Values{}.
		Set("material_id", in.MaterialID).
		Set("production_date", in.ProductionDate).
		Set("quantity_tons", deref(in.QuantityTons)).
		Set("shift", string(in.Shift)).
		Set("operation_code", in.OperationCode).
		Set("recorded_by", opsledger.NullString(in.RecordedBy))
}

func (p ProductionPatch) values() opsledger.Values {
	return opsledger.Values{}.
		SetIf(p.MaterialID != nil, "material_id", deref(p.MaterialID)).
		SetIf(p.ProductionDate != nil, "production_date", deref(p.ProductionDate)).
		SetIf(p.QuantityTons != nil, "quantity_tons", deref(p.QuantityTons)).
		SetIf(p.Shift != nil, "shift", string(deref(p.Shift))).
		SetIf(p.OperationCode != nil, "operation_code", deref(p.OperationCode))
}

// RecordProduction validates and inserts one production record. The material
// must exist and be active.
func (s *Service) RecordProduction(ctx context.Context, in NewProduction) (*ProductionDaily, error) {
	created, err := s.RecordProductionBulk(ctx, []NewProduction{in})
	if err != nil {
		return nil, unwrapRecordPath(err)
	}
	return &created[0], nil
}

// RecordProductionBulk inserts every record or none.
func (s *Service) RecordProductionBulk(ctx context.Context, records []NewProduction) ([]ProductionDaily, error) {
	valid, err := ValidateProductionBulk(records)
	if err != nil {
		return nil, s.rejected("production", err)
	}

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) ([]ProductionDaily, error) {
		fields := make([]string, len(valid))
		ids := make([]string, len(valid))
		for i, r := range valid {
			fields[i], ids[i] = recordPath(i)+".material_id", r.MaterialID
		}
		var issues opsledger.Issues
		if err := activeMaterials(ctx, tx, fields, ids, &issues); err != nil {
			return nil, err
		}
		if err := issues.Err(); err != nil {
			return nil, s.rejected("production", err)
		}

		out := make([]ProductionDaily, 0, len(valid))
		for _, r := range valid {
			r.RecordedBy = s.recorder(ctx, r.RecordedBy)
			created, err := insertReturning[ProductionDaily](ctx, tx, tableProduction, r.values())
			if err != nil {
				return nil, err
			}
			if err := s.audit(ctx, tx, tableProduction, opsledger.AuditInsert, created.ID, nil, created); err != nil {
				return nil, err
			}
			out = append(out, *created)
		}
		return out, nil
	})
}

// UpdateProduction applies patch to a production record.
func (s *Service) UpdateProduction(ctx context.Context, id string, patch ProductionPatch) (*ProductionDaily, error) {
	id, err := checkID("production_id", id)
	if err != nil {
		return nil, s.rejected("production", err)
	}
	p, err := ValidateUpdateProduction(patch)
	if err != nil {
		return nil, s.rejected("production", err)
	}

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*ProductionDaily, error) {
		current, err := lockByID[ProductionDaily](ctx, tx, tableProduction, "production_id", id)
		if err != nil {
			return nil, err
		}
		if p.MaterialID != nil && *p.MaterialID != current.MaterialID {
			var issues opsledger.Issues
			if err := activeMaterials(ctx, tx, []string{"material_id"}, []string{*p.MaterialID}, &issues); err != nil {
				return nil, err
			}
			if err := issues.Err(); err != nil {
				return nil, s.rejected("production", err)
			}
		}

		updated, err := updateReturning[ProductionDaily](ctx, tx, tableProduction, "production_id", id, p.values())
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableProduction, opsledger.AuditUpdate, id, current, updated); err != nil {
			return nil, err
		}
		return updated, nil
	})
}

// ListProduction returns one page of production records, newest first.
func (s *Service) ListProduction(ctx context.Context, filter ProductionFilter, page PageParams) (*opsledger.Page[ProductionDaily], error) {
	f, err := ValidateProductionFilter(filter)
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
	return opsledger.PaginateInto[ProductionDaily](ctx, s.db, q, p.Page, p.Limit)
}

// unwrapRecordPath strips the "records.0." prefix from the issues of a
// single-record write.
func unwrapRecordPath(err error) error {
	ve, ok := err.(*opsledger.ValidationError)
	if !ok {
		return err
	}
	prefix := recordPath(0) + "."
	issues := make([]opsledger.Issue, len(ve.Issues))
	for i, is := range ve.Issues {
		is.Field = strings.TrimPrefix(is.Field, prefix)
		issues[i] = is
	}
	return &opsledger.ValidationError{Issues: issues}
}
