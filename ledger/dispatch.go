package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/fernandezvara/opsledger"
)

// NewDispatch is the input of RecordDispatch.
type NewDispatch struct {
	MaterialID     string    `json:"material_id"`
	DispatchDate   time.Time `json:"dispatch_date"`
	TripCount      *int      `json:"trip_count"`
	NetWeightTons  *float64  `json:"net_weight_tons"`
	WeightEntrance *float64  `json:"weight_entrance"`
	WeightExit     *float64  `json:"weight_exit"`
	OperationCode  string    `json:"operation_code"`
	RecordedBy     *string   `json:"recorded_by"`
}

// DispatchPatch is the input of UpdateDispatch.
type DispatchPatch struct {
	MaterialID     *string           `json:"material_id"`
	DispatchDate   *time.Time        `json:"dispatch_date"`
	TripCount      *int              `json:"trip_count"`
	NetWeightTons  *float64          `json:"net_weight_tons"`
	WeightEntrance Optional[float64] `json:"weight_entrance"`
	WeightExit     Optional[float64] `json:"weight_exit"`
	OperationCode  *string           `json:"operation_code"`
}

// weighbridge is the part of a dispatch the reconciliation rule reads.
type weighbridge struct {
	net, entrance, exit *float64
}

var dispatchRules = []rule[weighbridge]{
	{
		field:   "net_weight_tons",
		message: "must equal weight_entrance - weight_exit within 0.01",
		holds: func(w weighbridge) bool {
			if w.net == nil || w.entrance == nil || w.exit == nil {
				return true
			}
			return WeighbridgeReconciles(*w.entrance, *w.exit, *w.net)
		},
	},
}

// ValidateCreateDispatch checks a dispatch record and applies defaults.
func ValidateCreateDispatch(in NewDispatch) (NewDispatch, error) {
	var issues opsledger.Issues
	out := validateDispatch(&issues, in)
	if err := issues.Err(); err != nil {
		return NewDispatch{}, err
	}
	return out, nil
}

func validateDispatch(issues *opsledger.Issues, in NewDispatch) NewDispatch {
	out := in
	out.MaterialID = requiredUUID(issues, "material_id", in.MaterialID)
	out.DispatchDate = requiredDate(issues, "dispatch_date", in.DispatchDate)
	if in.TripCount == nil {
		trips := DefaultTripCount
		out.TripCount = &trips
	} else {
		tripCount(issues, *in.TripCount)
	}
	nonNegative(issues, "net_weight_tons", in.NetWeightTons)
	optionalPositive(issues, "weight_entrance", in.WeightEntrance)
	optionalPositive(issues, "weight_exit", in.WeightExit)
	out.OperationCode = strings.TrimSpace(in.OperationCode)
	if out.OperationCode == "" {
		out.OperationCode = DefaultDispatchOperationCode
	} else {
		requiredString(issues, "operation_code", out.OperationCode, 20)
	}
	out.RecordedBy = optionalUUID(issues, "recorded_by", in.RecordedBy)

	check(weighbridge{net: in.NetWeightTons, entrance: in.WeightEntrance, exit: in.WeightExit}, dispatchRules, issues)
	return out
}

func tripCount(issues *opsledger.Issues, n int) {
	if n < 1 {
		issues.Add("trip_count", "must be at least 1")
	}
}

// ValidateDispatchBulk checks 1 to MaxBulkRecords dispatch records.
func ValidateDispatchBulk(records []NewDispatch) ([]NewDispatch, error) {
	var issues opsledger.Issues
	bulkSize(&issues, len(records))
	out := make([]NewDispatch, len(records))
	for i, r := range records {
		var rec opsledger.Issues
		out[i] = validateDispatch(&rec, r)
		issues.Merge(recordPath(i), rec)
	}
	if err := issues.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateUpdateDispatch checks the fields present in a patch. The
// reconciliation rule is checked against the merged row by UpdateDispatch.
func ValidateUpdateDispatch(in DispatchPatch) (DispatchPatch, error) {
	var issues opsledger.Issues
	out := in
	if in.empty() {
		issues.Add("fields", "at least one field must be provided")
	}
	out.MaterialID = optionalUUID(&issues, "material_id", in.MaterialID)
	if in.DispatchDate != nil {
		d := requiredDate(&issues, "dispatch_date", *in.DispatchDate)
		out.DispatchDate = &d
	}
	if in.TripCount != nil {
		tripCount(&issues, *in.TripCount)
	}
	if in.NetWeightTons != nil {
		nonNegative(&issues, "net_weight_tons", in.NetWeightTons)
	}
	optionalPositive(&issues, "weight_entrance", in.WeightEntrance.Value)
	optionalPositive(&issues, "weight_exit", in.WeightExit.Value)
	out.OperationCode = optionalString(&issues, "operation_code", in.OperationCode, 20)
	if err := issues.Err(); err != nil {
		return DispatchPatch{}, err
	}
	return out, nil
}

// ValidateDispatch checks the reconciliation rule of a stored or merged dispatch.
func ValidateDispatch(d DispatchTransaction) error {
	var issues opsledger.Issues
	check(weighbridge{net: &d.NetWeightTons, entrance: d.WeightEntrance, exit: d.WeightExit}, dispatchRules, &issues)
	return issues.Err()
}

func (in NewDispatch) values() opsledger.Values {
	return opsledger.Values{}.
		Set("material_id", in.MaterialID).
		Set("dispatch_date", in.DispatchDate).
		Set("trip_count", deref(in.TripCount)).
		Set("net_weight_tons", deref(in.NetWeightTons)).
		Set("weight_entrance", in.WeightEntrance).
		Set("weight_exit", in.WeightExit).
		Set("operation_code", in.OperationCode).
		Set("recorded_by", opsledger.NullString(in.RecordedBy))
}

func (p DispatchPatch) empty() bool {
	return p.MaterialID == nil && p.DispatchDate == nil && p.TripCount == nil && p.NetWeightTons == nil &&
		!p.WeightEntrance.Set && !p.WeightExit.Set && p.OperationCode == nil
}

func (p DispatchPatch) apply(d DispatchTransaction) DispatchTransaction {
	if p.MaterialID != nil {
		d.MaterialID = *p.MaterialID
	}
	if p.DispatchDate != nil {
		d.DispatchDate = *p.DispatchDate
	}
	if p.TripCount != nil {
		d.TripCount = *p.TripCount
	}
	if p.NetWeightTons != nil {
		d.NetWeightTons = *p.NetWeightTons
	}
	d.WeightEntrance = p.WeightEntrance.apply(d.WeightEntrance)
	d.WeightExit = p.WeightExit.apply(d.WeightExit)
	if p.OperationCode != nil {
		d.OperationCode = *p.OperationCode
	}
	return d
}

func (p DispatchPatch) values() opsledger.Values {
	return opsledger.Values{}.
		SetIf(p.MaterialID != nil, "material_id", deref(p.MaterialID)).
		SetIf(p.DispatchDate != nil, "dispatch_date", deref(p.DispatchDate)).
		SetIf(p.TripCount != nil, "trip_count", deref(p.TripCount)).
		SetIf(p.NetWeightTons != nil, "net_weight_tons", deref(p.NetWeightTons)).
		SetIf(p.WeightEntrance.Set, "weight_entrance", p.WeightEntrance.Value).
		SetIf(p.WeightExit.Set, "weight_exit", p.WeightExit.Value).
		SetIf(p.OperationCode != nil, "operation_code", deref(p.OperationCode))
}

// RecordDispatch validates and inserts one dispatch record.
func (s *Service) RecordDispatch(ctx context.Context, in NewDispatch) (*DispatchTransaction, error) {
	created, err := s.RecordDispatchBulk(ctx, []NewDispatch{in})
	if err != nil {
		return nil, unwrapRecordPath(err)
	}
	return &created[0], nil
}

// RecordDispatchBulk inserts every record or none.
func (s *Service) RecordDispatchBulk(ctx context.Context, records []NewDispatch) ([]DispatchTransaction, error) {
	valid, err := ValidateDispatchBulk(records)
	if err != nil {
		return nil, s.rejected("dispatch", err)
	}

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) ([]DispatchTransaction, error) {
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
			return nil, s.rejected("dispatch", err)
		}

		out := make([]DispatchTransaction, 0, len(valid))
		for _, r := range valid {
			r.RecordedBy = s.recorder(ctx, r.RecordedBy)
			created, err := insertReturning[DispatchTransaction](ctx, tx, tableDispatch, r.values())
			if err != nil {
				return nil, err
			}
			if err := s.audit(ctx, tx, tableDispatch, opsledger.AuditInsert, created.ID, nil, created); err != nil {
				return nil, err
			}
			out = append(out, *created)
		}
		return out, nil
	})
}

// UpdateDispatch applies patch to a dispatch record. The merged weighbridge
// readings must still reconcile with the net weight.
func (s *Service) UpdateDispatch(ctx context.Context, id string, patch DispatchPatch) (*DispatchTransaction, error) {
	id, err := checkID("dispatch_id", id)
	if err != nil {
		return nil, s.rejected("dispatch", err)
	}
	p, err := ValidateUpdateDispatch(patch)
	if err != nil {
		return nil, s.rejected("dispatch", err)
	}

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*DispatchTransaction, error) {
		current, err := lockByID[DispatchTransaction](ctx, tx, tableDispatch, "dispatch_id", id)
		if err != nil {
			return nil, err
		}
		if err := ValidateDispatch(p.apply(*current)); err != nil {
			return nil, s.rejected("dispatch", err)
		}
		if p.MaterialID != nil && *p.MaterialID != current.MaterialID {
			var issues opsledger.Issues
			if err := activeMaterials(ctx, tx, []string{"material_id"}, []string{*p.MaterialID}, &issues); err != nil {
				return nil, err
			}
			if err := issues.Err(); err != nil {
				return nil, s.rejected("dispatch", err)
			}
		}

		updated, err := updateReturning[DispatchTransaction](ctx, tx, tableDispatch, "dispatch_id", id, p.values())
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableDispatch, opsledger.AuditUpdate, id, current, updated); err != nil {
			return nil, err
		}
		return updated, nil
	})
}

// ListDispatch returns one page of dispatch records, newest first.
func (s *Service) ListDispatch(ctx context.Context, filter DispatchFilter, page PageParams) (*opsledger.Page[DispatchTransaction], error) {
	f, err := ValidateDispatchFilter(filter)
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
	return opsledger.PaginateInto[DispatchTransaction](ctx, s.db, q, p.Page, p.Limit)
}
