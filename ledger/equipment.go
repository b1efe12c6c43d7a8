package ledger

import (
	"context"
	"time"

	"github.com/fernandezvara/opsledger"
)

// NewEquipment is the input of CreateEquipment.
type NewEquipment struct {
	Type      string  `json:"equipment_type"`
	Name      string  `json:"equipment_name"`
	Location  *string `json:"location"`
	UnitCount *int    `json:"unit_count"`
	IsActive  *bool   `json:"is_active"`
}

// EquipmentPatch is the input of UpdateEquipment.
type EquipmentPatch struct {
	Type      *string `json:"equipment_type"`
	Name      *string `json:"equipment_name"`
	Location  *string `json:"location"`
	UnitCount *int    `json:"unit_count"`
	IsActive  *bool   `json:"is_active"`
}

// NewEquipmentAttendance is the input of RecordEquipmentAttendance.
type NewEquipmentAttendance struct {
	EquipmentID      string    `json:"equipment_id"`
	AttendanceDate   time.Time `json:"attendance_date"`
	UnitsOperational *int      `json:"units_operational"`
	HoursOperated    *float64  `json:"hours_operated"`
	Shift            *Shift    `json:"shift"`
}

// ValidateCreateEquipment checks new equipment and applies defaults.
func ValidateCreateEquipment(in NewEquipment) (NewEquipment, error) {
	var issues opsledger.Issues
	out := in
	out.Type = requiredString(&issues, "equipment_type", in.Type, 50)
	out.Name = requiredString(&issues, "equipment_name", in.Name, 100)
	if in.Location == nil {
		loc := DefaultEquipmentLocation
		out.Location = &loc
	} else {
		out.Location = optionalString(&issues, "location", in.Location, 100)
	}
	nonNegativeInt(&issues, "unit_count", in.UnitCount)
	if in.IsActive == nil {
		active := true
		out.IsActive = &active
	}
	if err := issues.Err(); err != nil {
		return NewEquipment{}, err
	}
	return out, nil
}

// ValidateUpdateEquipment checks the fields present in a patch.
func ValidateUpdateEquipment(in EquipmentPatch) (EquipmentPatch, error) {
	var issues opsledger.Issues
	out := in
	if in == (EquipmentPatch{}) {
		issues.Add("fields", "at least one field must be provided")
	}
	out.Type = optionalString(&issues, "equipment_type", in.Type, 50)
	out.Name = optionalString(&issues, "equipment_name", in.Name, 100)
	out.Location = optionalString(&issues, "location", in.Location, 100)
	if in.UnitCount != nil {
		nonNegativeInt(&issues, "unit_count", in.UnitCount)
	}
	if err := issues.Err(); err != nil {
		return EquipmentPatch{}, err
	}
	return out, nil
}

// ValidateCreateEquipmentAttendance checks an attendance fact. The bound
// against the equipment's unit count is checked by RecordEquipmentAttendance.
func ValidateCreateEquipmentAttendance(in NewEquipmentAttendance) (NewEquipmentAttendance, error) {
	var issues opsledger.Issues
	out := in
	out.EquipmentID = requiredUUID(&issues, "equipment_id", in.EquipmentID)
	out.AttendanceDate = requiredDate(&issues, "attendance_date", in.AttendanceDate)
	nonNegativeInt(&issues, "units_operational", in.UnitsOperational)
	hours(&issues, "hours_operated", in.HoursOperated)
	if in.Shift != nil {
		oneOf(&issues, "shift", *in.Shift, shifts)
	}
	if err := issues.Err(); err != nil {
		return NewEquipmentAttendance{}, err
	}
	return out, nil
}

func (in NewEquipment) values() opsledger.Values {
	return opsledger.Values{}.
		Set("equipment_type", in.Type).
		Set("equipment_name", in.Name).
		Set("location", deref(in.Location)).
		Set("unit_count", deref(in.UnitCount)).
		Set("is_active", deref(in.IsActive))
}

func (p EquipmentPatch) values() opsledger.Values {
	return opsledger.Values{}.
		SetIf(p.Type != nil, "equipment_type", deref(p.Type)).
		SetIf(p.Name != nil, "equipment_name", deref(p.Name)).
		SetIf(p.Location != nil, "location", deref(p.Location)).
		SetIf(p.UnitCount != nil, "unit_count", deref(p.UnitCount)).
		SetIf(p.IsActive != nil, "is_active", deref(p.IsActive))
}

func (in NewEquipmentAttendance) values() opsledger.Values {
	var shift any
	if in.Shift != nil {
		shift = string(*in.Shift)
	}
	return opsledger.Values{}.
		Set("equipment_id", in.EquipmentID).
		Set("attendance_date", in.AttendanceDate).
		Set("units_operational", deref(in.UnitsOperational)).
		Set("hours_operated", in.HoursOperated).
		Set("shift", shift)
}

// CreateEquipment validates and inserts equipment.
func (s *Service) CreateEquipment(ctx context.Context, in NewEquipment) (*Equipment, error) {
	e, err := ValidateCreateEquipment(in)
	if err != nil {
		return nil, s.rejected("equipment", err)
	}

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*Equipment, error) {
		created, err := insertReturning[Equipment](ctx, tx, tableEquipment, e.values())
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableEquipment, opsledger.AuditInsert, created.ID, nil, created); err != nil {
			return nil, err
		}
		return created, nil
	})
}

// UpdateEquipment applies patch to equipment.
func (s *Service) UpdateEquipment(ctx context.Context, id string, patch EquipmentPatch) (*Equipment, error) {
	id, err := checkID("equipment_id", id)
	if err != nil {
		return nil, s.rejected("equipment", err)
	}
	p, err := ValidateUpdateEquipment(patch)
	if err != nil {
		return nil, s.rejected("equipment", err)
	}
	values := p.values().Set("updated_at", s.now().UTC())

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*Equipment, error) {
		current, err := lockByID[Equipment](ctx, tx, tableEquipment, "equipment_id", id)
		if err != nil {
			return nil, err
		}
		updated, err := updateReturning[Equipment](ctx, tx, tableEquipment, "equipment_id", id, values)
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableEquipment, opsledger.AuditUpdate, id, current, updated); err != nil {
			return nil, err
		}
		return updated, nil
	})
}

// RecordEquipmentAttendance validates and inserts an attendance fact. The
// equipment must be active and units_operational must not exceed its unit count.
func (s *Service) RecordEquipmentAttendance(ctx context.Context, in NewEquipmentAttendance) (*EquipmentAttendance, error) {
	a, err := ValidateCreateEquipmentAttendance(in)
	if err != nil {
		return nil, s.rejected("equipment_attendance", err)
	}

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*EquipmentAttendance, error) {
		stmt, err := opsledger.Select(tableEquipment).Where("equipment_id = $1", a.EquipmentID).ForShare().Build()
		if err != nil {
			return nil, err
		}
		equipment, err := opsledger.QueryFirst[Equipment](ctx, tx, stmt)
		if err != nil {
			return nil, err
		}

		var issues opsledger.Issues
		switch {
		case equipment == nil:
			issues.Add("equipment_id", "equipment %s does not exist", a.EquipmentID)
		case !equipment.IsActive:
			issues.Add("equipment_id", "equipment %s is not active", a.EquipmentID)
		case *a.UnitsOperational > equipment.UnitCount:
			issues.Add("units_operational", "must not exceed the unit count of %d", equipment.UnitCount)
		}
		if err := issues.Err(); err != nil {
			return nil, s.rejected("equipment_attendance", err)
		}

		created, err := insertReturning[EquipmentAttendance](ctx, tx, tableEquipmentAttendance, a.values())
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableEquipmentAttendance, opsledger.AuditInsert, created.ID, nil, created); err != nil {
			return nil, err
		}
		return created, nil
	})
}
