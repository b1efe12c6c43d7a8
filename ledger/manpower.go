package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/fernandezvara/opsledger"
)

// NewManpowerRole is the input of CreateManpowerRole.
type NewManpowerRole struct {
	Code        string `json:"role_code"`
	Description string `json:"role_description"`
}

// NewManpowerAttendance is the input of RecordManpowerAttendance.
type NewManpowerAttendance struct {
	RoleID         string    `json:"role_id"`
	AttendanceDate time.Time `json:"attendance_date"`
	Headcount      *int      `json:"headcount"`
	Shift          Shift     `json:"shift"`
}

// ValidateCreateManpowerRole checks a role. Codes are stored upper case.
func ValidateCreateManpowerRole(in NewManpowerRole) (NewManpowerRole, error) {
	var issues opsledger.Issues
	out := NewManpowerRole{
		Code:        strings.ToUpper(requiredString(&issues, "role_code", in.Code, 20)),
		Description: requiredString(&issues, "role_description", in.Description, 100),
	}
	if err := issues.Err(); err != nil {
		return NewManpowerRole{}, err
	}
	return out, nil
}

// ValidateCreateManpowerAttendance checks a headcount fact.
func ValidateCreateManpowerAttendance(in NewManpowerAttendance) (NewManpowerAttendance, error) {
	var issues opsledger.Issues
	out := in
	out.RoleID = requiredUUID(&issues, "role_id", in.RoleID)
	out.AttendanceDate = requiredDate(&issues, "attendance_date", in.AttendanceDate)
	nonNegativeInt(&issues, "headcount", in.Headcount)
	oneOf(&issues, "shift", in.Shift, shifts)
	if err := issues.Err(); err != nil {
		return NewManpowerAttendance{}, err
	}
	return out, nil
}

// CreateManpowerRole validates and inserts a role.
func (s *Service) CreateManpowerRole(ctx context.Context, in NewManpowerRole) (*ManpowerRole, error) {
	r, err := ValidateCreateManpowerRole(in)
	if err != nil {
		return nil, s.rejected("manpower_role", err)
	}
	values := opsledger.Values{}.
		Set("role_code", r.Code).
		Set("role_description", r.Description)

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*ManpowerRole, error) {
		created, err := insertReturning[ManpowerRole](ctx, tx, tableManpowerRoles, values)
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableManpowerRoles, opsledger.AuditInsert, created.ID, nil, created); err != nil {
			return nil, err
		}
		return created, nil
	})
}

// RecordManpowerAttendance validates and inserts a headcount fact for an
// existing role.
func (s *Service) RecordManpowerAttendance(ctx context.Context, in NewManpowerAttendance) (*ManpowerAttendance, error) {
	a, err := ValidateCreateManpowerAttendance(in)
	if err != nil {
		return nil, s.rejected("manpower_attendance", err)
	}
	values := opsledger.Values{}.
		Set("role_id", a.RoleID).
		Set("attendance_date", a.AttendanceDate).
		Set("headcount", deref(a.Headcount)).
		Set("shift", string(a.Shift))

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*ManpowerAttendance, error) {
		stmt, err := opsledger.Select(tableManpowerRoles).Columns("role_id").Where("role_id = $1", a.RoleID).Build()
		if err != nil {
			return nil, err
		}
		role, err := tx.QueryOne(ctx, stmt)
		if err != nil {
			return nil, err
		}
		if role == nil {
			var issues opsledger.Issues
			issues.Add("role_id", "role %s does not exist", a.RoleID)
			return nil, s.rejected("manpower_attendance", issues.Err())
		}

		created, err := insertReturning[ManpowerAttendance](ctx, tx, tableManpowerAttendance, values)
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableManpowerAttendance, opsledger.AuditInsert, created.ID, nil, created); err != nil {
			return nil, err
		}
		return created, nil
	})
}
