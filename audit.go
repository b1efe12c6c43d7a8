package opsledger

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuditOperation is the kind of change recorded in the audit log.
type AuditOperation string

const (
	AuditInsert AuditOperation = "INSERT"
	AuditUpdate AuditOperation = "UPDATE"
	AuditDelete AuditOperation = "DELETE"
)

// AuditTable is the table audit entries are written to.
const AuditTable = "system_audit_log"

// AuditEntry describes one change to a ledger row.
type AuditEntry struct {
	Table     string
	Operation AuditOperation
	RecordID  string
	OldValues any     // marshalled to JSON; nil for inserts
	NewValues any     // marshalled to JSON; nil for deletes
	ChangedBy *string // nil when the system made the change
}

// Audit records entry through q. Pass the *Tx that made the change so the
// audit row commits or rolls back with it.
func Audit(ctx context.Context, q Querier, entry AuditEntry) error {
	oldValues, err := jsonValue(entry.OldValues)
	if err != nil {
		return fmt.Errorf("opsledger: audit old values: %w", err)
	}
	newValues, err := jsonValue(entry.NewValues)
	if err != nil {
		return fmt.Errorf("opsledger: audit new values: %w", err)
	}

	stmt, err := BuildInsert(AuditTable, Values{}.
		Set("table_name", entry.Table).
		Set("operation", string(entry.Operation)).
		Set("record_id", entry.RecordID).
		Set("old_values", oldValues).
		Set("new_values", newValues).
		Set("changed_by", NullString(entry.ChangedBy)),
		"audit_id",
	)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, stmt)
	return err
}

func jsonValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// NullString returns *s, or nil for a nil pointer, as a statement argument.
func NullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// PrincipalResolver supplies the id of the actor a write is recorded for.
// A nil id means the system.
type PrincipalResolver interface {
	PrincipalID(ctx context.Context) *string
}

// PrincipalFunc adapts a function to PrincipalResolver.
type PrincipalFunc func(ctx context.Context) *string

func (f PrincipalFunc) PrincipalID(ctx context.Context) *string {
	return f(ctx)
}

type principalKey struct{}

// WithPrincipal returns a context carrying the acting user's id.
func WithPrincipal(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalKey{}, userID)
}

// ContextPrincipal resolves the id stored by WithPrincipal.
type ContextPrincipal struct{}

func (ContextPrincipal) PrincipalID(ctx context.Context) *string {
	if id, ok := ctx.Value(principalKey{}).(string); ok && id != "" {
		return &id
	}
	return nil
}
