package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fernandezvara/opsledger"
)

// Service records and reads ledger facts. Every write is validated before a
// statement is built and runs in one transaction with its audit row.
type Service struct {
	db        *opsledger.DB
	principal opsledger.PrincipalResolver
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPrincipalResolver sets who writes are recorded for. The default reads
// the id stored by opsledger.WithPrincipal.
func WithPrincipalResolver(r opsledger.PrincipalResolver) Option {
	return func(s *Service) {
		s.principal = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService returns a Service over db.
func NewService(db *opsledger.DB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		principal: opsledger.ContextPrincipal{},
		now:       time.Now,
		logger:    db.Logger().Named("ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the pool the service writes to.
func (s *Service) DB() *opsledger.DB {
	return s.db
}

// rejected logs a validation failure and returns err unchanged.
func (s *Service) rejected(entity string, err error) error {
	var ve *opsledger.ValidationError
	if errors.As(err, &ve) {
		s.logger.Debug("ledger input rejected",
			zap.String("entity", entity),
			zap.Any("issues", ve.Fields()),
		)
	}
	return err
}

func (s *Service) recorder(ctx context.Context, given *string) *string {
	if given != nil {
		return given
	}
	return s.principal.PrincipalID(ctx)
}

func (s *Service) audit(ctx context.Context, tx *opsledger.Tx, table string, op opsledger.AuditOperation, id string, oldValues, newValues any) error {
	return opsledger.Audit(ctx, tx, opsledger.AuditEntry{
		Table:     table,
		Operation: op,
		RecordID:  id,
		OldValues: oldValues,
		NewValues: newValues,
		ChangedBy: s.principal.PrincipalID(ctx),
	})
}

func insertReturning[T any](ctx context.Context, q opsledger.Querier, table string, values opsledger.Values) (*T, error) {
	stmt, err := opsledger.BuildInsert(table, values, "*")
	if err != nil {
		return nil, err
	}
	row, err := opsledger.QueryFirst[T](ctx, q, stmt)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("ledger: insert into %s returned no row", table)
	}
	return row, nil
}

func updateReturning[T any](ctx context.Context, q opsledger.Querier, table, idColumn, id string, values opsledger.Values) (*T, error) {
	where := idColumn + " = " + opsledger.Placeholder(len(values)+1)
	stmt, err := opsledger.BuildUpdate(table, values, where, []any{id}, "*")
	if err != nil {
		return nil, err
	}
	row, err := opsledger.QueryFirst[T](ctx, q, stmt)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, opsledger.NotFound("Update", table, id)
	}
	return row, nil
}

// lockByID reads one row and locks it for the rest of the transaction.
func lockByID[T any](ctx context.Context, tx *opsledger.Tx, table, idColumn, id string) (*T, error) {
	stmt, err := opsledger.Select(table).Where(idColumn+" = $1", id).ForUpdate().Build()
	if err != nil {
		return nil, err
	}
	row, err := opsledger.QueryFirst[T](ctx, tx, stmt)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, opsledger.NotFound("Update", table, id)
	}
	return row, nil
}

func getByID[T any](ctx context.Context, q opsledger.Querier, table, idColumn, id string) (*T, error) {
	stmt, err := opsledger.Select(table).Where(idColumn+" = $1", id).Build()
	if err != nil {
		return nil, err
	}
	row, err := opsledger.QueryFirst[T](ctx, q, stmt)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, opsledger.NotFound("Get", table, id)
	}
	return row, nil
}

// checkID validates a path identifier.
func checkID(field, id string) (string, error) {
	var issues opsledger.Issues
	id = requiredUUID(&issues, field, id)
	return id, issues.Err()
}

// activeMaterials records an issue on fields[i] for every ids[i] that is not
// an active material. Each distinct id is read once.
func activeMaterials(ctx context.Context, q opsledger.Querier, fields, ids []string, issues *opsledger.Issues) error {
	problems := make(map[string]string, len(ids))
	for i, id := range ids {
		problem, ok := problems[id]
		if !ok {
			var err error
			if problem, err = materialProblem(ctx, q, id); err != nil {
				return err
			}
			problems[id] = problem
		}
		if problem != "" {
			issues.Add(fields[i], "%s", problem)
		}
	}
	return nil
}

func materialProblem(ctx context.Context, q opsledger.Querier, id string) (string, error) {
	stmt, err := opsledger.Select(tableMaterials).
		Columns("is_active").
		Where("material_id = $1", id).
		ForShare().
		Build()
	if err != nil {
		return "", err
	}
	row, err := q.QueryOne(ctx, stmt)
	if err != nil {
		return "", err
	}
	if row == nil {
		return fmt.Sprintf("material %s does not exist", id), nil
	}
	if active, _ := row["is_active"].(bool); !active {
		return fmt.Sprintf("material %s is not active", id), nil
	}
	return "", nil
}
