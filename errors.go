package opsledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/fernandezvara/opsledger/hooks"
)

// ErrorCode represents a database error classification
type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeForeignKey       ErrorCode = "FOREIGN_KEY"
	CodeCheckViolation   ErrorCode = "CHECK_VIOLATION"
	CodeNotNullViolation ErrorCode = "NOT_NULL"
	CodeInvalidStatement ErrorCode = "INVALID_STATEMENT"
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeSerialization    ErrorCode = "SERIALIZATION"
	CodeDeadlock         ErrorCode = "DEADLOCK"
	CodeUnknown          ErrorCode = "UNKNOWN"
)

// Sentinel errors for quick checks
var (
	ErrNotFound          = errors.New("opsledger: record not found")
	ErrDuplicate         = errors.New("opsledger: duplicate key violation")
	ErrForeignKey        = errors.New("opsledger: foreign key violation")
	ErrCheckViolation    = errors.New("opsledger: check constraint violation")
	ErrNotNullViolation  = errors.New("opsledger: not null violation")
	ErrInvalidStatement  = errors.New("opsledger: invalid statement")
	ErrConnection        = errors.New("opsledger: connection failed")
	ErrTimeout           = errors.New("opsledger: operation timeout")
	ErrCanceled          = errors.New("opsledger: operation canceled")
	ErrSerialization     = errors.New("opsledger: serialization failure")
	ErrDeadlock          = errors.New("opsledger: deadlock detected")
	ErrValidation        = errors.New("opsledger: validation failed")
	ErrConfiguration     = errors.New("opsledger: invalid configuration")
	ErrPoolClosed        = errors.New("opsledger: pool is not open")
	ErrNestedTransaction = errors.New("opsledger: nested transactions are not supported")
)

// ConfigurationError reports a missing or invalid configuration field.
// It is fatal at startup.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("opsledger: configuration %s %s", e.Field, e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Issue is one violated rule, addressed by field path (e.g. "records.2.quantity_tons").
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every violated rule of a rejected input.
type ValidationError struct {
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.Field + ": " + is.Message
	}
	return "opsledger: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Fields returns the issues as a field-to-message mapping. Messages for the
// same field are joined with "; ".
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Issues))
	for _, is := range e.Issues {
		if prev, ok := out[is.Field]; ok {
			out[is.Field] = prev + "; " + is.Message
			continue
		}
		out[is.Field] = is.Message
	}
	return out
}

// Has reports whether field has at least one issue.
func (e *ValidationError) Has(field string) bool {
	for _, is := range e.Issues {
		if is.Field == field {
			return true
		}
	}
	return false
}

// Issues accumulates validation issues. The zero value is ready to use.
type Issues []Issue

// Add records a violation of field.
func (is *Issues) Add(field, format string, args ...any) {
	*is = append(*is, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge appends other's issues with prefix prepended to each field path.
func (is *Issues) Merge(prefix string, other Issues) {
	for _, o := range other {
		field := o.Field
		if prefix != "" {
			field = prefix + "." + field
		}
		*is = append(*is, Issue{Field: field, Message: o.Message})
	}
}

// Err returns a *ValidationError, or nil when no issue was recorded.
func (is Issues) Err() error {
	if len(is) == 0 {
		return nil
	}
	return &ValidationError{Issues: append([]Issue(nil), is...)}
}

// QueryError is the storage engine's rejection or failure of a statement.
type QueryError struct {
	Code       ErrorCode // Error classification
	SQLState   string    // Engine error code (SQLSTATE) when known
	Message    string    // Human-readable message
	Op         string    // Operation that failed (e.g., "Exec", "Transaction.Commit")
	Table      string    // Table name if known
	Column     string    // Column name if known
	Constraint string    // Constraint name if applicable
	Detail     string    // Additional detail from PostgreSQL
	Hint       string    // Hint from PostgreSQL
	Query      string    // Statement preview
	Cause      error     // Underlying error
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("opsledger: %s", e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("opsledger.%s: %s", e.Op, e.Message)
	}
	if e.SQLState != "" {
		msg += fmt.Sprintf(" (sqlstate: %s)", e.SQLState)
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" (table: %s)", e.Table)
	}
	if e.Constraint != "" {
		msg += fmt.Sprintf(" (constraint: %s)", e.Constraint)
	}
	return msg
}

// NotFound returns a NOT_FOUND QueryError for a lookup by id in table.
func NotFound(op, table, id string) error {
	return &QueryError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", table, id),
		Op:      op,
		Table:   table,
		Cause:   sql.ErrNoRows,
	}
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for sentinel error matching
func (e *QueryError) Is(target error) bool {
	switch e.Code {
	case CodeNotFound:
		return target == ErrNotFound
	case CodeDuplicate:
		return target == ErrDuplicate
	case CodeForeignKey:
		return target == ErrForeignKey
	case CodeCheckViolation:
		return target == ErrCheckViolation
	case CodeNotNullViolation:
		return target == ErrNotNullViolation
	case CodeInvalidStatement:
		return target == ErrInvalidStatement
	case CodeConnectionFailed:
		return target == ErrConnection
	case CodeTimeout:
		return target == ErrTimeout
	case CodeCanceled:
		return target == ErrCanceled
	case CodeSerialization:
		return target == ErrSerialization
	case CodeDeadlock:
		return target == ErrDeadlock
	}
	return false
}

// TransactionError reports a failure of the transaction machinery itself
// (acquiring the connection, BEGIN or COMMIT). Errors returned by a unit of
// work are never wrapped in it.
type TransactionError struct {
	Stage string // "acquire", "begin" or "commit"
	Cause error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("opsledger: transaction %s failed: %v", e.Stage, e.Cause)
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

// classify converts a raw driver error into a *QueryError. Errors already
// classified, validation errors and nil pass through unchanged.
func classify(err error, op, query string) error {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}

	preview := hooks.Preview(query, hooks.PreviewLength)
	table := hooks.TableName(query)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromSQLState(pgErr.Code, pgErr.Message, op, preview, &QueryError{
			Table:      firstNonEmpty(pgErr.TableName, table),
			Column:     pgErr.ColumnName,
			Constraint: pgErr.ConstraintName,
			Detail:     pgErr.Detail,
			Hint:       pgErr.Hint,
			Cause:      err,
		})
	}

	var bunErr pgdriver.Error
	if errors.As(err, &bunErr) {
		return fromSQLState(bunErr.Field('C'), bunErr.Field('M'), op, preview, &QueryError{
			Table:      firstNonEmpty(bunErr.Field('t'), table),
			Column:     bunErr.Field('c'),
			Constraint: bunErr.Field('n'),
			Detail:     bunErr.Field('D'),
			Hint:       bunErr.Field('H'),
			Cause:      err,
		})
	}

	e := &QueryError{Op: op, Table: table, Query: preview, Cause: err}
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		e.Code, e.Message = CodeNotFound, "record not found"
	case errors.Is(err, context.DeadlineExceeded):
		e.Code, e.Message = CodeTimeout, "operation timed out"
	case errors.Is(err, context.Canceled):
		e.Code, e.Message = CodeCanceled, "operation canceled"
	case errors.As(err, &connErr), errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		e.Code, e.Message = CodeConnectionFailed, "database connection failed"
	default:
		e.Code, e.Message = CodeUnknown, err.Error()
	}
	return e
}

// fromSQLState fills e from a PostgreSQL SQLSTATE.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
func fromSQLState(state, message, op, preview string, e *QueryError) *QueryError {
	e.SQLState = state
	e.Op = op
	e.Query = preview

	switch {
	case state == "23505":
		e.Code, e.Message = CodeDuplicate, "duplicate key value violates unique constraint"
	case state == "23503":
		e.Code, e.Message = CodeForeignKey, "foreign key constraint violation"
	case state == "23502":
		e.Code, e.Message = CodeNotNullViolation, "null value in column violates not-null constraint"
	case state == "23514":
		e.Code, e.Message = CodeCheckViolation, "check constraint violation"
	case state == "40001":
		e.Code, e.Message = CodeSerialization, "serialization failure, retry transaction"
	case state == "40P01":
		e.Code, e.Message = CodeDeadlock, "deadlock detected"
	case state == "57014":
		e.Code, e.Message = CodeTimeout, "query was cancelled due to timeout"
	case strings.HasPrefix(state, "08"):
		e.Code, e.Message = CodeConnectionFailed, "database connection failed"
	case strings.HasPrefix(state, "42"), strings.HasPrefix(state, "22"):
		e.Code, e.Message = CodeInvalidStatement, message
	default:
		e.Code, e.Message = CodeUnknown, message
	}
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate checks if error is a duplicate key error
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsForeignKey checks if error is a foreign key error
func IsForeignKey(err error) bool {
	return errors.Is(err, ErrForeignKey)
}

// IsCheckViolation checks if error is a check constraint error
func IsCheckViolation(err error) bool {
	return errors.Is(err, ErrCheckViolation)
}

// IsConnection checks if error is a connection error
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsTimeout checks if error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsValidation checks if error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRetryable reports whether a caller may retry the failed unit of work
// (serialization failure or deadlock). The core never retries by itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSerialization) || errors.Is(err, ErrDeadlock)
}

// GetErrorCode extracts the error code if it's a query error
func GetErrorCode(err error) (ErrorCode, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code, true
	}
	return "", false
}

// GetSQLState extracts the engine error code if available
func GetSQLState(err error) (string, bool) {
	var qe *QueryError
	if errors.As(err, &qe) && qe.SQLState != "" {
		return qe.SQLState, true
	}
	return "", false
}

// GetConstraint extracts the constraint name if available
func GetConstraint(err error) (string, bool) {
	var qe *QueryError
	if errors.As(err, &qe) && qe.Constraint != "" {
		return qe.Constraint, true
	}
	return "", false
}

// GetDetail extracts the error detail if available
func GetDetail(err error) (string, bool) {
	var qe *QueryError
	if errors.As(err, &qe) && qe.Detail != "" {
		return qe.Detail, true
	}
	return "", false
}

// QueryResult wraps a bun-level result with error context for chainable error handling.
type QueryResult[T any] struct {
	result T
	err    error
	op     string
}

// Err returns the classified error, or nil.
func (qr *QueryResult[T]) Err() error {
	return classify(qr.err, qr.op, "")
}

// Unwrap returns the result and the classified error.
func (qr *QueryResult[T]) Unwrap() (T, error) {
	return qr.result, classify(qr.err, qr.op, "")
}

// WithErr wraps a result and error with operation context.
//
// Usage:
//
//	res, err := opsledger.WithErr(db.Bun().NewInsert().Model(&row).Exec(ctx)).Op("report.Save").Unwrap()
func WithErr[T any](result T, err error) *QueryResult[T] {
	return &QueryResult[T]{result: result, err: err}
}

// WithErr1 is WithErr for calls that return only an error, such as Scan.
//
//	err := opsledger.WithErr1(q.Scan(ctx, &rows)).Op("report.CurrentInventory").Err()
func WithErr1(err error) *QueryResult[struct{}] {
	return &QueryResult[struct{}]{err: err}
}

// Op names the operation for error context.
func (qr *QueryResult[T]) Op(op string) *QueryResult[T] {
	qr.op = op
	return qr
}
