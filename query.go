package opsledger

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Statement is SQL text with its ordered positional arguments.
type Statement struct {
	Text string
	Args []any
}

// NewStatement returns a statement for hand-written SQL.
func NewStatement(text string, args ...any) Statement {
	return Statement{Text: text, Args: args}
}

// ColumnValue pairs a column with the value bound to it.
type ColumnValue struct {
	Column string
	Value  any
}

// Values is an ordered list of column values. Order is preserved in the
// generated column list and argument list.
type Values []ColumnValue

// Set returns v with column appended.
func (v Values) Set(column string, value any) Values {
	return append(v, ColumnValue{Column: column, Value: value})
}

// SetIf appends column only when ok is true.
func (v Values) SetIf(ok bool, column string, value any) Values {
	if !ok {
		return v
	}
	return v.Set(column, value)
}

// Columns returns the column names in order.
func (v Values) Columns() []string {
	cols := make([]string, len(v))
	for i, cv := range v {
		cols[i] = cv.Column
	}
	return cols
}

// Args returns the values in order.
func (v Values) Args() []any {
	args := make([]any, len(v))
	for i, cv := range v {
		args[i] = cv.Value
	}
	return args
}

// ValuesFromMap builds Values from a map, ordering columns by name.
func ValuesFromMap(m map[string]any) Values {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	v := make(Values, 0, len(keys))
	for _, k := range keys {
		v = v.Set(k, m[k])
	}
	return v
}

// Placeholder returns the n-th positional placeholder ("$n").
func Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func checkIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: invalid %s name %q", ErrInvalidStatement, kind, name)
	}
	return nil
}

func checkValues(op string, values Values) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: %s needs at least one column", ErrInvalidStatement, op)
	}
	seen := make(map[string]struct{}, len(values))
	for _, cv := range values {
		if err := checkIdent("column", cv.Column); err != nil {
			return err
		}
		if _, dup := seen[cv.Column]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidStatement, cv.Column)
		}
		seen[cv.Column] = struct{}{}
	}
	return nil
}

func returningClause(returning string) string {
	if strings.TrimSpace(returning) == "" {
		return "*"
	}
	return returning
}

// BuildInsert builds INSERT INTO table (...) VALUES ($1, ...) RETURNING returning.
// An empty returning clause means "*".
func BuildInsert(table string, values Values, returning string) (Statement, error) {
	if err := checkIdent("table", table); err != nil {
		return Statement{}, err
	}
	if err := checkValues("insert", values); err != nil {
		return Statement{}, err
	}

	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = Placeholder(i + 1)
	}

	text := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		table,
		joinColumns(values.Columns()),
		joinColumns(placeholders),
		returningClause(returning),
	)
	return Statement{Text: text, Args: values.Args()}, nil
}

// BuildUpdate builds UPDATE table SET ... WHERE where RETURNING returning.
//
// SET placeholders are numbered $1..$len(values); where must number its own
// placeholders from len(values)+1 on, matching whereArgs in order. where is
// raw SQL and must never contain untrusted text.
func BuildUpdate(table string, values Values, where string, whereArgs []any, returning string) (Statement, error) {
	if err := checkIdent("table", table); err != nil {
		return Statement{}, err
	}
	if err := checkValues("update", values); err != nil {
		return Statement{}, err
	}
	if strings.TrimSpace(where) == "" {
		return Statement{}, fmt.Errorf("%w: update without a where clause", ErrInvalidStatement)
	}

	sets := make([]string, len(values))
	for i, cv := range values {
		sets[i] = cv.Column + " = " + Placeholder(i+1)
	}

	args := make([]any, 0, len(values)+len(whereArgs))
	args = append(args, values.Args()...)
	args = append(args, whereArgs...)

	text := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		table,
		joinColumns(sets),
		where,
		returningClause(returning),
	)
	return Statement{Text: text, Args: args}, nil
}

// SelectQuery builds a SELECT statement. Each method returns a modified copy.
//
//	stmt, err := opsledger.Select("materials").
//		Columns("material_id, material_code").
//		Where("category = $1", "AGGREGATE").
//		OrderBy("material_code").
//		Limit(20).
//		Offset(40).
//		Build()
type SelectQuery struct {
	table     string
	columns   string
	where     string
	args      []any
	orderBy   string
	limit     int
	hasLimit  bool
	offset    int
	hasOffset bool
	lock      string
}

// Select starts a SELECT on table.
func Select(table string) SelectQuery {
	return SelectQuery{table: table}
}

// Columns sets the raw column list (default "*").
func (q SelectQuery) Columns(columns string) SelectQuery {
	q.columns = columns
	return q
}

// Where sets the raw predicate and its arguments, numbered from $1.
func (q SelectQuery) Where(predicate string, args ...any) SelectQuery {
	q.where = predicate
	q.args = append([]any(nil), args...)
	return q
}

// OrderBy sets the raw ORDER BY expression.
func (q SelectQuery) OrderBy(expr string) SelectQuery {
	q.orderBy = expr
	return q
}

// Limit appends a parameterized LIMIT.
func (q SelectQuery) Limit(n int) SelectQuery {
	q.limit, q.hasLimit = n, true
	return q
}

// Offset appends a parameterized OFFSET.
func (q SelectQuery) Offset(n int) SelectQuery {
	q.offset, q.hasOffset = n, true
	return q
}

// ForUpdate locks the selected rows until the end of the transaction.
func (q SelectQuery) ForUpdate() SelectQuery {
	q.lock = "FOR UPDATE"
	return q
}

// ForShare takes a shared lock on the selected rows.
func (q SelectQuery) ForShare() SelectQuery {
	q.lock = "FOR SHARE"
	return q
}

// Build assembles the statement. LIMIT and OFFSET placeholders follow the
// WHERE arguments, and their values are appended to the argument list.
func (q SelectQuery) Build() (Statement, error) {
	if err := checkIdent("table", q.table); err != nil {
		return Statement{}, err
	}
	if q.hasLimit && q.limit < 0 {
		return Statement{}, fmt.Errorf("%w: negative limit %d", ErrInvalidStatement, q.limit)
	}
	if q.hasOffset && q.offset < 0 {
		return Statement{}, fmt.Errorf("%w: negative offset %d", ErrInvalidStatement, q.offset)
	}

	columns := q.columns
	if strings.TrimSpace(columns) == "" {
		columns = "*"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, q.table)
	if q.where != "" {
		b.WriteString(" WHERE " + q.where)
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY " + q.orderBy)
	}

	args := append([]any(nil), q.args...)
	if q.hasLimit {
		args = append(args, q.limit)
		b.WriteString(" LIMIT " + Placeholder(len(args)))
	}
	if q.hasOffset {
		args = append(args, q.offset)
		b.WriteString(" OFFSET " + Placeholder(len(args)))
	}
	if q.lock != "" {
		b.WriteString(" " + q.lock)
	}

	return Statement{Text: b.String(), Args: args}, nil
}
