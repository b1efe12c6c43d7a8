// Package hooks provides observability hooks for opsledger statement execution.
package hooks

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// PreviewLength is the number of statement bytes kept in logs and spans.
const PreviewLength = 100

// QueryEvent describes one statement run by the execution layer or the
// transaction coordinator.
type QueryEvent struct {
	Op        string // caller operation, e.g. "Exec" or "Transaction.Commit"
	Query     string
	StartTime time.Time
	Rows      int64
	Err       error
}

// Duration returns the time elapsed since the event started.
func (e *QueryEvent) Duration() time.Duration {
	return time.Since(e.StartTime)
}

// QueryHook observes statement execution. Hooks never change control flow.
type QueryHook interface {
	BeforeQuery(ctx context.Context, event *QueryEvent) context.Context
	AfterQuery(ctx context.Context, event *QueryEvent)
}

// Preview truncates a statement to at most n bytes, on a rune boundary, for
// diagnostics.
func Preview(query string, n int) string {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) <= n {
		return query
	}
	for n > 0 && !utf8.RuneStart(query[n]) {
		n--
	}
	return query[:n] + "..."
}

// OperationType extracts the operation type from a query
func OperationType(query string) string {
	query = strings.TrimSpace(strings.ToUpper(query))
	switch {
	case strings.HasPrefix(query, "SELECT"), strings.HasPrefix(query, "WITH"):
		return "select"
	case strings.HasPrefix(query, "INSERT"):
		return "insert"
	case strings.HasPrefix(query, "UPDATE"):
		return "update"
	case strings.HasPrefix(query, "DELETE"):
		return "delete"
	case strings.HasPrefix(query, "BEGIN"):
		return "begin"
	case strings.HasPrefix(query, "COMMIT"):
		return "commit"
	case strings.HasPrefix(query, "ROLLBACK"):
		return "rollback"
	default:
		return "other"
	}
}

var tablePattern = regexp.MustCompile(`(?i)\b(?:INSERT\s+INTO|UPDATE|FROM)\s+("?[A-Za-z_][A-Za-z0-9_.]*"?)`)

// TableName returns the first table a statement targets, or "" when it
// cannot be found.
func TableName(query string) string {
	m := tablePattern.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], `"`)
}
