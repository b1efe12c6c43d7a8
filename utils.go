package opsledger

import (
	"fmt"
	"strconv"
	"strings"
)

// joinColumns joins column names with commas for SQL queries.
func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

// Int64 converts a scanned column value to int64. Drivers return counts as
// int64 and NUMERIC values as text.
func Int64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	case nil:
		return 0, fmt.Errorf("opsledger: cannot convert NULL to int64")
	default:
		return 0, fmt.Errorf("opsledger: cannot convert %T to int64", v)
	}
}

// Float64 converts a scanned column value to float64.
func Float64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	case nil:
		return 0, fmt.Errorf("opsledger: cannot convert NULL to float64")
	default:
		return 0, fmt.Errorf("opsledger: cannot convert %T to float64", v)
	}
}
