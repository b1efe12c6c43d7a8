package ledger

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fernandezvara/opsledger"
)

// ReconciliationTolerance is the absolute tolerance of every balance check.
// A difference strictly below it is accepted.
const ReconciliationTolerance = 0.01

var tolerance = decimal.NewFromFloat(ReconciliationTolerance)

// withinTolerance reports |diff| < ReconciliationTolerance, in decimal arithmetic.
func withinTolerance(diff decimal.Decimal) bool {
	return diff.Abs().LessThan(tolerance)
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func allFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Reconciles reports whether expected and actual agree within tolerance.
// Non-finite operands never reconcile.
func Reconciles(expected, actual float64) bool {
	if !allFinite(expected, actual) {
		return false
	}
	return withinTolerance(dec(expected).Sub(dec(actual)))
}

// WeighbridgeReconciles reports whether entrance - exit equals net within tolerance.
func WeighbridgeReconciles(entrance, exit, net float64) bool {
	if !allFinite(entrance, exit, net) {
		return false
	}
	return withinTolerance(dec(entrance).Sub(dec(exit)).Sub(dec(net)))
}

// BalanceReconciles reports whether opening + production - dispatched equals
// closing within tolerance.
func BalanceReconciles(opening, production, dispatched, closing float64) bool {
	if !allFinite(opening, production, dispatched, closing) {
		return false
	}
	return withinTolerance(dec(opening).Add(dec(production)).Sub(dec(dispatched)).Sub(dec(closing)))
}

// ClosingBalance returns opening + production - dispatched, or NaN when an
// operand is not finite.
func ClosingBalance(opening, production, dispatched float64) float64 {
	if !allFinite(opening, production, dispatched) {
		return math.NaN()
	}
	return dec(opening).Add(dec(production)).Sub(dec(dispatched)).InexactFloat64()
}

// rule is a cross-field invariant of T, reported on field when it does not hold.
type rule[T any] struct {
	field   string
	message string
	holds   func(T) bool
}

// check evaluates every rule in order and records each one that fails.
func check[T any](v T, rules []rule[T], issues *opsledger.Issues) {
	for _, r := range rules {
		if !r.holds(v) {
			issues.Add(r.field, "%s", r.message)
		}
	}
}

func requiredString(issues *opsledger.Issues, field, v string, maxLen int) string {
	v = strings.TrimSpace(v)
	switch n := utf8.RuneCountInString(v); {
	case n == 0:
		issues.Add(field, "is required")
	case n > maxLen:
		issues.Add(field, "must be at most %d characters", maxLen)
	}
	return v
}

func optionalString(issues *opsledger.Issues, field string, v *string, maxLen int) *string {
	if v == nil {
		return nil
	}
	s := requiredString(issues, field, *v, maxLen)
	return &s
}

func requiredUUID(issues *opsledger.Issues, field, v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		issues.Add(field, "is required")
		return v
	}
	id, err := uuid.Parse(v)
	if err != nil {
		issues.Add(field, "must be a valid UUID")
		return v
	}
	return id.String()
}

func optionalUUID(issues *opsledger.Issues, field string, v *string) *string {
	if v == nil {
		return nil
	}
	s := requiredUUID(issues, field, *v)
	return &s
}

func requiredDate(issues *opsledger.Issues, field string, t time.Time) time.Time {
	if t.IsZero() {
		issues.Add(field, "is required")
		return t
	}
	return civilDate(t)
}

// civilDate drops the clock part of t, keeping its calendar day.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func finite(issues *opsledger.Issues, field string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		issues.Add(field, "must be a finite number")
		return false
	}
	return true
}

func nonNegative(issues *opsledger.Issues, field string, v *float64) {
	if v == nil {
		issues.Add(field, "is required")
		return
	}
	if finite(issues, field, *v) && *v < 0 {
		issues.Add(field, "must not be negative")
	}
}

func optionalPositive(issues *opsledger.Issues, field string, v *float64) {
	if v == nil {
		return
	}
	if finite(issues, field, *v) && *v <= 0 {
		issues.Add(field, "must be positive")
	}
}

func nonNegativeInt(issues *opsledger.Issues, field string, v *int) {
	if v == nil {
		issues.Add(field, "is required")
		return
	}
	if *v < 0 {
		issues.Add(field, "must not be negative")
	}
}

func hours(issues *opsledger.Issues, field string, v *float64) {
	if v == nil {
		return
	}
	if finite(issues, field, *v) && (*v < 0 || *v > 24) {
		issues.Add(field, "must be between 0 and 24")
	}
}

func oneOf[E ~string](issues *opsledger.Issues, field string, v E, allowed []E) {
	if v == "" {
		issues.Add(field, "is required")
		return
	}
	if !slices.Contains(allowed, v) {
		issues.Add(field, "must be one of %s", joinEnum(allowed))
	}
}

func joinEnum[E ~string](values []E) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func requiredBool(issues *opsledger.Issues, field string, v *bool) {
	if v == nil {
		issues.Add(field, "is required")
	}
}

func recordPath(i int) string {
	return fmt.Sprintf("records.%d", i)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
