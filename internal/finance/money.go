// Package finance holds the pure fee rules: policy resolution, late-fee
// formulas, waiver netting, installment sequencing and the fee ledger. Nothing
// here touches storage or reads the wall clock; every date rule takes asOf.
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round rounds to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NonNegative floors d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Percent returns round(base * rate / 100, 2).
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(rate).Div(hundred))
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Date truncates t to its calendar date at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from `from` to `to`; negative when to
// precedes from.
func DaysBetween(from, to time.Time) int {
	return int(Date(to).Sub(Date(from)) / (24 * time.Hour))
}

// AddDays shifts a calendar date.
func AddDays(t time.Time, days int) time.Time {
	return Date(t).AddDate(0, 0, days)
}
