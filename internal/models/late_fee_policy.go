package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LateFeeKind selects the penalty formula.
type LateFeeKind string

const (
	LateFeeKindFixed      LateFeeKind = "fixed"
	LateFeeKindPercentage LateFeeKind = "percentage"
	LateFeeKindDaily      LateFeeKind = "daily"
	LateFeeKindWeekly     LateFeeKind = "weekly"
)

// LateFeePolicy describes how penalties accrue on overdue fees. A nil FeeType
// makes the policy the global fallback.
type LateFeePolicy struct {
	ID              string           `db:"id" json:"id"`
	Name            string           `db:"name" json:"name"`
	FeeType         *string          `db:"fee_type" json:"fee_type,omitempty"`
	GracePeriodDays int              `db:"grace_period_days" json:"grace_period_days"`
	Kind            LateFeeKind      `db:"kind" json:"kind"`
	Rate            decimal.Decimal  `db:"rate" json:"rate"`
	MaxAmount       *decimal.Decimal `db:"max_amount" json:"max_amount,omitempty"`
	Active          bool             `db:"active" json:"active"`
	// Compound is stored for parity with policy authoring; the penalty
	// formulas do not read it.
	Compound  bool      `db:"compound" json:"compound"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsGlobal reports whether the policy applies to every fee type.
func (p LateFeePolicy) IsGlobal() bool {
	return p.FeeType == nil
}
