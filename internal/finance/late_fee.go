package finance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// LateFeeCalculator is the single strategy used by the batch applier.
type LateFeeCalculator interface {
	Applicable(policy models.LateFeePolicy, dueDate, asOf time.Time) bool
	Compute(policy models.LateFeePolicy, base decimal.Decimal, daysOverdue int) decimal.Decimal
}

// StandardCalculator implements the fixed/percentage/daily/weekly formulas.
type StandardCalculator struct{}

// Applicable is true once asOf is strictly past the due date plus grace days.
func (StandardCalculator) Applicable(policy models.LateFeePolicy, dueDate, asOf time.Time) bool {
	return Date(asOf).After(AddDays(dueDate, policy.GracePeriodDays))
}

// Compute returns the charge for daysOverdue whole days. The grace period does
// not reduce the billed days.
func (StandardCalculator) Compute(policy models.LateFeePolicy, base decimal.Decimal, daysOverdue int) decimal.Decimal {
	if daysOverdue <= 0 {
		return decimal.Zero
	}

	var charge decimal.Decimal
	switch policy.Kind {
	case models.LateFeeKindFixed:
		charge = policy.Rate
	case models.LateFeeKindPercentage:
		charge = Percent(base, policy.Rate)
	case models.LateFeeKindDaily:
		charge = Round(policy.Rate.Mul(decimal.NewFromInt(int64(daysOverdue))))
	case models.LateFeeKindWeekly:
		weeks := (daysOverdue + 6) / 7
		charge = Round(policy.Rate.Mul(decimal.NewFromInt(int64(weeks))))
	default:
		return decimal.Zero
	}

	if policy.MaxAmount != nil {
		charge = MinDecimal(charge, *policy.MaxAmount)
	}
	return NonNegative(charge)
}

// DaysOverdue is the whole-day distance from the due date to asOf.
func DaysOverdue(dueDate, asOf time.Time) int {
	return DaysBetween(dueDate, asOf)
}

// ValidatePolicy rejects policies the calculator cannot evaluate.
func ValidatePolicy(policy models.LateFeePolicy) error {
	switch policy.Kind {
	case models.LateFeeKindFixed, models.LateFeeKindPercentage, models.LateFeeKindDaily, models.LateFeeKindWeekly:
	default:
		return fmt.Errorf("policy %s: unknown calculation kind %q", policy.ID, policy.Kind)
	}
	if policy.GracePeriodDays < 0 {
		return fmt.Errorf("policy %s: negative grace period", policy.ID)
	}
	if policy.Rate.IsNegative() {
		return fmt.Errorf("policy %s: negative rate", policy.ID)
	}
	return nil
}
