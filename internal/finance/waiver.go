package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// WaiverApplies reports whether w reduces fee on asOf: approved, in its
// validity window, for the fee's student, and either broad or aimed at fee.
func WaiverApplies(w models.FeeWaiver, fee models.Fee, asOf time.Time) bool {
	if w.Status != models.WaiverStatusApproved {
		return false
	}
	if w.StudentID != fee.StudentID {
		return false
	}
	if w.FeeID != nil && *w.FeeID != fee.ID {
		return false
	}
	day := Date(asOf)
	if Date(w.ValidFrom).After(day) {
		return false
	}
	if w.ValidUntil != nil && Date(*w.ValidUntil).Before(day) {
		return false
	}
	return true
}

// WaiverReduction is the amount one waiver removes from base.
func WaiverReduction(w models.FeeWaiver, base decimal.Decimal) decimal.Decimal {
	switch w.AmountType {
	case models.WaiverAmountPercentage:
		return Percent(base, w.Value)
	case models.WaiverAmountFixed:
		return w.Value
	default:
		return decimal.Zero
	}
}

// AppliedWaivers filters waivers down to those reducing fee on asOf.
func AppliedWaivers(fee models.Fee, waivers []models.FeeWaiver, asOf time.Time) []models.FeeWaiver {
	applied := make([]models.FeeWaiver, 0, len(waivers))
	for _, w := range waivers {
		if WaiverApplies(w, fee, asOf) {
			applied = append(applied, w)
		}
	}
	return applied
}

// NetAmount is base minus the sum of every applicable waiver, floored at zero.
// Stacked waivers are summed without precedence.
func NetAmount(fee models.Fee, waivers []models.FeeWaiver, asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, w := range AppliedWaivers(fee, waivers, asOf) {
		total = total.Add(WaiverReduction(w, fee.BaseAmount))
	}
	return NonNegative(fee.BaseAmount.Sub(total))
}
