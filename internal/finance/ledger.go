package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

// Ledger is the in-memory view of one fee with its waivers and optional
// installment plan. Mutating methods update Fee in place.
type Ledger struct {
	Fee     models.Fee
	Waivers []models.FeeWaiver
	Plan    *InstallmentPlan
}

// NewLedger builds a ledger; installments may be empty.
func NewLedger(fee models.Fee, waivers []models.FeeWaiver, installments []models.Installment) (*Ledger, error) {
	l := &Ledger{Fee: fee, Waivers: waivers}
	if len(installments) > 0 {
		plan, err := NewInstallmentPlan(fee.ID, installments)
		if err != nil {
			return nil, err
		}
		l.Plan = plan
	}
	return l, nil
}

// NetAmount is base minus applicable waivers on asOf.
func (l *Ledger) NetAmount(asOf time.Time) decimal.Decimal {
	return NetAmount(l.Fee, l.Waivers, asOf)
}

// Remaining is the net amount minus payments, floored at zero. Accrued late
// fees are tracked separately in LateFeeTotal.
func (l *Ledger) Remaining(asOf time.Time) decimal.Decimal {
	return NonNegative(l.NetAmount(asOf).Sub(l.Fee.PaidAmount))
}

// IsOverdue is true when the due date has passed and the fee is not paid.
func (l *Ledger) IsOverdue(asOf time.Time) bool {
	return l.Fee.Status != models.FeeStatusPaid && Date(asOf).After(Date(l.Fee.DueDate))
}

// DaysOverdue is zero for fees that are not overdue.
func (l *Ledger) DaysOverdue(asOf time.Time) int {
	if !l.IsOverdue(asOf) {
		return 0
	}
	return DaysOverdue(l.Fee.DueDate, asOf)
}

// StatusFor maps a paid amount against the net amount.
func StatusFor(paid, net decimal.Decimal) models.FeeStatus {
	switch {
	case paid.GreaterThanOrEqual(net):
		return models.FeeStatusPaid
	case paid.IsPositive():
		return models.FeeStatusPartial
	default:
		return models.FeeStatusUnpaid
	}
}

// RefreshStatus recomputes the status after the waiver set changes and
// reports whether it moved.
func (l *Ledger) RefreshStatus(asOf time.Time) bool {
	next := StatusFor(l.Fee.PaidAmount, l.NetAmount(asOf))
	if next == l.Fee.Status {
		return false
	}
	l.Fee.Status = next
	return true
}

// RecordPayment applies a fee-level payment, capped at the remaining balance,
// and returns the amount applied.
func (l *Ledger) RecordPayment(payment models.PaymentRecord, asOf time.Time) (decimal.Decimal, error) {
	amount, err := l.acceptable(payment, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	l.credit(amount, payment, asOf)
	return amount, nil
}

// Pay routes a payment through the installment plan when the fee has one. A
// nil sequence targets the next payable installment.
func (l *Ledger) Pay(sequence *int, payment models.PaymentRecord, asOf time.Time) (decimal.Decimal, *models.Installment, error) {
	if l.Plan.Empty() {
		if sequence != nil {
			return decimal.Zero, nil, appErrors.Clone(appErrors.ErrValidation, "fee has no installment plan")
		}
		applied, err := l.RecordPayment(payment, asOf)
		return applied, nil, err
	}

	capped, err := l.acceptable(payment, asOf)
	if err != nil {
		return decimal.Zero, nil, err
	}

	target := 0
	if sequence != nil {
		target = *sequence
	} else {
		next, ok := l.Plan.NextPayable()
		if !ok {
			return decimal.Zero, nil, appErrors.Clone(appErrors.ErrFeeSettled, "all installments are settled")
		}
		target = next.Sequence
	}

	payment.Amount = capped
	if payment.PaidAt.IsZero() {
		payment.PaidAt = asOf
	}
	inst, applied, err := l.Plan.RecordPayment(target, payment)
	if err != nil {
		return decimal.Zero, nil, err
	}
	l.credit(applied, payment, asOf)
	return applied, &inst, nil
}

func (l *Ledger) acceptable(payment models.PaymentRecord, asOf time.Time) (decimal.Decimal, error) {
	if !payment.Amount.IsPositive() {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "payment amount must be positive")
	}
	remaining := l.Remaining(asOf)
	if !remaining.IsPositive() {
		return decimal.Zero, appErrors.ErrFeeSettled
	}
	return MinDecimal(payment.Amount, remaining), nil
}

func (l *Ledger) credit(amount decimal.Decimal, payment models.PaymentRecord, asOf time.Time) {
	l.Fee.PaidAmount = l.Fee.PaidAmount.Add(amount)
	if payment.Method != "" {
		method := payment.Method
		l.Fee.PaymentMethod = &method
	}
	if payment.TransactionRef != "" {
		ref := payment.TransactionRef
		l.Fee.TransactionRef = &ref
	}
	if payment.CollectedBy != "" {
		by := payment.CollectedBy
		l.Fee.CollectedBy = &by
	}
	paidAt := payment.PaidAt
	if paidAt.IsZero() {
		paidAt = asOf
	}
	l.Fee.PaidAt = &paidAt
	l.RefreshStatus(asOf)
}
