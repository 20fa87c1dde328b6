package finance

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

// InstallmentPlan orders a fee's installments and enforces that they are
// paid strictly by sequence.
type InstallmentPlan struct {
	FeeID        string
	Installments []models.Installment
}

// NewInstallmentPlan validates and sorts installments belonging to feeID.
func NewInstallmentPlan(feeID string, installments []models.Installment) (*InstallmentPlan, error) {
	sorted := append([]models.Installment(nil), installments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	seen := make(map[int]struct{}, len(sorted))
	for _, inst := range sorted {
		if inst.FeeID != feeID {
			return nil, fmt.Errorf("installment %s belongs to fee %s, not %s", inst.ID, inst.FeeID, feeID)
		}
		if inst.Sequence < 1 {
			return nil, fmt.Errorf("installment %s has invalid sequence %d", inst.ID, inst.Sequence)
		}
		if _, dup := seen[inst.Sequence]; dup {
			return nil, fmt.Errorf("fee %s has duplicate installment sequence %d", feeID, inst.Sequence)
		}
		seen[inst.Sequence] = struct{}{}
	}
	return &InstallmentPlan{FeeID: feeID, Installments: sorted}, nil
}

// Empty reports whether the fee has no installment schedule.
func (p *InstallmentPlan) Empty() bool {
	return p == nil || len(p.Installments) == 0
}

// Settled is true for paid and waived installments; neither accepts payment.
func Settled(inst models.Installment) bool {
	return inst.Status == models.InstallmentStatusPaid || inst.Status == models.InstallmentStatusWaived
}

func (p *InstallmentPlan) index(sequence int) int {
	for i := range p.Installments {
		if p.Installments[i].Sequence == sequence {
			return i
		}
	}
	return -1
}

// Find returns a copy of the installment with the given sequence.
func (p *InstallmentPlan) Find(sequence int) (models.Installment, bool) {
	if p.Empty() {
		return models.Installment{}, false
	}
	if i := p.index(sequence); i >= 0 {
		return p.Installments[i], true
	}
	return models.Installment{}, false
}

// CanPay is true only when every installment with a lower sequence is paid.
// A waived predecessor still blocks.
func (p *InstallmentPlan) CanPay(sequence int) bool {
	if p.Empty() {
		return false
	}
	for _, inst := range p.Installments {
		if inst.Sequence >= sequence {
			break
		}
		if inst.Status != models.InstallmentStatusPaid {
			return false
		}
	}
	return true
}

// Blocking returns the lowest-sequence installment before sequence that is not
// paid.
func (p *InstallmentPlan) Blocking(sequence int) (models.Installment, bool) {
	if p.Empty() {
		return models.Installment{}, false
	}
	for _, inst := range p.Installments {
		if inst.Sequence >= sequence {
			break
		}
		if inst.Status != models.InstallmentStatusPaid {
			return inst, true
		}
	}
	return models.Installment{}, false
}

// NextPayable returns the lowest-sequence unsettled installment.
func (p *InstallmentPlan) NextPayable() (models.Installment, bool) {
	if p.Empty() {
		return models.Installment{}, false
	}
	for _, inst := range p.Installments {
		if !Settled(inst) {
			return inst, true
		}
	}
	return models.Installment{}, false
}

// LateFeeTarget picks the installment a late fee is attributed to: the
// earliest overdue one, else the next payable.
func (p *InstallmentPlan) LateFeeTarget(asOf time.Time) (models.Installment, bool) {
	if p.Empty() {
		return models.Installment{}, false
	}
	for _, inst := range p.Installments {
		if EffectiveStatus(inst, asOf) == models.InstallmentStatusOverdue {
			return inst, true
		}
	}
	return p.NextPayable()
}

// RecordPayment applies up to amount to the installment and returns the
// updated row with the amount actually consumed.
func (p *InstallmentPlan) RecordPayment(sequence int, payment models.PaymentRecord) (models.Installment, decimal.Decimal, error) {
	i := -1
	if !p.Empty() {
		i = p.index(sequence)
	}
	if i < 0 {
		return models.Installment{}, decimal.Zero, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("installment %d not found", sequence))
	}
	inst := p.Installments[i]
	if Settled(inst) {
		return inst, decimal.Zero, appErrors.Clone(appErrors.ErrInstallmentPaid, fmt.Sprintf("installment %d is already %s", sequence, inst.Status))
	}
	if !p.CanPay(sequence) {
		blocking, _ := p.Blocking(sequence)
		return inst, decimal.Zero, appErrors.Clone(appErrors.ErrSequenceViolation,
			fmt.Sprintf("installment %d must be paid before installment %d", blocking.Sequence, sequence))
	}
	if !payment.Amount.IsPositive() {
		return inst, decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "payment amount must be positive")
	}

	newPaid := MinDecimal(inst.Amount, inst.PaidAmount.Add(payment.Amount))
	applied := newPaid.Sub(inst.PaidAmount)

	inst.PaidAmount = newPaid
	if newPaid.GreaterThanOrEqual(inst.Amount) {
		inst.Status = models.InstallmentStatusPaid
	}
	stampInstallment(&inst, payment)
	p.Installments[i] = inst
	return inst, applied, nil
}

// ApplyLateFee adds a non-negative late fee to one installment without
// touching its status.
func (p *InstallmentPlan) ApplyLateFee(sequence int, amount decimal.Decimal) (models.Installment, error) {
	if amount.IsNegative() {
		return models.Installment{}, appErrors.Clone(appErrors.ErrValidation, "late fee cannot be negative")
	}
	i := -1
	if !p.Empty() {
		i = p.index(sequence)
	}
	if i < 0 {
		return models.Installment{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("installment %d not found", sequence))
	}
	p.Installments[i].LateFee = p.Installments[i].LateFee.Add(amount)
	return p.Installments[i], nil
}

// EffectiveStatus derives overdue for unsettled installments past due.
func EffectiveStatus(inst models.Installment, asOf time.Time) models.InstallmentStatus {
	if Settled(inst) {
		return inst.Status
	}
	if Date(asOf).After(Date(inst.DueDate)) {
		return models.InstallmentStatusOverdue
	}
	return models.InstallmentStatusPending
}

func stampInstallment(inst *models.Installment, payment models.PaymentRecord) {
	if payment.Method != "" {
		method := payment.Method
		inst.PaymentMethod = &method
	}
	if payment.TransactionRef != "" {
		ref := payment.TransactionRef
		inst.TransactionRef = &ref
	}
	if payment.CollectedBy != "" {
		by := payment.CollectedBy
		inst.CollectedBy = &by
	}
	paidAt := payment.PaidAt
	inst.PaidAt = &paidAt
}
