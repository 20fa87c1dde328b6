package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// RecordPaymentRequest is the payload for POST /fees/:id/payments.
type RecordPaymentRequest struct {
	Amount              decimal.Decimal `json:"amount"`
	Method              string          `json:"method" validate:"required,max=32"`
	TransactionRef      string          `json:"transactionRef" validate:"omitempty,max=64"`
	PaidAt              *time.Time      `json:"paidAt"`
	InstallmentSequence *int            `json:"installmentSequence" validate:"omitempty,min=1"`
}

// PaymentReceipt summarises an accepted payment.
type PaymentReceipt struct {
	FeeID       string              `json:"feeId"`
	Applied     decimal.Decimal     `json:"applied"`
	PaidAmount  decimal.Decimal     `json:"paidAmount"`
	Remaining   decimal.Decimal     `json:"remaining"`
	Status      models.FeeStatus    `json:"status"`
	Installment *models.Installment `json:"installment,omitempty"`
	RecordedAt  time.Time           `json:"recordedAt"`
}

// InstallmentView adds derived state to a stored installment.
type InstallmentView struct {
	models.Installment
	EffectiveStatus models.InstallmentStatus `json:"effective_status"`
	Payable         bool                     `json:"payable"`
}

// FeeLedgerView is the read model served by GET /fees/:id/ledger.
type FeeLedgerView struct {
	AsOf           time.Time          `json:"asOf"`
	Fee            models.Fee         `json:"fee"`
	NetAmount      decimal.Decimal    `json:"netAmount"`
	Remaining      decimal.Decimal    `json:"remaining"`
	Overdue        bool               `json:"overdue"`
	DaysOverdue    int                `json:"daysOverdue"`
	AppliedWaivers []models.FeeWaiver `json:"appliedWaivers"`
	Installments   []InstallmentView  `json:"installments,omitempty"`
}

// CreateWaiverRequest is the payload for POST /waivers.
type CreateWaiverRequest struct {
	StudentID  string                  `json:"studentId" validate:"required"`
	FeeID      *string                 `json:"feeId"`
	Kind       string                  `json:"kind" validate:"required,max=64"`
	AmountType models.WaiverAmountType `json:"amountType" validate:"required,oneof=percentage fixed"`
	Value      decimal.Decimal         `json:"value"`
	Reason     string                  `json:"reason" validate:"required,max=500"`
	ValidFrom  time.Time               `json:"validFrom"`
	ValidUntil *time.Time              `json:"validUntil"`
}

// RejectWaiverRequest carries the rejection reason.
type RejectWaiverRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// WaiverListQuery binds GET /waivers filters.
type WaiverListQuery struct {
	StudentID string `form:"studentId"`
	FeeID     string `form:"feeId"`
	Status    string `form:"status"`
}

// RunLateFeesRequest is the payload for POST /late-fees/run.
type RunLateFeesRequest struct {
	DryRun  bool   `json:"dryRun"`
	FeeType string `json:"feeType"`
	AsOf    string `json:"asOf"`
}

// ReminderQuery binds reminder listing, dispatch and export parameters.
type ReminderQuery struct {
	AsOf        string `form:"asOf" json:"asOf"`
	Days        *int   `form:"days" json:"days"`
	OverdueOnly *bool  `form:"overdueOnly" json:"overdueOnly"`
	Format      string `form:"format" json:"format"`
}

// ReminderDispatchAccepted is returned when a dispatch job is queued.
type ReminderDispatchAccepted struct {
	JobID string `json:"jobId"`
}
