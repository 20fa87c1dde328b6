package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeStatus tracks settlement of a fee against its net amount.
type FeeStatus string

const (
	FeeStatusUnpaid  FeeStatus = "unpaid"
	FeeStatusPartial FeeStatus = "partial"
	FeeStatusPaid    FeeStatus = "paid"
)

// Fee is one billable obligation for one student.
type Fee struct {
	ID             string          `db:"id" json:"id"`
	StudentID      string          `db:"student_id" json:"student_id"`
	FeeType        *string         `db:"fee_type" json:"fee_type,omitempty"`
	Title          string          `db:"title" json:"title"`
	BaseAmount     decimal.Decimal `db:"base_amount" json:"base_amount"`
	PaidAmount     decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	DueDate        time.Time       `db:"due_date" json:"due_date"`
	Status         FeeStatus       `db:"status" json:"status"`
	LateFeeTotal   decimal.Decimal `db:"late_fee_total" json:"late_fee_total"`
	LastLateFeeOn  *time.Time      `db:"last_late_fee_on" json:"last_late_fee_on,omitempty"`
	PaymentMethod  *string         `db:"payment_method" json:"payment_method,omitempty"`
	TransactionRef *string         `db:"transaction_ref" json:"transaction_ref,omitempty"`
	CollectedBy    *string         `db:"collected_by" json:"collected_by,omitempty"`
	PaidAt         *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// FeeTypeName returns the fee type or an empty string for untyped fees.
func (f Fee) FeeTypeName() string {
	if f.FeeType == nil {
		return ""
	}
	return *f.FeeType
}

// OutstandingFeeFilter selects open fees for reminders.
type OutstandingFeeFilter struct {
	AsOf        time.Time
	WindowDays  int
	OverdueOnly bool
}

// PaymentRecord captures who collected a payment and how.
type PaymentRecord struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	TransactionRef string          `json:"transaction_ref"`
	CollectedBy    string          `json:"collected_by"`
	PaidAt         time.Time       `json:"paid_at"`
}
