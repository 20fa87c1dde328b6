package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus is the stored state of an installment. Overdue is derived
// from pending plus a past due date.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
	InstallmentStatusWaived  InstallmentStatus = "waived"
)

// Installment is one scheduled partial payment of a fee.
type Installment struct {
	ID             string            `db:"id" json:"id"`
	FeeID          string            `db:"fee_id" json:"fee_id"`
	Sequence       int               `db:"sequence" json:"sequence"`
	Amount         decimal.Decimal   `db:"amount" json:"amount"`
	DueDate        time.Time         `db:"due_date" json:"due_date"`
	PaidAmount     decimal.Decimal   `db:"paid_amount" json:"paid_amount"`
	Status         InstallmentStatus `db:"status" json:"status"`
	LateFee        decimal.Decimal   `db:"late_fee" json:"late_fee"`
	PaymentMethod  *string           `db:"payment_method" json:"payment_method,omitempty"`
	TransactionRef *string           `db:"transaction_ref" json:"transaction_ref,omitempty"`
	CollectedBy    *string           `db:"collected_by" json:"collected_by,omitempty"`
	PaidAt         *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
}
