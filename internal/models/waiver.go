package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WaiverAmountType selects how a waiver value reduces a fee.
type WaiverAmountType string

const (
	WaiverAmountPercentage WaiverAmountType = "percentage"
	WaiverAmountFixed      WaiverAmountType = "fixed"
)

// WaiverStatus captures the approval workflow state.
type WaiverStatus string

const (
	WaiverStatusPending  WaiverStatus = "pending"
	WaiverStatusApproved WaiverStatus = "approved"
	WaiverStatusRejected WaiverStatus = "rejected"
)

// FeeWaiver is an authorised reduction of one fee, or of a student's fees when
// FeeID is nil.
type FeeWaiver struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	FeeID           *string          `db:"fee_id" json:"fee_id,omitempty"`
	Kind            string           `db:"kind" json:"kind"`
	AmountType      WaiverAmountType `db:"amount_type" json:"amount_type"`
	Value           decimal.Decimal  `db:"value" json:"value"`
	Reason          string           `db:"reason" json:"reason"`
	ValidFrom       time.Time        `db:"valid_from" json:"valid_from"`
	ValidUntil      *time.Time       `db:"valid_until" json:"valid_until,omitempty"`
	Status          WaiverStatus     `db:"status" json:"status"`
	RequestedBy     string           `db:"requested_by" json:"requested_by"`
	ReviewedBy      *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}

// WaiverFilter constrains waiver listings.
type WaiverFilter struct {
	StudentID string
	FeeID     string
	Status    []WaiverStatus
}
