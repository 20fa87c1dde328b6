package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReminderOptions select which open fees appear in reminders.
type ReminderOptions struct {
	AsOf        time.Time `json:"as_of"`
	WindowDays  int       `json:"window_days"`
	OverdueOnly bool      `json:"overdue_only"`
}

// ReminderFeeLine is one fee inside a student's reminder.
type ReminderFeeLine struct {
	FeeID        string          `json:"fee_id"`
	Title        string          `json:"title"`
	FeeType      string          `json:"fee_type,omitempty"`
	DueDate      time.Time       `json:"due_date"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Remaining    decimal.Decimal `json:"remaining"`
	LateFeeTotal decimal.Decimal `json:"late_fee_total"`
	Overdue      bool            `json:"overdue"`
	DaysOverdue  int             `json:"days_overdue"`
}

// ReminderStudent groups one student's fees for a guardian.
type ReminderStudent struct {
	StudentID   string            `json:"student_id"`
	StudentName string            `json:"student_name"`
	StudentNIS  string            `json:"student_nis"`
	Fees        []ReminderFeeLine `json:"fees"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
}

// GuardianBundle is the reminder payload for one financially responsible guardian.
type GuardianBundle struct {
	Guardian       Guardian          `json:"guardian"`
	Students       []ReminderStudent `json:"students"`
	TotalPending   decimal.Decimal   `json:"total_pending"`
	OverdueCount   int               `json:"overdue_count"`
	NoPendingItems bool              `json:"no_pending_items"`
}

// ReminderDigest is the full reminder build output.
type ReminderDigest struct {
	AsOf       time.Time        `json:"as_of"`
	Options    ReminderOptions  `json:"options"`
	Bundles    []GuardianBundle `json:"bundles"`
	Unassigned []string         `json:"unassigned_fee_ids,omitempty"`
	Total      decimal.Decimal  `json:"total_pending"`
}

// ReminderDispatchResult summarises notification delivery for a digest.
type ReminderDispatchResult struct {
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	NoPending int      `json:"no_pending"`
	FailedIDs []string `json:"failed_guardian_ids,omitempty"`
}
