package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LateFeeRunOptions parameterise one late-fee batch run.
type LateFeeRunOptions struct {
	DryRun  bool      `json:"dry_run"`
	FeeType string    `json:"fee_type,omitempty"`
	AsOf    time.Time `json:"as_of"`
}

// BatchStatus reports the overall outcome of a run.
type BatchStatus string

const (
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// BatchOutcome classifies what happened to one fee in a run.
type BatchOutcome string

const (
	BatchOutcomeCharged    BatchOutcome = "charged"
	BatchOutcomeProjected  BatchOutcome = "projected"
	BatchOutcomeNoPolicy   BatchOutcome = "no_policy"
	BatchOutcomeInGrace    BatchOutcome = "in_grace_period"
	BatchOutcomeZeroCharge BatchOutcome = "zero_charge"
	BatchOutcomeDuplicate  BatchOutcome = "already_applied"
	BatchOutcomeSettled    BatchOutcome = "settled"
)

// LateFeeBatchLine is the per-fee result of a run.
type LateFeeBatchLine struct {
	FeeID       string          `json:"fee_id"`
	StudentID   string          `json:"student_id"`
	FeeType     string          `json:"fee_type,omitempty"`
	PolicyID    string          `json:"policy_id,omitempty"`
	DaysOverdue int             `json:"days_overdue"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Charge      decimal.Decimal `json:"charge"`
	Outcome     BatchOutcome    `json:"outcome"`
}

// LateFeeBatchFailure records a fee that could not be processed.
type LateFeeBatchFailure struct {
	FeeID string `json:"fee_id"`
	Error string `json:"error"`
}

// LateFeeBatchReport aggregates a run. TotalCharged holds projected figures on
// dry runs.
type LateFeeBatchReport struct {
	RunID        string                `json:"run_id"`
	AsOf         time.Time             `json:"as_of"`
	DryRun       bool                  `json:"dry_run"`
	FeeType      string                `json:"fee_type,omitempty"`
	Status       BatchStatus           `json:"status"`
	Processed    int                   `json:"processed"`
	Charged      int                   `json:"charged"`
	Skipped      int                   `json:"skipped"`
	Failed       int                   `json:"failed"`
	TotalCharged decimal.Decimal       `json:"total_charged"`
	Lines        []LateFeeBatchLine    `json:"lines"`
	Failures     []LateFeeBatchFailure `json:"failures,omitempty"`
	Error        string                `json:"error,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}

// LateFeeCharge is a committed late-fee application.
type LateFeeCharge struct {
	FeeID               string
	Amount              decimal.Decimal
	AppliedOn           time.Time
	InstallmentSequence *int
}
