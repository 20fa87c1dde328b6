package models

import "time"

// FinanceMetricsSnapshot is a JSON-friendly summary of process counters.
type FinanceMetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	LateFeeRuns              uint64    `json:"late_fee_runs"`
	LateFeeRunFailures       uint64    `json:"late_fee_run_failures"`
	PaymentsRecorded         uint64    `json:"payments_recorded"`
	PaymentsRejected         uint64    `json:"payments_rejected"`
	RemindersSent            uint64    `json:"reminders_sent"`
	RemindersFailed          uint64    `json:"reminders_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
