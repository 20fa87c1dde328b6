package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/sma-fee-ledger/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the finance tables when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		nis TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS guardians (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT,
		phone TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS student_guardians (
		student_id TEXT NOT NULL REFERENCES students(id),
		guardian_id TEXT NOT NULL REFERENCES guardians(id),
		relationship TEXT NOT NULL DEFAULT '',
		financially_responsible BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (student_id, guardian_id)
	)`,
	`CREATE TABLE IF NOT EXISTS fees (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		fee_type TEXT,
		title TEXT NOT NULL DEFAULT '',
		base_amount NUMERIC(12,2) NOT NULL CHECK (base_amount >= 0),
		paid_amount NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (paid_amount >= 0),
		due_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'unpaid',
		late_fee_total NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (late_fee_total >= 0),
		last_late_fee_on DATE,
		payment_method TEXT,
		transaction_ref TEXT,
		collected_by TEXT,
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fees_status_due ON fees (status, due_date)`,
	`CREATE TABLE IF NOT EXISTS fee_installments (
		id TEXT PRIMARY KEY,
		fee_id TEXT NOT NULL REFERENCES fees(id),
		sequence INT NOT NULL CHECK (sequence >= 1),
		amount NUMERIC(12,2) NOT NULL,
		due_date DATE NOT NULL,
		paid_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		late_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
		payment_method TEXT,
		transaction_ref TEXT,
		collected_by TEXT,
		paid_at TIMESTAMPTZ,
		UNIQUE (fee_id, sequence)
	)`,
	`CREATE TABLE IF NOT EXISTS late_fee_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		fee_type TEXT,
		grace_period_days INT NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		rate NUMERIC(12,2) NOT NULL,
		max_amount NUMERIC(12,2),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		compound BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS fee_waivers (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		fee_id TEXT REFERENCES fees(id),
		kind TEXT NOT NULL,
		amount_type TEXT NOT NULL,
		value NUMERIC(12,2) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		valid_from DATE NOT NULL,
		valid_until DATE,
		status TEXT NOT NULL DEFAULT 'pending',
		requested_by TEXT NOT NULL,
		reviewed_by TEXT,
		reviewed_at TIMESTAMPTZ,
		rejection_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT,
		old_values JSONB,
		new_values JSONB,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		recipient_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}
