package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

const policyColumns = `id, name, fee_type, grace_period_days, kind, rate, max_amount, active, compound, created_at, updated_at`

// LateFeePolicyRepository reads and writes late-fee policies.
type LateFeePolicyRepository struct {
	db *sqlx.DB
}

// NewLateFeePolicyRepository constructs the repository.
func NewLateFeePolicyRepository(db *sqlx.DB) *LateFeePolicyRepository {
	return &LateFeePolicyRepository{db: db}
}

// ListActive returns every active policy, global and scoped.
func (r *LateFeePolicyRepository) ListActive(ctx context.Context) ([]models.LateFeePolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM late_fee_policies WHERE active = TRUE ORDER BY updated_at DESC, id ASC`
	var policies []models.LateFeePolicy
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("list active late fee policies: %w", err)
	}
	return policies, nil
}

// List returns all policies including inactive ones.
func (r *LateFeePolicyRepository) List(ctx context.Context) ([]models.LateFeePolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM late_fee_policies ORDER BY name ASC, id ASC`
	var policies []models.LateFeePolicy
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("list late fee policies: %w", err)
	}
	return policies, nil
}
