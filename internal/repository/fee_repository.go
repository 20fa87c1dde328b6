package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

const feeColumns = `id, student_id, fee_type, title, base_amount, paid_amount, due_date, status, late_fee_total,
       last_late_fee_on, payment_method, transaction_ref, collected_by, paid_at, created_at, updated_at`

const installmentColumns = `id, fee_id, sequence, amount, due_date, paid_amount, status, late_fee,
       payment_method, transaction_ref, collected_by, paid_at`

// FeeRepository persists fee ledgers and their installments.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// FindByID fetches a single fee.
func (r *FeeRepository) FindByID(ctx context.Context, id string) (*models.Fee, error) {
	query := `SELECT ` + feeColumns + ` FROM fees WHERE id = $1`
	var fee models.Fee
	if err := r.db.GetContext(ctx, &fee, query, id); err != nil {
		return nil, err
	}
	return &fee, nil
}

// ListOverdue returns open fees due strictly before asOf, optionally narrowed
// to one fee type.
func (r *FeeRepository) ListOverdue(ctx context.Context, asOf time.Time, feeType string) ([]models.Fee, error) {
	builder := strings.Builder{}
	args := []interface{}{asOf}
	builder.WriteString(`SELECT ` + feeColumns + ` FROM fees
	WHERE status IN ('unpaid', 'partial') AND due_date < $1`)
	if feeType != "" {
		args = append(args, feeType)
		builder.WriteString(fmt.Sprintf(" AND fee_type = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY due_date ASC, id ASC")

	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list overdue fees: %w", err)
	}
	return fees, nil
}

// ListOutstanding returns open fees that are overdue or, unless OverdueOnly is
// set, fall due within the window.
func (r *FeeRepository) ListOutstanding(ctx context.Context, filter models.OutstandingFeeFilter) ([]models.Fee, error) {
	query := `SELECT ` + feeColumns + ` FROM fees WHERE status IN ('unpaid', 'partial') AND due_date < $1`
	args := []interface{}{filter.AsOf}
	if !filter.OverdueOnly {
		query = `SELECT ` + feeColumns + ` FROM fees WHERE status IN ('unpaid', 'partial') AND due_date <= $1`
		args = []interface{}{filter.AsOf.AddDate(0, 0, filter.WindowDays)}
	}
	query += " ORDER BY student_id ASC, due_date ASC"

	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, query, args...); err != nil {
		return nil, fmt.Errorf("list outstanding fees: %w", err)
	}
	return fees, nil
}

// ListByStudent returns every fee of a student.
func (r *FeeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Fee, error) {
	query := `SELECT ` + feeColumns + ` FROM fees WHERE student_id = $1 ORDER BY due_date ASC, id ASC`
	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, query, studentID); err != nil {
		return nil, fmt.Errorf("list student fees: %w", err)
	}
	return fees, nil
}

// ListInstallments returns a fee's installments ordered by sequence.
func (r *FeeRepository) ListInstallments(ctx context.Context, feeID string) ([]models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM fee_installments WHERE fee_id = $1 ORDER BY sequence ASC`
	var items []models.Installment
	if err := r.db.SelectContext(ctx, &items, query, feeID); err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	return items, nil
}

// ListInstallmentsByFees groups installments for many fees in one query.
func (r *FeeRepository) ListInstallmentsByFees(ctx context.Context, feeIDs []string) (map[string][]models.Installment, error) {
	grouped := make(map[string][]models.Installment)
	if len(feeIDs) == 0 {
		return grouped, nil
	}
	query := `SELECT ` + installmentColumns + ` FROM fee_installments WHERE fee_id = ANY($1) ORDER BY fee_id ASC, sequence ASC`
	var items []models.Installment
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(feeIDs)); err != nil {
		return nil, fmt.Errorf("list installments by fees: %w", err)
	}
	for _, item := range items {
		grouped[item.FeeID] = append(grouped[item.FeeID], item)
	}
	return grouped, nil
}

// ApplyLateFee adds a charge at most once per fee per day. It returns false
// when the fee was already charged on AppliedOn or has been settled meanwhile.
func (r *FeeRepository) ApplyLateFee(ctx context.Context, charge models.LateFeeCharge) (applied bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin late fee transaction: %w", err)
	}
	defer func() {
		if err != nil || !applied {
			_ = tx.Rollback()
		}
	}()

	const feeQuery = `UPDATE fees SET late_fee_total = late_fee_total + $1, last_late_fee_on = $2, updated_at = $3
	WHERE id = $4 AND status IN ('unpaid', 'partial') AND (last_late_fee_on IS NULL OR last_late_fee_on < $2)`
	result, err := tx.ExecContext(ctx, feeQuery, charge.Amount, charge.AppliedOn, time.Now().UTC(), charge.FeeID)
	if err != nil {
		return false, fmt.Errorf("apply late fee: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check late fee rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if charge.InstallmentSequence != nil {
		const instQuery = `UPDATE fee_installments SET late_fee = late_fee + $1 WHERE fee_id = $2 AND sequence = $3`
		if _, err = tx.ExecContext(ctx, instQuery, charge.Amount, charge.FeeID, *charge.InstallmentSequence); err != nil {
			return false, fmt.Errorf("apply installment late fee: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit late fee: %w", err)
	}
	return true, nil
}

// PaymentMutation is the ledger state to persist after a payment.
type PaymentMutation struct {
	Fee         models.Fee
	Installment *models.Installment
}

// PaymentFunc computes the post-payment state from the locked rows.
type PaymentFunc func(fee models.Fee, installments []models.Installment) (*PaymentMutation, error)

// WithLockedFee row-locks a fee and its installments, lets fn compute the new
// state and writes it back in the same transaction. Errors from fn are
// returned unchanged and nothing is written.
func (r *FeeRepository) WithLockedFee(ctx context.Context, feeID string, fn PaymentFunc) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var fee models.Fee
	if err = tx.GetContext(ctx, &fee, `SELECT `+feeColumns+` FROM fees WHERE id = $1 FOR UPDATE`, feeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock fee: %w", err)
	}
	var installments []models.Installment
	if err = tx.SelectContext(ctx, &installments, `SELECT `+installmentColumns+` FROM fee_installments WHERE fee_id = $1 ORDER BY sequence ASC FOR UPDATE`, feeID); err != nil {
		return fmt.Errorf("lock installments: %w", err)
	}

	mutation, err := fn(fee, installments)
	if err != nil {
		return err
	}
	if mutation == nil {
		return tx.Commit()
	}

	mutation.Fee.UpdatedAt = time.Now().UTC()
	const feeUpdate = `UPDATE fees SET paid_amount = :paid_amount, status = :status, payment_method = :payment_method,
	transaction_ref = :transaction_ref, collected_by = :collected_by, paid_at = :paid_at, updated_at = :updated_at
	WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, feeUpdate, mutation.Fee); err != nil {
		return fmt.Errorf("update fee payment: %w", err)
	}
	if mutation.Installment != nil {
		const instUpdate = `UPDATE fee_installments SET paid_amount = :paid_amount, status = :status, payment_method = :payment_method,
	transaction_ref = :transaction_ref, collected_by = :collected_by, paid_at = :paid_at
	WHERE id = :id`
		if _, err = tx.NamedExecContext(ctx, instUpdate, mutation.Installment); err != nil {
			return fmt.Errorf("update installment payment: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit payment: %w", err)
	}
	return nil
}

// UpdateStatus stores a recomputed status.
func (r *FeeRepository) UpdateStatus(ctx context.Context, feeID string, status models.FeeStatus) error {
	const query = `UPDATE fees SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), feeID); err != nil {
		return fmt.Errorf("update fee status: %w", err)
	}
	return nil
}
