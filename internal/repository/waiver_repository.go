package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

const waiverColumns = `id, student_id, fee_id, kind, amount_type, value, reason, valid_from, valid_until, status,
       requested_by, reviewed_by, reviewed_at, rejection_reason, created_at`

// WaiverRepository persists fee waivers.
type WaiverRepository struct {
	db *sqlx.DB
}

// NewWaiverRepository constructs the repository.
func NewWaiverRepository(db *sqlx.DB) *WaiverRepository {
	return &WaiverRepository{db: db}
}

// Create inserts a waiver request.
func (r *WaiverRepository) Create(ctx context.Context, waiver *models.FeeWaiver) error {
	if waiver.ID == "" {
		waiver.ID = uuid.NewString()
	}
	if waiver.Status == "" {
		waiver.Status = models.WaiverStatusPending
	}
	if waiver.CreatedAt.IsZero() {
		waiver.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO fee_waivers (` + waiverColumns + `)
	VALUES (:id, :student_id, :fee_id, :kind, :amount_type, :value, :reason, :valid_from, :valid_until, :status,
	:requested_by, :reviewed_by, :reviewed_at, :rejection_reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, waiver); err != nil {
		return fmt.Errorf("create waiver: %w", err)
	}
	return nil
}

// GetByID fetches a waiver.
func (r *WaiverRepository) GetByID(ctx context.Context, id string) (*models.FeeWaiver, error) {
	query := `SELECT ` + waiverColumns + ` FROM fee_waivers WHERE id = $1`
	var waiver models.FeeWaiver
	if err := r.db.GetContext(ctx, &waiver, query, id); err != nil {
		return nil, err
	}
	return &waiver, nil
}

// List returns waivers matching the filter, newest first.
func (r *WaiverRepository) List(ctx context.Context, filter models.WaiverFilter) ([]models.FeeWaiver, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + waiverColumns + ` FROM fee_waivers`)

	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.FeeID != "" {
		args = append(args, filter.FeeID)
		conditions = append(conditions, fmt.Sprintf("fee_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	var waivers []models.FeeWaiver
	if err := r.db.SelectContext(ctx, &waivers, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list waivers: %w", err)
	}
	return waivers, nil
}

// ListApprovedByStudents returns approved waivers for the given students.
// Validity windows are evaluated by the caller against its own asOf.
func (r *WaiverRepository) ListApprovedByStudents(ctx context.Context, studentIDs []string) ([]models.FeeWaiver, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + waiverColumns + ` FROM fee_waivers WHERE status = 'approved' AND student_id = ANY($1)`
	var waivers []models.FeeWaiver
	if err := r.db.SelectContext(ctx, &waivers, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list approved waivers: %w", err)
	}
	return waivers, nil
}

// ReviewWaiverParams groups the columns written by a review.
type ReviewWaiverParams struct {
	ID              string
	Status          models.WaiverStatus
	ReviewedBy      string
	ReviewedAt      time.Time
	RejectionReason *string
}

// UpdateReview resolves a pending waiver. It returns sql.ErrNoRows when the
// waiver is missing or no longer pending.
func (r *WaiverRepository) UpdateReview(ctx context.Context, params ReviewWaiverParams) error {
	query := fmt.Sprintf(`UPDATE fee_waivers SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at,
	rejection_reason = :rejection_reason WHERE id = :id AND status = '%s'`, models.WaiverStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"status":           params.Status,
		"reviewed_by":      params.ReviewedBy,
		"reviewed_at":      params.ReviewedAt,
		"rejection_reason": params.RejectionReason,
	})
	if err != nil {
		return fmt.Errorf("update waiver review: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check waiver update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
