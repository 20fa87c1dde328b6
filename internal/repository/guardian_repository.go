package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// GuardianRepository resolves who pays for which student.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository constructs the repository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// ListResponsibleByStudents returns financially responsible guardians joined
// to the given students.
func (r *GuardianRepository) ListResponsibleByStudents(ctx context.Context, studentIDs []string) ([]models.GuardianLink, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT g.id, g.full_name, g.email, g.phone, sg.student_id, s.full_name AS student_name, s.nis AS student_nis, sg.relationship
	FROM student_guardians sg
	JOIN guardians g ON g.id = sg.guardian_id
	JOIN students s ON s.id = sg.student_id
	WHERE sg.financially_responsible = TRUE AND sg.student_id = ANY($1)
	ORDER BY g.full_name ASC, s.full_name ASC`
	var links []models.GuardianLink
	if err := r.db.SelectContext(ctx, &links, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list responsible guardians: %w", err)
	}
	return links, nil
}
