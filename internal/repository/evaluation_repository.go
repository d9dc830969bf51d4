package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

// EvaluationRepository appends evaluations; rows are never updated.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Create inserts a new evaluation.
func (r *EvaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	if evaluation.ID == "" {
		evaluation.ID = uuid.NewString()
	}
	if evaluation.SubmittedAt.IsZero() {
		evaluation.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO evaluations
	(id, internship_id, evaluator_id, evaluator_type, period, scale, technical, interpersonal, attendance, initiative,
	 report_quality, feedback, submitted_at)
	VALUES (:id, :internship_id, :evaluator_id, :evaluator_type, :period, :scale, :technical, :interpersonal, :attendance,
	 :initiative, :report_quality, :feedback, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, evaluation); err != nil {
		return fmt.Errorf("create evaluation: %w", err)
	}
	return nil
}

// ListByInternship returns evaluations oldest first.
func (r *EvaluationRepository) ListByInternship(ctx context.Context, internshipID string) ([]models.Evaluation, error) {
	const query = `SELECT id, internship_id, evaluator_id, evaluator_type, period, scale, technical, interpersonal,
       attendance, initiative, report_quality, feedback, submitted_at
FROM evaluations WHERE internship_id = $1 ORDER BY submitted_at, id`
	var evaluations []models.Evaluation
	if err := r.db.SelectContext(ctx, &evaluations, query, internshipID); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return evaluations, nil
}

// CountByInternship returns the number of evaluations recorded.
func (r *EvaluationRepository) CountByInternship(ctx context.Context, internshipID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM evaluations WHERE internship_id = $1`, internshipID); err != nil {
		return 0, fmt.Errorf("count evaluations: %w", err)
	}
	return count, nil
}
