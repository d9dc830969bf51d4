package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

const reportColumns = `id, internship_id, type, title, document_path, checksum, content_type, size_bytes, status, score,
       feedback, reviewer_id, submitted_by, submitted_at, reviewed_at`

// ReportRepository persists internship report metadata. File bytes live in the document store.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a submitted report.
func (r *ReportRepository) Create(ctx context.Context, report *models.InternshipReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.SubmittedAt.IsZero() {
		report.SubmittedAt = time.Now().UTC()
	}
	if report.Status == "" {
		report.Status = models.ReportSubmitted
	}
	const query = `INSERT INTO internship_reports
	(id, internship_id, type, title, document_path, checksum, content_type, size_bytes, status, score, feedback,
	 reviewer_id, submitted_by, submitted_at, reviewed_at)
	VALUES (:id, :internship_id, :type, :title, :document_path, :checksum, :content_type, :size_bytes, :status, :score,
	 :feedback, :reviewer_id, :submitted_by, :submitted_at, :reviewed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create internship report: %w", err)
	}
	return nil
}

// GetByID fetches report metadata.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.InternshipReport, error) {
	query := `SELECT ` + reportColumns + ` FROM internship_reports WHERE id = $1`
	var report models.InternshipReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListByInternship returns reports in submission order.
func (r *ReportRepository) ListByInternship(ctx context.Context, internshipID string) ([]models.InternshipReport, error) {
	query := `SELECT ` + reportColumns + ` FROM internship_reports WHERE internship_id = $1 ORDER BY submitted_at, id`
	var reports []models.InternshipReport
	if err := r.db.SelectContext(ctx, &reports, query, internshipID); err != nil {
		return nil, fmt.Errorf("list internship reports: %w", err)
	}
	return reports, nil
}

// Review records the reviewer's score once; a second review returns ErrStaleWrite.
func (r *ReportRepository) Review(ctx context.Context, id, reviewerID string, score decimal.Decimal, feedback string, at time.Time) (*models.InternshipReport, error) {
	query := `UPDATE internship_reports
	SET status = 'REVIEWED', score = $1, feedback = $2, reviewer_id = $3, reviewed_at = $4
	WHERE id = $5 AND status = 'SUBMITTED'
	RETURNING ` + reportColumns
	var report models.InternshipReport
	if err := r.db.QueryRowxContext(ctx, query, score, feedback, reviewerID, at, id).StructScan(&report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("review internship report: %w", err)
	}
	return &report, nil
}
