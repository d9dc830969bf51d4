package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

const internshipColumns = `id, application_id, student_id, enterprise_id, offer_id, university_id, supervisor_id,
       academic_supervisor_id, start_date, end_date, actual_end_date, status, termination_reason, early_completion,
       version, created_at, updated_at`

// InternshipRepository persists internships, one per accepted application.
type InternshipRepository struct {
	db *sqlx.DB
}

// NewInternshipRepository constructs the repository.
func NewInternshipRepository(db *sqlx.DB) *InternshipRepository {
	return &InternshipRepository{db: db}
}

// CreateFromApplication inserts the internship unless one already references the
// application, in which case the existing row is returned with created=false.
func (r *InternshipRepository) CreateFromApplication(ctx context.Context, internship *models.Internship, event *models.LifecycleEvent) (*models.Internship, bool, error) {
	if internship.ID == "" {
		internship.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if internship.CreatedAt.IsZero() {
		internship.CreatedAt = now
	}
	internship.UpdatedAt = internship.CreatedAt
	internship.Version = 1
	if internship.Status == "" {
		internship.Status = models.InternshipPending
	}

	const query = `INSERT INTO internships
	(id, application_id, student_id, enterprise_id, offer_id, university_id, supervisor_id, academic_supervisor_id,
	 start_date, end_date, status, early_completion, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13, $14)
	ON CONFLICT (application_id) DO NOTHING
	RETURNING id`

	created := false
	err := withTx(ctx, r.db, "create internship", func(tx *sqlx.Tx) error {
		var insertedID string
		err := tx.QueryRowxContext(ctx, query,
			internship.ID, internship.ApplicationID, internship.StudentID, internship.EnterpriseID, internship.OfferID,
			internship.UniversityID, internship.SupervisorID, internship.AcademicSupervisorID,
			internship.StartDate, internship.EndDate, internship.Status, internship.Version,
			internship.CreatedAt, internship.UpdatedAt).Scan(&insertedID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("create internship: %w", err)
		}
		created = true
		if event != nil {
			event.EntityID = internship.ID
			event.Sequence = internship.Version
		}
		return insertEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return internship, true, nil
	}
	existing, err := r.GetByApplicationID(ctx, internship.ApplicationID)
	if err != nil {
		return nil, false, fmt.Errorf("load internship for application %s: %w", internship.ApplicationID, err)
	}
	return existing, false, nil
}

// GetByID fetches an internship by identifier.
func (r *InternshipRepository) GetByID(ctx context.Context, id string) (*models.Internship, error) {
	query := `SELECT ` + internshipColumns + ` FROM internships WHERE id = $1`
	var internship models.Internship
	if err := r.db.GetContext(ctx, &internship, query, id); err != nil {
		return nil, err
	}
	return &internship, nil
}

// GetByApplicationID resolves the internship created from an application.
func (r *InternshipRepository) GetByApplicationID(ctx context.Context, applicationID string) (*models.Internship, error) {
	query := `SELECT ` + internshipColumns + ` FROM internships WHERE application_id = $1`
	var internship models.Internship
	if err := r.db.GetContext(ctx, &internship, query, applicationID); err != nil {
		return nil, err
	}
	return &internship, nil
}

// List returns internships matching the filter.
func (r *InternshipRepository) List(ctx context.Context, filter models.InternshipFilter) ([]models.Internship, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + internshipColumns + ` FROM internships`)

	conditions := make([]string, 0, 4)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.EnterpriseID != "" {
		args = append(args, filter.EnterpriseID)
		conditions = append(conditions, fmt.Sprintf("enterprise_id = $%d", len(args)))
	}
	if filter.SupervisorID != "" {
		args = append(args, filter.SupervisorID)
		conditions = append(conditions, fmt.Sprintf("(supervisor_id = $%d OR academic_supervisor_id = $%d)", len(args), len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	limit, offset := clampLimit(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" ORDER BY start_date DESC, id LIMIT %d OFFSET %d", limit, offset))

	var internships []models.Internship
	if err := r.db.SelectContext(ctx, &internships, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list internships: %w", err)
	}
	return internships, nil
}

// InternshipTransitionParams describes one optimistic status change.
type InternshipTransitionParams struct {
	ID                string
	From              models.InternshipStatus
	To                models.InternshipStatus
	ExpectedVersion   int64
	ActualEndDate     *time.Time
	TerminationReason *string
	EarlyCompletion   bool
	At                time.Time
}

// Transition applies the status change and records its event atomically.
func (r *InternshipRepository) Transition(ctx context.Context, params InternshipTransitionParams, event *models.LifecycleEvent) (*models.Internship, error) {
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}
	query := `UPDATE internships
	SET status = $1, version = version + 1,
	    actual_end_date = COALESCE($2, actual_end_date),
	    termination_reason = COALESCE($3, termination_reason),
	    early_completion = early_completion OR $4,
	    updated_at = $5
	WHERE id = $6 AND status = $7 AND version = $8
	RETURNING ` + internshipColumns

	var updated models.Internship
	err := withTx(ctx, r.db, "internship transition", func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, query, params.To, params.ActualEndDate, params.TerminationReason,
			params.EarlyCompletion, params.At, params.ID, params.From, params.ExpectedVersion).StructScan(&updated)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrStaleWrite
			}
			return fmt.Errorf("update internship status: %w", err)
		}
		if event != nil {
			event.Sequence = updated.Version
		}
		return insertEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// AssignSupervisor sets the company or academic supervisor while the internship
// is not terminal and still at expectedVersion. The version bump makes a
// concurrent transition read from the older row lose with ErrStaleWrite.
func (r *InternshipRepository) AssignSupervisor(ctx context.Context, id string, kind models.SupervisorKind, supervisorID string, expectedVersion int64) (*models.Internship, error) {
	column := "supervisor_id"
	if kind == models.SupervisorAcademic {
		column = "academic_supervisor_id"
	}
	query := `UPDATE internships SET ` + column + ` = $1, version = version + 1, updated_at = $2
	WHERE id = $3 AND version = $4 AND status IN ('PENDING', 'ONGOING', 'SUSPENDED')
	RETURNING ` + internshipColumns
	var updated models.Internship
	if err := r.db.QueryRowxContext(ctx, query, supervisorID, time.Now().UTC(), id, expectedVersion).StructScan(&updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("assign supervisor: %w", err)
	}
	return &updated, nil
}
