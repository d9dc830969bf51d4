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

const applicationColumns = `id, offer_id, student_id, enterprise_id, university_id, start_date, end_date, motivation,
       status, version, reviewer_id, rejection_reason, submitted_at, reviewed_at, updated_at`

// ApplicationRepository persists applications and their lifecycle events.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a submitted application together with its creation event.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application, event *models.LifecycleEvent) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	app.UpdatedAt = app.SubmittedAt
	if app.Version == 0 {
		app.Version = 1
	}
	const query = `INSERT INTO applications
	(id, offer_id, student_id, enterprise_id, university_id, start_date, end_date, motivation, status, version,
	 reviewer_id, rejection_reason, submitted_at, reviewed_at, updated_at)
	VALUES (:id, :offer_id, :student_id, :enterprise_id, :university_id, :start_date, :end_date, :motivation, :status, :version,
	 :reviewer_id, :rejection_reason, :submitted_at, :reviewed_at, :updated_at)`
	return withTx(ctx, r.db, "create application", func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, app); err != nil {
			if _, ok := uniqueConstraint(err); ok {
				return ErrDuplicateApplication
			}
			return fmt.Errorf("create application: %w", err)
		}
		if event != nil {
			event.EntityID = app.ID
			event.Sequence = app.Version
		}
		return insertEvent(ctx, tx, event)
	})
}

// GetByID fetches an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications matching the filter, newest first.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + applicationColumns + ` FROM applications`)

	conditions := make([]string, 0, 3)
	if filter.OfferID != "" {
		args = append(args, filter.OfferID)
		conditions = append(conditions, fmt.Sprintf("offer_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
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
	builder.WriteString(fmt.Sprintf(" ORDER BY submitted_at DESC LIMIT %d OFFSET %d", limit, offset))

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// ApplicationTransitionParams describes one optimistic status change.
type ApplicationTransitionParams struct {
	ID              string
	OfferID         string
	From            models.ApplicationStatus
	To              models.ApplicationStatus
	ExpectedVersion int64
	ReviewerID      *string
	RejectionReason *string
	At              time.Time
	// ExclusiveAccept serialises acceptances of the offer and refuses the write
	// when another application of the same offer is already accepted.
	ExclusiveAccept bool
}

// Transition applies the status change and records its event atomically. It
// returns ErrStaleWrite when the stored status or version no longer matches.
func (r *ApplicationRepository) Transition(ctx context.Context, params ApplicationTransitionParams, event *models.LifecycleEvent) (*models.Application, error) {
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}
	var updated models.Application
	err := withTx(ctx, r.db, "application transition", func(tx *sqlx.Tx) error {
		if params.ExclusiveAccept {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "offer:"+params.OfferID); err != nil {
				return fmt.Errorf("lock offer %s: %w", params.OfferID, err)
			}
			var accepted int
			const countQuery = `SELECT COUNT(*) FROM applications WHERE offer_id = $1 AND status = 'ACCEPTED' AND id <> $2`
			if err := tx.GetContext(ctx, &accepted, countQuery, params.OfferID, params.ID); err != nil {
				return fmt.Errorf("count accepted applications: %w", err)
			}
			if accepted > 0 {
				return ErrOfferFilled
			}
		}

		query := `UPDATE applications
	SET status = $1, version = version + 1,
	    reviewer_id = COALESCE($2, reviewer_id),
	    rejection_reason = $3,
	    reviewed_at = CASE WHEN $2::text IS NULL THEN reviewed_at ELSE $4 END,
	    updated_at = $4
	WHERE id = $5 AND status = $6 AND version = $7
	RETURNING ` + applicationColumns
		err := tx.QueryRowxContext(ctx, query, params.To, params.ReviewerID, params.RejectionReason, params.At,
			params.ID, params.From, params.ExpectedVersion).StructScan(&updated)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrStaleWrite
			}
			return fmt.Errorf("update application status: %w", err)
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
