package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

// Sentinel errors returned by repositories. Services translate them into the
// public error taxonomy.
var (
	// ErrStaleWrite means an optimistic update matched no row: the status or version moved.
	ErrStaleWrite = errors.New("stale write")
	// ErrDuplicateApplication means the student already has an active application for the offer.
	ErrDuplicateApplication = errors.New("duplicate active application")
	// ErrOfferFilled means another application of the offer is already accepted.
	ErrOfferFilled = errors.New("offer already filled")
	// ErrCertificateExists means the internship already holds a certificate.
	ErrCertificateExists = errors.New("certificate already exists")
	// ErrCertificateNumberTaken means the allocated number is already used.
	ErrCertificateNumberTaken = errors.New("certificate number taken")
	// ErrVerificationCodeTaken means the drawn verification code is already used.
	ErrVerificationCodeTaken = errors.New("verification code taken")
	// ErrMultipleCertificates means storage holds more than one certificate for an internship.
	ErrMultipleCertificates = errors.New("multiple certificates for internship")
)

const uniqueViolationCode = "23505"

// uniqueConstraint returns the violated constraint name for a Postgres unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return pqErr.Constraint, true
	}
	return "", false
}

func withTx(ctx context.Context, db *sqlx.DB, label string, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	commit = true
	return nil
}

const insertEventQuery = `INSERT INTO lifecycle_events
	(id, entity_type, entity_id, sequence, old_status, new_status, actor_id, actor_role, reason, occurred_at)
	VALUES (:id, :entity_type, :entity_id, :sequence, :old_status, :new_status, :actor_id, :actor_role, :reason, :occurred_at)`

// insertEvent writes the lifecycle event in the same transaction as the status change.
func insertEvent(ctx context.Context, tx *sqlx.Tx, event *models.LifecycleEvent) error {
	if event == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if _, err := tx.NamedExecContext(ctx, insertEventQuery, event); err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}
	return nil
}

func clampLimit(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
