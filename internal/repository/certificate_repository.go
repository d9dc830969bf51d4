package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

const certificateColumns = `id, internship_id, certificate_number, verification_code, student_id, enterprise_id,
       university_id, overall_score, mention, document_path, document_checksum, issued_by, issued_at`

const (
	constraintCertificateNumber = "certificates_certificate_number_key"
	constraintVerificationCode  = "certificates_verification_code_key"
)

// CertificateRepository persists issued certificates. The internship_id unique
// constraint is the last line of defence against double issuance.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts the certificate and its ISSUED event. It returns
// ErrCertificateExists when the internship already holds one, and
// ErrCertificateNumberTaken or ErrVerificationCodeTaken on identifier collisions.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate, event *models.LifecycleEvent) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certificates
	(id, internship_id, certificate_number, verification_code, student_id, enterprise_id, university_id,
	 overall_score, mention, document_path, document_checksum, issued_by, issued_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (internship_id) DO NOTHING
	RETURNING id`

	return withTx(ctx, r.db, "create certificate", func(tx *sqlx.Tx) error {
		var insertedID string
		err := tx.QueryRowxContext(ctx, query,
			cert.ID, cert.InternshipID, cert.CertificateNumber, cert.VerificationCode, cert.StudentID,
			cert.EnterpriseID, cert.UniversityID, cert.OverallScore, cert.Mention, cert.DocumentPath,
			cert.DocumentChecksum, cert.IssuedBy, cert.IssuedAt).Scan(&insertedID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCertificateExists
			}
			if constraint, ok := uniqueConstraint(err); ok {
				switch constraint {
				case constraintCertificateNumber:
					return ErrCertificateNumberTaken
				case constraintVerificationCode:
					return ErrVerificationCodeTaken
				default:
					return ErrCertificateExists
				}
			}
			return fmt.Errorf("create certificate: %w", err)
		}
		if event != nil {
			event.EntityID = cert.ID
			event.Sequence = 1
		}
		return insertEvent(ctx, tx, event)
	})
}

// GetByID fetches a certificate by identifier.
func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	return &cert, nil
}

// GetByInternshipID returns the internship's certificate, sql.ErrNoRows when none
// exists, or ErrMultipleCertificates when storage holds more than one.
func (r *CertificateRepository) GetByInternshipID(ctx context.Context, internshipID string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE internship_id = $1 ORDER BY issued_at LIMIT 2`
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, internshipID); err != nil {
		return nil, fmt.Errorf("get certificate by internship: %w", err)
	}
	switch len(certs) {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		return &certs[0], nil
	default:
		return &certs[0], ErrMultipleCertificates
	}
}

// GetByVerificationCode resolves a public verification code.
func (r *CertificateRepository) GetByVerificationCode(ctx context.Context, code string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE verification_code = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, code); err != nil {
		return nil, err
	}
	return &cert, nil
}
