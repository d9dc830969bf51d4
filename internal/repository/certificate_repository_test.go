package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
)

var certificateRowColumns = []string{"id", "internship_id", "certificate_number", "verification_code", "student_id",
	"enterprise_id", "university_id", "overall_score", "mention", "document_path", "document_checksum", "issued_by", "issued_at"}

func sampleCertificate() *models.Certificate {
	return &models.Certificate{
		InternshipID:      "I1",
		CertificateNumber: "UNIV1-2025-000001",
		VerificationCode:  "ABCDEFGHJKLMNPQR",
		StudentID:         "S1",
		OverallScore:      decimal.RequireFromString("13.75"),
		Mention:           scoring.MentionC,
		IssuedBy:          "system",
	}
}

func TestCertificateRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("C1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lifecycle_events")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cert := sampleCertificate()
	event := &models.LifecycleEvent{EntityType: models.EntityCertificate, NewStatus: models.CertificateIssued}
	require.NoError(t, repo.Create(context.Background(), cert, event))
	require.Equal(t, cert.ID, event.EntityID)
	require.EqualValues(t, 1, event.Sequence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreateExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO certificates")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleCertificate(), nil)
	require.ErrorIs(t, err, ErrCertificateExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreateMapsIdentifierCollisions(t *testing.T) {
	cases := map[string]error{
		"certificates_certificate_number_key": ErrCertificateNumberTaken,
		"certificates_verification_code_key":  ErrVerificationCodeTaken,
	}
	for constraint, want := range cases {
		t.Run(constraint, func(t *testing.T) {
			db, mock, cleanup := newRepoMock(t)
			defer cleanup()
			repo := NewCertificateRepository(db)

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO certificates")).
				WillReturnError(&pq.Error{Code: "23505", Constraint: constraint})
			mock.ExpectRollback()

			err := repo.Create(context.Background(), sampleCertificate(), nil)
			require.ErrorIs(t, err, want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCertificateRepositoryGetByInternshipID(t *testing.T) {
	now := time.Now().UTC()
	row := func(rows *sqlmock.Rows, id string) *sqlmock.Rows {
		return rows.AddRow(id, "I1", "UNIV1-2025-00000"+id[1:], "CODE"+id, "S1", "E1", "U1", "16.35", "A", "p", "c", "system", now)
	}

	t.Run("none", func(t *testing.T) {
		db, mock, cleanup := newRepoMock(t)
		defer cleanup()
		mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE internship_id = $1")).
			WithArgs("I1").WillReturnRows(sqlmock.NewRows(certificateRowColumns))
		_, err := NewCertificateRepository(db).GetByInternshipID(context.Background(), "I1")
		require.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("one", func(t *testing.T) {
		db, mock, cleanup := newRepoMock(t)
		defer cleanup()
		mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE internship_id = $1")).
			WithArgs("I1").WillReturnRows(row(sqlmock.NewRows(certificateRowColumns), "C1"))
		cert, err := NewCertificateRepository(db).GetByInternshipID(context.Background(), "I1")
		require.NoError(t, err)
		require.Equal(t, scoring.MentionA, cert.Mention)
		require.True(t, cert.OverallScore.Equal(decimal.RequireFromString("16.35")))
	})

	t.Run("many", func(t *testing.T) {
		db, mock, cleanup := newRepoMock(t)
		defer cleanup()
		rows := row(row(sqlmock.NewRows(certificateRowColumns), "C1"), "C2")
		mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE internship_id = $1")).
			WithArgs("I1").WillReturnRows(rows)
		_, err := NewCertificateRepository(db).GetByInternshipID(context.Background(), "I1")
		require.ErrorIs(t, err, ErrMultipleCertificates)
	})
}

func TestCertificateSequenceRepositoryNext(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateSequenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO certificate_sequences")).
		WithArgs("UNIV1", 2025).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))

	value, err := repo.Next(context.Background(), "UNIV1", 2025)
	require.NoError(t, err)
	require.EqualValues(t, 42, value)
	require.NoError(t, mock.ExpectationsWereMet())
}
