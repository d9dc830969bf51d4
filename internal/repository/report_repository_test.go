package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

var reportRowColumns = []string{"id", "internship_id", "type", "title", "document_path", "checksum", "content_type",
	"size_bytes", "status", "score", "feedback", "reviewer_id", "submitted_by", "submitted_at", "reviewed_at"}

func TestReportRepositoryCreateDefaultsToSubmitted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO internship_reports")).WillReturnResult(sqlmock.NewResult(1, 1))

	report := &models.InternshipReport{InternshipID: "I1", Type: models.ReportWeekly, Title: "week 1", SubmittedBy: "S1"}
	require.NoError(t, repo.Create(context.Background(), report))
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, models.ReportSubmitted, report.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM internship_reports WHERE id = $1")).
		WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryReview(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(reportRowColumns).AddRow("RP1", "I1", "FINAL", "final", "reports/ab.pdf", "ab",
		"application/pdf", 2048, "REVIEWED", "17.5", "good", "SUP1", "S1", at.Add(-time.Hour), at)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $5 AND status = 'SUBMITTED'")).
		WithArgs(sqlmock.AnyArg(), "good", "SUP1", at, "RP1").WillReturnRows(rows)

	report, err := repo.Review(context.Background(), "RP1", "SUP1", decimal.RequireFromString("17.5"), "good", at)
	require.NoError(t, err)
	assert.Equal(t, models.ReportReviewed, report.Status)
	require.NotNil(t, report.Score)
	assert.True(t, decimal.RequireFromString("17.5").Equal(*report.Score))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryReviewTwiceIsStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $5 AND status = 'SUBMITTED'")).
		WillReturnRows(sqlmock.NewRows(reportRowColumns))

	_, err := repo.Review(context.Background(), "RP1", "SUP1", decimal.NewFromInt(12), "", time.Now())
	require.ErrorIs(t, err, ErrStaleWrite)
	require.NoError(t, mock.ExpectationsWereMet())
}
