package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

var evaluationRowColumns = []string{"id", "internship_id", "evaluator_id", "evaluator_type", "period", "scale", "technical",
	"interpersonal", "attendance", "initiative", "report_quality", "feedback", "submitted_at"}

func TestEvaluationRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluations")).WillReturnResult(sqlmock.NewResult(1, 1))

	evaluation := &models.Evaluation{
		InternshipID:  "I1",
		EvaluatorID:   "R1",
		EvaluatorType: models.EvaluatorEnterprise,
		Scale:         models.EvaluationScale20,
		Technical:     decimal.NewFromInt(18),
		Interpersonal: decimal.NewFromInt(16),
		Attendance:    decimal.NewFromInt(15),
		Initiative:    decimal.NewFromInt(14),
		ReportQuality: decimal.NewFromInt(17),
	}
	require.NoError(t, repo.Create(context.Background(), evaluation))
	assert.NotEmpty(t, evaluation.ID)
	assert.False(t, evaluation.SubmittedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryCreateWrapsErrors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluations")).WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), &models.Evaluation{InternshipID: "I1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create evaluation")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryListByInternship(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(evaluationRowColumns).
		AddRow("E1", "I1", "R1", "ENTERPRISE", "2025-05", 20, "18", "16", "15", "14", "17", "solid", at).
		AddRow("E2", "I1", "R2", "UNIVERSITY", "2025-05", 10, "7", "8", "9", "6", "7", "", at.Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE internship_id = $1 ORDER BY submitted_at, id")).
		WithArgs("I1").WillReturnRows(rows)

	evaluations, err := repo.ListByInternship(context.Background(), "I1")
	require.NoError(t, err)
	require.Len(t, evaluations, 2)
	assert.Equal(t, models.EvaluatorUniversity, evaluations[1].EvaluatorType)
	assert.Equal(t, 10, evaluations[1].Scale)
	assert.True(t, decimal.NewFromInt(18).Equal(evaluations[0].Technical))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryCountByInternship(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM evaluations WHERE internship_id = $1")).
		WithArgs("I1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByInternship(context.Background(), "I1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
