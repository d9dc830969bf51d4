package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

var sagaRowColumns = []string{"id", "kind", "idempotency_key", "trigger_event_id", "status", "step", "attempts",
	"last_error", "created_at", "updated_at"}

func TestSagaRepositoryBeginCreates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSagaRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO saga_runs")).
		WillReturnRows(sqlmock.NewRows(sagaRowColumns).
			AddRow("G1", "INTERNSHIP_CREATION", "A1", "E1", "RUNNING", "STARTED", 0, nil, now, now))

	run, created, err := repo.Begin(context.Background(), models.SagaInternshipCreation, "A1", "E1")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.SagaRunning, run.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSagaRepositoryBeginReturnsExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSagaRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO saga_runs")).WillReturnRows(sqlmock.NewRows(sagaRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM saga_runs WHERE kind = $1 AND idempotency_key = $2")).
		WithArgs(models.SagaInternshipCreation, "A1").
		WillReturnRows(sqlmock.NewRows(sagaRowColumns).
			AddRow("G1", "INTERNSHIP_CREATION", "A1", "E1", "DONE", "NOTIFIED", 2, nil, now, now))

	run, created, err := repo.Begin(context.Background(), models.SagaInternshipCreation, "A1", "E9")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, models.SagaDone, run.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSagaRepositoryRestartRequiresStalled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSagaRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE saga_runs SET status = 'RUNNING'")).
		WithArgs(sqlmock.AnyArg(), "G1").
		WillReturnRows(sqlmock.NewRows(sagaRowColumns))

	_, err := repo.Restart(context.Background(), "G1")
	require.ErrorIs(t, err, ErrStaleWrite)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSagaRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSagaRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM saga_runs WHERE status IN ($1) AND kind = $2 ORDER BY updated_at DESC LIMIT 50 OFFSET 0")).
		WithArgs(models.SagaStalled, models.SagaCertification).
		WillReturnRows(sqlmock.NewRows(sagaRowColumns))

	runs, err := repo.List(context.Background(), models.SagaFilter{
		Status: []models.SagaStatus{models.SagaStalled}, Kind: models.SagaCertification,
	})
	require.NoError(t, err)
	require.Empty(t, runs)
	require.NoError(t, mock.ExpectationsWereMet())
}
