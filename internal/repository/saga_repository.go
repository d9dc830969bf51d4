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

const sagaColumns = `id, kind, idempotency_key, trigger_event_id, status, step, attempts, last_error, created_at, updated_at`

// SagaRepository persists coordinator progress keyed by (kind, idempotency key).
type SagaRepository struct {
	db *sqlx.DB
}

// NewSagaRepository constructs the repository.
func NewSagaRepository(db *sqlx.DB) *SagaRepository {
	return &SagaRepository{db: db}
}

// Begin returns the run for (kind, key), creating it when absent. created reports
// whether this call inserted the row.
func (r *SagaRepository) Begin(ctx context.Context, kind models.SagaKind, key, triggerEventID string) (*models.SagaRun, bool, error) {
	now := time.Now().UTC()
	run := models.SagaRun{
		ID:             uuid.NewString(),
		Kind:           kind,
		IdempotencyKey: key,
		TriggerEventID: triggerEventID,
		Status:         models.SagaRunning,
		Step:           models.SagaStepStarted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	query := `INSERT INTO saga_runs (id, kind, idempotency_key, trigger_event_id, status, step, attempts, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	ON CONFLICT (kind, idempotency_key) DO NOTHING
	RETURNING ` + sagaColumns
	var stored models.SagaRun
	err := r.db.QueryRowxContext(ctx, query, run.ID, run.Kind, run.IdempotencyKey, run.TriggerEventID, run.Status,
		run.Step, run.CreatedAt, run.UpdatedAt).StructScan(&stored)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("begin saga: %w", err)
	}
	existing, err := r.GetByKey(ctx, kind, key)
	if err != nil {
		return nil, false, fmt.Errorf("load existing saga: %w", err)
	}
	return existing, false, nil
}

// GetByID fetches a run.
func (r *SagaRepository) GetByID(ctx context.Context, id string) (*models.SagaRun, error) {
	query := `SELECT ` + sagaColumns + ` FROM saga_runs WHERE id = $1`
	var run models.SagaRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetByKey fetches the run for (kind, key).
func (r *SagaRepository) GetByKey(ctx context.Context, kind models.SagaKind, key string) (*models.SagaRun, error) {
	query := `SELECT ` + sagaColumns + ` FROM saga_runs WHERE kind = $1 AND idempotency_key = $2`
	var run models.SagaRun
	if err := r.db.GetContext(ctx, &run, query, kind, key); err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateProgress records the step reached, the resulting status and the last error.
func (r *SagaRepository) UpdateProgress(ctx context.Context, id string, status models.SagaStatus, step string, lastError *string) error {
	const query = `UPDATE saga_runs
	SET status = $1, step = $2, last_error = $3, attempts = attempts + 1, updated_at = $4
	WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, status, step, lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update saga progress: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Restart moves a STALLED run back to RUNNING; any other status returns ErrStaleWrite.
func (r *SagaRepository) Restart(ctx context.Context, id string) (*models.SagaRun, error) {
	query := `UPDATE saga_runs SET status = 'RUNNING', updated_at = $1
	WHERE id = $2 AND status = 'STALLED'
	RETURNING ` + sagaColumns
	var run models.SagaRun
	if err := r.db.QueryRowxContext(ctx, query, time.Now().UTC(), id).StructScan(&run); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("restart saga: %w", err)
	}
	return &run, nil
}

// List returns runs for the operator console, most recently updated first.
func (r *SagaRepository) List(ctx context.Context, filter models.SagaFilter) ([]models.SagaRun, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + sagaColumns + ` FROM saga_runs`)

	conditions := make([]string, 0, 2)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	limit, offset := clampLimit(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" ORDER BY updated_at DESC LIMIT %d OFFSET %d", limit, offset))

	var runs []models.SagaRun
	if err := r.db.SelectContext(ctx, &runs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list sagas: %w", err)
	}
	return runs, nil
}

// ListStaleRunning returns RUNNING runs not touched since the cutoff.
func (r *SagaRepository) ListStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]models.SagaRun, error) {
	limit, _ = clampLimit(limit, 0)
	query := `SELECT ` + sagaColumns + ` FROM saga_runs WHERE status = 'RUNNING' AND updated_at < $1
	ORDER BY updated_at LIMIT $2`
	var runs []models.SagaRun
	if err := r.db.SelectContext(ctx, &runs, query, olderThan, limit); err != nil {
		return nil, fmt.Errorf("list stale sagas: %w", err)
	}
	return runs, nil
}
