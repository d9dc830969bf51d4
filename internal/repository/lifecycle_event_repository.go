package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

const eventColumns = `id, entity_type, entity_id, sequence, old_status, new_status, actor_id, actor_role, reason,
       occurred_at, dispatched_at`

// LifecycleEventRepository reads the event log and tracks outbox dispatch.
// Events are inserted by the entity repositories inside their transactions.
type LifecycleEventRepository struct {
	db *sqlx.DB
}

// NewLifecycleEventRepository constructs the repository.
func NewLifecycleEventRepository(db *sqlx.DB) *LifecycleEventRepository {
	return &LifecycleEventRepository{db: db}
}

// GetByID fetches one event.
func (r *LifecycleEventRepository) GetByID(ctx context.Context, id string) (*models.LifecycleEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM lifecycle_events WHERE id = $1`
	var event models.LifecycleEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// List pages through the feed ordered by (occurred_at, id). The cursor is exclusive.
func (r *LifecycleEventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.LifecycleEvent, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + eventColumns + ` FROM lifecycle_events`)

	conditions := make([]string, 0, 3)
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if !filter.AfterCursor.IsZero() {
		args = append(args, filter.AfterCursor, filter.AfterID)
		conditions = append(conditions, fmt.Sprintf("(occurred_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	limit, _ := clampLimit(filter.Limit, 0)
	builder.WriteString(fmt.Sprintf(" ORDER BY occurred_at, id LIMIT %d", limit))

	var events []models.LifecycleEvent
	if err := r.db.SelectContext(ctx, &events, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list lifecycle events: %w", err)
	}
	return events, nil
}

// ListByEntity returns the full history of one entity in sequence order.
func (r *LifecycleEventRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.LifecycleEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM lifecycle_events WHERE entity_type = $1 AND entity_id = $2 ORDER BY sequence`
	var events []models.LifecycleEvent
	if err := r.db.SelectContext(ctx, &events, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("list entity events: %w", err)
	}
	return events, nil
}

// ListUndispatched returns events older than the cutoff the coordinator has not handled yet.
func (r *LifecycleEventRepository) ListUndispatched(ctx context.Context, olderThan time.Time, limit int) ([]models.LifecycleEvent, error) {
	limit, _ = clampLimit(limit, 0)
	query := `SELECT ` + eventColumns + ` FROM lifecycle_events
	WHERE dispatched_at IS NULL AND occurred_at < $1
	ORDER BY occurred_at, id LIMIT $2`
	var events []models.LifecycleEvent
	if err := r.db.SelectContext(ctx, &events, query, olderThan, limit); err != nil {
		return nil, fmt.Errorf("list undispatched events: %w", err)
	}
	return events, nil
}

// MarkDispatched stamps the event as handled. Marking twice keeps the first stamp.
func (r *LifecycleEventRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE lifecycle_events SET dispatched_at = $1 WHERE id = $2 AND dispatched_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("mark event dispatched: %w", err)
	}
	return nil
}
