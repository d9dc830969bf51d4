package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/retry"
)

const tracerName = "github.com/noah-isme/internship-lifecycle-api/internal/service"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// EventPublisher hands committed lifecycle events to the coordinator.
type EventPublisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
}

// PublisherFunc adapts a function to EventPublisher. It lets services be built
// before the coordinator that consumes their events.
type PublisherFunc func(ctx context.Context, event models.LifecycleEvent) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, event models.LifecycleEvent) error {
	return f(ctx, event)
}

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func newEvent(entity models.EntityType, entityID, from, to string, actor models.Actor, reason *string, at time.Time) *models.LifecycleEvent {
	return &models.LifecycleEvent{
		EntityType: entity,
		EntityID:   entityID,
		OldStatus:  from,
		NewStatus:  to,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Reason:     reason,
		OccurredAt: at,
	}
}

// publishCommitted forwards an event after its transaction committed. A publish
// failure is logged only: the outbox sweeper redelivers undispatched events.
func publishCommitted(ctx context.Context, publisher EventPublisher, logger *zap.Logger, event *models.LifecycleEvent) {
	if publisher == nil || event == nil {
		return
	}
	if err := publisher.Publish(ctx, *event); err != nil {
		logger.Warn("publish lifecycle event deferred to sweeper",
			zap.String("event_id", event.ID),
			zap.String("entity_type", string(event.EntityType)),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}

func illegalTransition(entity models.EntityType, id, from, to string) error {
	return appErrors.Clonef(appErrors.ErrIllegalTransition, "%s %s cannot move from %s to %s",
		strings.ToLower(string(entity)), id, from, to)
}

// notFoundOr maps sql.ErrNoRows to a NotFound error and wraps everything else as internal.
func notFoundOr(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clonef(appErrors.ErrNotFound, "%s %s not found", what, id)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+what)
}

func staleWrite(entity models.EntityType, id string) error {
	return appErrors.Clonef(appErrors.ErrConflict, "%s %s was modified concurrently", strings.ToLower(string(entity)), id)
}

func internal(err error, msg string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, repository.ErrStaleWrite) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, msg)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

func stringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, appErrors.Clonef(appErrors.ErrValidation, "%s must be a YYYY-MM-DD date", field)
	}
	return t.UTC(), nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dependencyRetrier decorates r so every retry against dependency is counted and logged.
func dependencyRetrier(r *retry.Retrier, dependency string, metrics *MetricsService, logger *zap.Logger) *retry.Retrier {
	if r == nil {
		r = retry.New()
	}
	return r.With(retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		metrics.RecordDependencyRetry(dependency)
		logger.Warn("retrying dependency call",
			zap.String("dependency", dependency),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}))
}

func splitStatuses(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NotificationDispatcher enqueues notifications for the external delivery service.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notification models.Notification) error
}

// notifyBestEffort dispatches informational notifications that are not part of a
// coordinated sequence. Failures are logged and dropped.
func notifyBestEffort(ctx context.Context, dispatcher NotificationDispatcher, logger *zap.Logger, n models.Notification) {
	if dispatcher == nil {
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := dispatcher.Dispatch(ctx, n); err != nil {
		logger.Warn("notification dropped",
			zap.String("type", string(n.Type)),
			zap.String("entity_id", n.EntityID),
			zap.Error(err))
	}
}
