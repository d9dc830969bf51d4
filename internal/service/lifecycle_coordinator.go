package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/jobs"
	"github.com/noah-isme/internship-lifecycle-api/pkg/retry"
)

// JobTypeLifecycleEvent is the queue job type carrying a models.LifecycleEvent.
const JobTypeLifecycleEvent = "lifecycle_event"

type sagaStore interface {
	Begin(ctx context.Context, kind models.SagaKind, key, triggerEventID string) (*models.SagaRun, bool, error)
	GetByID(ctx context.Context, id string) (*models.SagaRun, error)
	UpdateProgress(ctx context.Context, id string, status models.SagaStatus, step string, lastError *string) error
	Restart(ctx context.Context, id string) (*models.SagaRun, error)
	List(ctx context.Context, filter models.SagaFilter) ([]models.SagaRun, error)
}

type eventStore interface {
	GetByID(ctx context.Context, id string) (*models.LifecycleEvent, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
}

type applicationReader interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
}

type internshipCreator interface {
	CreateFromApplication(ctx context.Context, app *models.Application, actor models.Actor) (*models.Internship, bool, error)
}

type certificateIssuer interface {
	Issue(ctx context.Context, internshipID string, actor models.Actor) (*models.Certificate, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// LifecycleCoordinatorDeps groups the collaborators of the coordinator.
type LifecycleCoordinatorDeps struct {
	Sagas        sagaStore
	Events       eventStore
	Applications applicationReader
	Internships  internshipReader
	Creator      internshipCreator
	Issuer       certificateIssuer
	Notifier     NotificationDispatcher
	Retrier      *retry.Retrier
	Metrics      *MetricsService
	Logger       *zap.Logger
}

// LifecycleCoordinator turns lifecycle events into coordinated sequences. Every
// step re-checks stored state, so redelivering the same event is harmless.
type LifecycleCoordinator struct {
	sagas        sagaStore
	events       eventStore
	applications applicationReader
	internships  internshipReader
	creator      internshipCreator
	issuer       certificateIssuer
	notifier     NotificationDispatcher
	retrier      *retry.Retrier
	metrics      *MetricsService
	logger       *zap.Logger
	now          Clock

	mu    sync.RWMutex
	queue jobEnqueuer
}

// NewLifecycleCoordinator constructs the coordinator. AttachQueue must be called
// before Publish hands work to background workers; without a queue events are
// handled inline.
func NewLifecycleCoordinator(deps LifecycleCoordinatorDeps) *LifecycleCoordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleCoordinator{
		sagas:        deps.Sagas,
		events:       deps.Events,
		applications: deps.Applications,
		internships:  deps.Internships,
		creator:      deps.Creator,
		issuer:       deps.Issuer,
		notifier:     deps.Notifier,
		retrier:      dependencyRetrier(deps.Retrier, "notification", deps.Metrics, logger),
		metrics:      deps.Metrics,
		logger:       logger,
		now:          systemClock,
	}
}

// AttachQueue routes published events through the worker pool.
func (c *LifecycleCoordinator) AttachQueue(queue jobEnqueuer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = queue
}

// Publish implements EventPublisher.
func (c *LifecycleCoordinator) Publish(ctx context.Context, event models.LifecycleEvent) error {
	c.mu.RLock()
	queue := c.queue
	c.mu.RUnlock()
	if queue == nil {
		return c.Handle(ctx, event)
	}
	return queue.Enqueue(ctx, jobs.Job{ID: event.ID, Type: JobTypeLifecycleEvent, Payload: event})
}

// HandleJob is the queue handler.
func (c *LifecycleCoordinator) HandleJob(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.LifecycleEvent)
	if !ok {
		return retry.Permanent(fmt.Errorf("job %s carries %T, expected lifecycle event", job.ID, job.Payload))
	}
	return c.Handle(ctx, event)
}

// Handle reacts to one lifecycle event. An error means the outcome could not be
// recorded and the event must be delivered again.
func (c *LifecycleCoordinator) Handle(ctx context.Context, event models.LifecycleEvent) error {
	ctx, span := tracer().Start(ctx, "coordinator.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("entity.type", string(event.EntityType)),
		attribute.String("entity.id", event.EntityID),
		attribute.String("event.new_status", event.NewStatus),
	)

	kind, key, ok := sagaFor(event)
	if !ok {
		c.announce(ctx, event)
		return c.markDispatched(ctx, event)
	}
	span.SetAttributes(attribute.String("saga.kind", string(kind)))

	run, _, err := c.sagas.Begin(ctx, kind, key, event.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin %s saga for %s: %w", kind, key, err)
	}
	if run.Status != models.SagaRunning {
		return c.markDispatched(ctx, event)
	}

	if err := c.run(ctx, run, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "saga stalled")
		msg := err.Error()
		if uerr := c.sagas.UpdateProgress(ctx, run.ID, models.SagaStalled, run.Step, &msg); uerr != nil {
			return fmt.Errorf("record stalled saga %s: %w", run.ID, uerr)
		}
		c.metrics.RecordSaga(string(kind), string(models.SagaStalled))
		c.logger.Error("saga stalled",
			zap.String("saga_id", run.ID),
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.String("step", run.Step),
			zap.Error(err))
		return c.markDispatched(ctx, event)
	}

	if err := c.sagas.UpdateProgress(ctx, run.ID, models.SagaDone, run.Step, nil); err != nil {
		return fmt.Errorf("record finished saga %s: %w", run.ID, err)
	}
	c.metrics.RecordSaga(string(kind), string(models.SagaDone))
	c.logger.Info("saga finished", zap.String("saga_id", run.ID), zap.String("kind", string(kind)), zap.String("key", key))
	return c.markDispatched(ctx, event)
}

func (c *LifecycleCoordinator) run(ctx context.Context, run *models.SagaRun, event models.LifecycleEvent) error {
	switch run.Kind {
	case models.SagaInternshipCreation:
		return c.runInternshipCreation(ctx, run)
	case models.SagaCertification:
		return c.runCertification(ctx, run)
	case models.SagaTerminationNotice:
		return c.runTerminationNotice(ctx, run, event)
	default:
		return fmt.Errorf("unknown saga kind %s", run.Kind)
	}
}

// runInternshipCreation: ACCEPTED application → exactly one PENDING internship → notification.
func (c *LifecycleCoordinator) runInternshipCreation(ctx context.Context, run *models.SagaRun) error {
	app, err := c.applications.GetByID(ctx, run.IdempotencyKey)
	if err != nil {
		return notFoundOr(err, "application", run.IdempotencyKey)
	}
	internship, _, err := c.creator.CreateFromApplication(ctx, app, models.SystemActor)
	if err != nil {
		return err
	}
	if err := c.advance(ctx, run, models.SagaStepInternship); err != nil {
		return err
	}
	if run.Step == models.SagaStepNotified {
		return nil
	}
	data := map[string]string{"application_id": app.ID, "internship_id": internship.ID, "student_id": app.StudentID}
	if err := c.notify(ctx, run, models.NotificationApplicationAccepted, models.EntityApplication, app.ID, data); err != nil {
		return err
	}
	if err := c.notify(ctx, run, models.NotificationInternshipCreated, models.EntityInternship, internship.ID, data); err != nil {
		return err
	}
	return c.advance(ctx, run, models.SagaStepNotified)
}

// runCertification: COMPLETED internship → certificate → notifications.
func (c *LifecycleCoordinator) runCertification(ctx context.Context, run *models.SagaRun) error {
	cert, err := c.issuer.Issue(ctx, run.IdempotencyKey, models.SystemActor)
	if err != nil {
		return err
	}
	if err := c.advance(ctx, run, models.SagaStepCertificate); err != nil {
		return err
	}
	if run.Step == models.SagaStepNotified {
		return nil
	}
	data := map[string]string{
		"internship_id":      run.IdempotencyKey,
		"certificate_id":     cert.ID,
		"certificate_number": cert.CertificateNumber,
		"mention":            string(cert.Mention),
		"student_id":         cert.StudentID,
	}
	if err := c.notify(ctx, run, models.NotificationInternshipCompleted, models.EntityInternship, run.IdempotencyKey, data); err != nil {
		return err
	}
	if err := c.notify(ctx, run, models.NotificationCertificateIssued, models.EntityCertificate, cert.ID, data); err != nil {
		return err
	}
	return c.advance(ctx, run, models.SagaStepNotified)
}

// runTerminationNotice: TERMINATED internship → termination notification, no certificate.
func (c *LifecycleCoordinator) runTerminationNotice(ctx context.Context, run *models.SagaRun, event models.LifecycleEvent) error {
	if run.Step == models.SagaStepNotified {
		return nil
	}
	data := map[string]string{"internship_id": run.IdempotencyKey, "reason": derefString(event.Reason)}
	if err := c.notify(ctx, run, models.NotificationInternshipTerminated, models.EntityInternship, run.IdempotencyKey, data); err != nil {
		return err
	}
	return c.advance(ctx, run, models.SagaStepNotified)
}

// advance records step as completed unless the run already got further.
func (c *LifecycleCoordinator) advance(ctx context.Context, run *models.SagaRun, step string) error {
	if stepRank(run.Step) >= stepRank(step) {
		return nil
	}
	if err := c.sagas.UpdateProgress(ctx, run.ID, models.SagaRunning, step, nil); err != nil {
		return fmt.Errorf("record saga %s step %s: %w", run.ID, step, err)
	}
	run.Step = step
	return nil
}

func (c *LifecycleCoordinator) notify(ctx context.Context, run *models.SagaRun, typ models.NotificationType,
	entity models.EntityType, entityID string, data map[string]string) error {
	if c.notifier == nil {
		return nil
	}
	notification := models.Notification{
		ID:         NotificationID(run.Kind, run.IdempotencyKey, typ),
		Type:       typ,
		EntityType: entity,
		EntityID:   entityID,
		Data:       data,
		CreatedAt:  c.now(),
	}
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.notifier.Dispatch(ctx, notification); err != nil {
			if appErrors.IsDependencyUnavailable(err) {
				return err
			}
			return retry.Retryable(err)
		}
		return nil
	})
}

// announce relays events outside any sequence as best-effort notifications.
func (c *LifecycleCoordinator) announce(ctx context.Context, event models.LifecycleEvent) {
	if event.EntityType == models.EntityInternship && event.NewStatus == string(models.InternshipOngoing) &&
		event.OldStatus == string(models.InternshipPending) {
		e := event
		notifyBestEffort(ctx, c.notifier, c.logger, models.Notification{
			ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte("event:"+event.ID)).String(),
			Type:       models.NotificationInternshipStarted,
			EntityType: models.EntityInternship,
			EntityID:   event.EntityID,
			Event:      &e,
			CreatedAt:  c.now(),
		})
	}
}

func (c *LifecycleCoordinator) markDispatched(ctx context.Context, event models.LifecycleEvent) error {
	if event.ID == "" || c.events == nil {
		return nil
	}
	if err := c.events.MarkDispatched(ctx, event.ID, c.now()); err != nil {
		return fmt.Errorf("mark event %s dispatched: %w", event.ID, err)
	}
	return nil
}

// RetrySaga puts a STALLED saga back to RUNNING and handles its trigger event again.
func (c *LifecycleCoordinator) RetrySaga(ctx context.Context, id string, actor models.Actor) (*models.SagaRun, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may retry sagas")
	}
	current, err := c.sagas.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "saga", id)
	}
	if current.Status != models.SagaStalled {
		return nil, appErrors.Clonef(appErrors.ErrConflict, "saga %s is %s; only STALLED sagas can be retried", id, current.Status)
	}
	run, err := c.sagas.Restart(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, appErrors.Clonef(appErrors.ErrConflict, "saga %s was restarted concurrently", id)
		}
		return nil, internal(err, "failed to restart saga "+id)
	}
	event, err := c.events.GetByID(ctx, run.TriggerEventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.logger.Error("saga trigger event missing", zap.String("saga_id", id), zap.String("event_id", run.TriggerEventID))
			return nil, appErrors.Clonef(appErrors.ErrInvariantViolation, "saga %s trigger event %s is missing", id, run.TriggerEventID)
		}
		return nil, internal(err, "failed to load saga trigger event")
	}
	c.logger.Info("saga retry requested", zap.String("saga_id", id), zap.String("actor_id", actor.ID))
	if err := c.Handle(ctx, *event); err != nil {
		return nil, internal(err, "failed to re-run saga "+id)
	}
	updated, err := c.sagas.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "saga", id)
	}
	return updated, nil
}

// ListSagas returns saga runs for the operator console.
func (c *LifecycleCoordinator) ListSagas(ctx context.Context, query dto.SagaQuery, actor models.Actor) ([]models.SagaRun, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may list sagas")
	}
	filter := models.SagaFilter{Kind: models.SagaKind(query.Kind), Limit: query.Limit, Offset: query.Offset}
	for _, raw := range splitStatuses(query.Status) {
		status := models.SagaStatus(raw)
		switch status {
		case models.SagaRunning, models.SagaDone, models.SagaStalled:
			filter.Status = append(filter.Status, status)
		default:
			return nil, appErrors.Clonef(appErrors.ErrValidation, "unknown saga status %q", raw)
		}
	}
	runs, err := c.sagas.List(ctx, filter)
	if err != nil {
		return nil, internal(err, "failed to list sagas")
	}
	return runs, nil
}

// sagaFor maps a lifecycle event to the sequence it triggers.
func sagaFor(event models.LifecycleEvent) (models.SagaKind, string, bool) {
	switch {
	case event.EntityType == models.EntityApplication && event.NewStatus == string(models.ApplicationAccepted):
		return models.SagaInternshipCreation, event.EntityID, true
	case event.EntityType == models.EntityInternship && event.NewStatus == string(models.InternshipCompleted):
		return models.SagaCertification, event.EntityID, true
	case event.EntityType == models.EntityInternship && event.NewStatus == string(models.InternshipTerminated):
		return models.SagaTerminationNotice, event.EntityID, true
	}
	return "", "", false
}

func stepRank(step string) int {
	switch step {
	case models.SagaStepInternship, models.SagaStepCertificate:
		return 1
	case models.SagaStepNotified:
		return 2
	default:
		return 0
	}
}

// NotificationID derives a stable id so consumers can drop redelivered notifications.
func NotificationID(kind models.SagaKind, key string, typ models.NotificationType) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(kind)+":"+key+":"+string(typ))).String()
}
