package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/retry"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application, event *models.LifecycleEvent) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	Transition(ctx context.Context, params repository.ApplicationTransitionParams, event *models.LifecycleEvent) (*models.Application, error)
}

// CapacityChecker reports the open positions of an offer.
type CapacityChecker interface {
	RemainingPositions(ctx context.Context, offerID string) (int, error)
}

// ApplicationServiceConfig bounds the proposed internship period.
type ApplicationServiceConfig struct {
	MinDurationWeeks int
	MaxDurationWeeks int
}

// ApplicationService drives the application state machine.
type ApplicationService struct {
	repo      applicationStore
	offers    CapacityChecker
	publisher EventPublisher
	retrier   *retry.Retrier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    ApplicationServiceConfig
	now       Clock
}

// NewApplicationService constructs the service.
func NewApplicationService(repo applicationStore, offers CapacityChecker, publisher EventPublisher, retrier *retry.Retrier,
	metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ApplicationServiceConfig) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDurationWeeks <= 0 {
		cfg.MinDurationWeeks = 4
	}
	if cfg.MaxDurationWeeks < cfg.MinDurationWeeks {
		cfg.MaxDurationWeeks = 26
	}
	return &ApplicationService{
		repo:      repo,
		offers:    offers,
		publisher: publisher,
		retrier:   dependencyRetrier(retrier, "offer", metrics, logger),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
		now:       systemClock,
	}
}

// Submit records a new application from the calling student.
func (s *ApplicationService) Submit(ctx context.Context, req dto.SubmitApplicationRequest, actor models.Actor) (*models.Application, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may submit applications")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}
	days := int(end.Sub(start).Hours() / 24)
	if days < s.config.MinDurationWeeks*7 || days > s.config.MaxDurationWeeks*7 {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "internship period must last between %d and %d weeks",
			s.config.MinDurationWeeks, s.config.MaxDurationWeeks)
	}

	now := s.now()
	app := &models.Application{
		OfferID:      strings.TrimSpace(req.OfferID),
		StudentID:    actor.ID,
		EnterpriseID: strings.TrimSpace(req.EnterpriseID),
		UniversityID: strings.TrimSpace(req.UniversityID),
		StartDate:    start,
		EndDate:      end,
		Motivation:   strings.TrimSpace(req.Motivation),
		Status:       models.ApplicationSubmitted,
		SubmittedAt:  now,
	}
	event := newEvent(models.EntityApplication, "", "", string(models.ApplicationSubmitted), actor, nil, now)
	if err := s.repo.Create(ctx, app, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateApplication) {
			return nil, appErrors.Clonef(appErrors.ErrConflict, "student %s already has an active application for offer %s",
				actor.ID, app.OfferID)
		}
		return nil, internal(err, "failed to create application")
	}
	s.metrics.RecordTransition(string(models.EntityApplication), "", string(app.Status))
	publishCommitted(ctx, s.publisher, s.logger, event)
	return app, nil
}

// Transition validates and applies a status change.
func (s *ApplicationService) Transition(ctx context.Context, id string, req dto.ApplicationTransitionRequest, actor models.Actor) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload"))
	}
	target := models.ApplicationStatus(strings.ToUpper(string(req.Status)))
	if !target.Valid() {
		return nil, s.reject(appErrors.Clonef(appErrors.ErrValidation, "unknown application status %q", req.Status))
	}

	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "application", id)
	}
	if !app.Status.CanTransitionTo(target) {
		return nil, s.reject(illegalApplicationTransition(app, target))
	}
	if err := authorizeApplicationTransition(app, target, actor); err != nil {
		return nil, s.reject(err)
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != app.Version {
		return nil, s.reject(appErrors.Clonef(appErrors.ErrConflict,
			"application %s is at version %d, expected %d", app.ID, app.Version, req.ExpectedVersion))
	}

	reason := stringPtr(req.Reason)
	if target == models.ApplicationRejected && reason == nil {
		return nil, s.reject(appErrors.Clonef(appErrors.ErrValidation, "rejecting application %s requires a reason", app.ID))
	}

	now := s.now()
	params := repository.ApplicationTransitionParams{
		ID:              app.ID,
		OfferID:         app.OfferID,
		From:            app.Status,
		To:              target,
		ExpectedVersion: app.Version,
		At:              now,
	}
	if target != models.ApplicationWithdrawn {
		params.ReviewerID = &actor.ID
	}
	if target == models.ApplicationRejected {
		params.RejectionReason = reason
	}
	if target == models.ApplicationAccepted {
		remaining, err := s.remainingPositions(ctx, app.OfferID)
		if err != nil {
			return nil, err
		}
		params.ExclusiveAccept = remaining == 0
	}

	event := newEvent(models.EntityApplication, app.ID, string(app.Status), string(target), actor, reason, now)
	updated, err := s.repo.Transition(ctx, params, event)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleWrite):
			return nil, s.reject(staleWrite(models.EntityApplication, app.ID))
		case errors.Is(err, repository.ErrOfferFilled):
			return nil, s.reject(appErrors.Clonef(appErrors.ErrValidation,
				"application %s cannot be accepted: offer %s has no remaining positions and an accepted application",
				app.ID, app.OfferID))
		default:
			return nil, internal(err, "failed to update application "+app.ID)
		}
	}

	s.metrics.RecordTransition(string(models.EntityApplication), string(app.Status), string(target))
	s.logger.Info("application transitioned",
		zap.String("application_id", app.ID),
		zap.String("from", string(app.Status)),
		zap.String("to", string(target)),
		zap.String("actor_id", actor.ID))
	publishCommitted(ctx, s.publisher, s.logger, event)
	return updated, nil
}

// Get returns an application. Students only see their own.
func (s *ApplicationService) Get(ctx context.Context, id string, actor models.Actor) (*models.Application, error) {
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "application", id)
	}
	if actor.Role == models.RoleStudent && app.StudentID != actor.ID {
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "application %s belongs to another student", id)
	}
	return app, nil
}

// List returns applications matching the query.
func (s *ApplicationService) List(ctx context.Context, query dto.ApplicationQuery, actor models.Actor) ([]models.Application, error) {
	filter := models.ApplicationFilter{
		OfferID:   query.OfferID,
		StudentID: query.StudentID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.ID
	}
	for _, raw := range splitStatuses(query.Status) {
		status := models.ApplicationStatus(raw)
		if !status.Valid() {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "unknown application status %q", raw)
		}
		filter.Status = append(filter.Status, status)
	}
	apps, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internal(err, "failed to list applications")
	}
	return apps, nil
}

func (s *ApplicationService) remainingPositions(ctx context.Context, offerID string) (int, error) {
	remaining, err := retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (int, error) {
		return s.offers.RemainingPositions(ctx, offerID)
	})
	if err != nil {
		if appErrors.IsNotFound(err) {
			return 0, appErrors.Clonef(appErrors.ErrValidation, "offer %s does not exist", offerID)
		}
		if appErrors.IsDependencyUnavailable(err) {
			return 0, err
		}
		return 0, appErrors.WrapAs(err, appErrors.ErrDependencyUnavailable, "capacity check for offer "+offerID+" failed")
	}
	return remaining, nil
}

func (s *ApplicationService) reject(err error) error {
	s.metrics.RecordRejectedTransition(string(models.EntityApplication), appErrors.FromError(err).Code)
	return err
}

func authorizeApplicationTransition(app *models.Application, target models.ApplicationStatus, actor models.Actor) error {
	if target == models.ApplicationWithdrawn {
		if actor.Role != models.RoleStudent || actor.ID != app.StudentID {
			return appErrors.Clonef(appErrors.ErrForbidden, "only the owning student may withdraw application %s", app.ID)
		}
		return nil
	}
	if !actor.Role.IsReviewer() {
		return appErrors.Clonef(appErrors.ErrForbidden, "role %s cannot move application %s to %s", actor.Role, app.ID, target)
	}
	return nil
}

// illegalApplicationTransition names the moves that are still open, or the
// terminal state that closed the application.
func illegalApplicationTransition(app *models.Application, target models.ApplicationStatus) error {
	next := app.Status.NextStatuses()
	if len(next) == 0 {
		return appErrors.Clonef(appErrors.ErrIllegalTransition, "application %s cannot move from %s to %s: %s is terminal",
			app.ID, app.Status, target, app.Status)
	}
	allowed := make([]string, len(next))
	for i, status := range next {
		allowed[i] = string(status)
	}
	return appErrors.Clonef(appErrors.ErrIllegalTransition, "application %s cannot move from %s to %s; allowed: %s",
		app.ID, app.Status, target, strings.Join(allowed, ", "))
}
