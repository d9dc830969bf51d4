package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

type internshipStore interface {
	CreateFromApplication(ctx context.Context, internship *models.Internship, event *models.LifecycleEvent) (*models.Internship, bool, error)
	GetByID(ctx context.Context, id string) (*models.Internship, error)
	List(ctx context.Context, filter models.InternshipFilter) ([]models.Internship, error)
	Transition(ctx context.Context, params repository.InternshipTransitionParams, event *models.LifecycleEvent) (*models.Internship, error)
	AssignSupervisor(ctx context.Context, id string, kind models.SupervisorKind, supervisorID string, expectedVersion int64) (*models.Internship, error)
}

type attendanceStore interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	List(ctx context.Context, internshipID string) ([]models.AttendanceRecord, error)
	Summary(ctx context.Context, internshipID string) (models.AttendanceSummary, error)
}

type activityStore interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, internshipID string) ([]models.ActivityLog, error)
}

type evaluationCounter interface {
	CountByInternship(ctx context.Context, internshipID string) (int, error)
}

// InternshipServiceConfig holds completion requirements.
type InternshipServiceConfig struct {
	// MinAttendanceRate is the share of attended days required for COMPLETED.
	MinAttendanceRate float64
}

// InternshipService drives the internship state machine and its journals.
type InternshipService struct {
	repo        internshipStore
	attendance  attendanceStore
	activities  activityStore
	evaluations evaluationCounter
	publisher   EventPublisher
	notifier    NotificationDispatcher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	config      InternshipServiceConfig
	now         Clock
}

// NewInternshipService constructs the service.
func NewInternshipService(repo internshipStore, attendance attendanceStore, activities activityStore, evaluations evaluationCounter,
	publisher EventPublisher, notifier NotificationDispatcher, metrics *MetricsService, validate *validator.Validate,
	logger *zap.Logger, cfg InternshipServiceConfig) *InternshipService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinAttendanceRate < 0 || cfg.MinAttendanceRate > 1 {
		cfg.MinAttendanceRate = 0.8
	}
	return &InternshipService{
		repo:        repo,
		attendance:  attendance,
		activities:  activities,
		evaluations: evaluations,
		publisher:   publisher,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		config:      cfg,
		now:         systemClock,
	}
}

// CreateFromApplication materialises the internship of an accepted application.
// Repeated calls return the existing internship with created=false.
func (s *InternshipService) CreateFromApplication(ctx context.Context, app *models.Application, actor models.Actor) (*models.Internship, bool, error) {
	if app == nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "application is required")
	}
	if app.Status != models.ApplicationAccepted {
		return nil, false, appErrors.Clonef(appErrors.ErrValidation,
			"application %s is %s; internships are created from ACCEPTED applications", app.ID, app.Status)
	}
	now := s.now()
	candidate := &models.Internship{
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		EnterpriseID:  app.EnterpriseID,
		OfferID:       app.OfferID,
		UniversityID:  app.UniversityID,
		StartDate:     app.StartDate,
		EndDate:       app.EndDate,
		Status:        models.InternshipPending,
		CreatedAt:     now,
	}
	event := newEvent(models.EntityInternship, "", "", string(models.InternshipPending), actor, nil, now)
	internship, created, err := s.repo.CreateFromApplication(ctx, candidate, event)
	if err != nil {
		return nil, false, internal(err, "failed to create internship for application "+app.ID)
	}
	if internship.ApplicationID != app.ID {
		s.logger.Error("internship references a different application",
			zap.String("internship_id", internship.ID),
			zap.String("expected_application_id", app.ID),
			zap.String("stored_application_id", internship.ApplicationID))
		return nil, false, appErrors.Clonef(appErrors.ErrInvariantViolation,
			"internship %s does not reference application %s", internship.ID, app.ID)
	}
	if created {
		s.metrics.RecordTransition(string(models.EntityInternship), "", string(models.InternshipPending))
		s.logger.Info("internship created",
			zap.String("internship_id", internship.ID), zap.String("application_id", app.ID))
		publishCommitted(ctx, s.publisher, s.logger, event)
	}
	return internship, created, nil
}

// Transition validates and applies an internship status change.
func (s *InternshipService) Transition(ctx context.Context, id string, req dto.InternshipTransitionRequest, actor models.Actor) (*models.Internship, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload"))
	}
	target := models.InternshipStatus(strings.ToUpper(string(req.Status)))
	if !target.Valid() {
		return nil, s.reject(appErrors.Clonef(appErrors.ErrValidation, "unknown internship status %q", req.Status))
	}

	internship, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "internship", id)
	}
	if !internship.Status.CanTransitionTo(target) {
		return nil, s.reject(illegalTransition(models.EntityInternship, internship.ID, string(internship.Status), string(target)))
	}
	if err := authorizeInternshipTransition(internship, actor); err != nil {
		return nil, s.reject(err)
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != internship.Version {
		return nil, s.reject(appErrors.Clonef(appErrors.ErrConflict,
			"internship %s is at version %d, expected %d", internship.ID, internship.Version, req.ExpectedVersion))
	}

	now := s.now()
	reason := stringPtr(req.Reason)
	params := repository.InternshipTransitionParams{
		ID:              internship.ID,
		From:            internship.Status,
		To:              target,
		ExpectedVersion: internship.Version,
		At:              now,
	}

	switch target {
	case models.InternshipOngoing:
		if internship.SupervisorID == nil {
			return nil, s.reject(appErrors.Clonef(appErrors.ErrValidation,
				"internship %s cannot move to ONGOING without an assigned supervisor", internship.ID))
		}
	case models.InternshipCompleted:
		early, err := s.checkCompletion(ctx, internship, req, actor, now)
		if err != nil {
			return nil, s.reject(err)
		}
		end := dayOf(now)
		params.ActualEndDate = &end
		params.EarlyCompletion = early
	case models.InternshipTerminated:
		if reason == nil {
			return nil, s.reject(appErrors.Clonef(appErrors.ErrValidation, "terminating internship %s requires a reason", internship.ID))
		}
		end := dayOf(now)
		params.ActualEndDate = &end
		params.TerminationReason = reason
	}

	event := newEvent(models.EntityInternship, internship.ID, string(internship.Status), string(target), actor, reason, now)
	updated, err := s.repo.Transition(ctx, params, event)
	if err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, s.reject(staleWrite(models.EntityInternship, internship.ID))
		}
		return nil, internal(err, "failed to update internship "+internship.ID)
	}

	s.metrics.RecordTransition(string(models.EntityInternship), string(internship.Status), string(target))
	s.logger.Info("internship transitioned",
		zap.String("internship_id", internship.ID),
		zap.String("from", string(internship.Status)),
		zap.String("to", string(target)),
		zap.String("actor_id", actor.ID))
	publishCommitted(ctx, s.publisher, s.logger, event)
	return updated, nil
}

func (s *InternshipService) checkCompletion(ctx context.Context, internship *models.Internship, req dto.InternshipTransitionRequest,
	actor models.Actor, now time.Time) (bool, error) {
	count, err := s.evaluations.CountByInternship(ctx, internship.ID)
	if err != nil {
		return false, internal(err, "failed to count evaluations")
	}
	if count == 0 {
		return false, appErrors.Clonef(appErrors.ErrValidation,
			"internship %s cannot move to COMPLETED without at least one evaluation", internship.ID)
	}

	// Completion counts as early only before the scheduled end day; any time on
	// the end date itself is on schedule.
	early := dayOf(now).Before(dayOf(internship.EndDate))
	if early {
		if !req.EarlyCompletion {
			return false, appErrors.Clonef(appErrors.ErrValidation,
				"internship %s ends on %s; completing earlier requires an early-completion override",
				internship.ID, internship.EndDate.Format("2006-01-02"))
		}
		if !actor.Role.IsOperator() {
			return false, appErrors.Clonef(appErrors.ErrForbidden,
				"role %s cannot request early completion of internship %s", actor.Role, internship.ID)
		}
	}

	summary, err := s.attendance.Summary(ctx, internship.ID)
	if err != nil {
		return false, internal(err, "failed to summarise attendance")
	}
	if summary.Total() > 0 && summary.Rate() < s.config.MinAttendanceRate {
		if !req.OverrideAttendance || !actor.Role.IsOperator() {
			return false, appErrors.Clonef(appErrors.ErrValidation,
				"internship %s attendance rate %.2f is below the required %.2f", internship.ID, summary.Rate(), s.config.MinAttendanceRate)
		}
	}
	return early, nil
}

// AssignSupervisor sets the company or academic supervisor.
func (s *InternshipService) AssignSupervisor(ctx context.Context, id string, req dto.AssignSupervisorRequest, actor models.Actor) (*models.Internship, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid supervisor payload")
	}
	kind := req.Kind
	if kind == "" {
		kind = models.SupervisorCompany
	}
	switch {
	case actor.Role.IsOperator(), actor.Role == models.RoleEnterpriseReviewer && kind == models.SupervisorCompany,
		actor.Role == models.RoleUniversityReviewer && kind == models.SupervisorAcademic:
	default:
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "role %s cannot assign a %s supervisor", actor.Role, strings.ToLower(string(kind)))
	}

	internship, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "internship", id)
	}
	if internship.Status.Terminal() {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "internship %s is %s; supervisors can no longer change", id, internship.Status)
	}
	updated, err := s.repo.AssignSupervisor(ctx, id, kind, strings.TrimSpace(req.SupervisorID), internship.Version)
	if err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, staleWrite(models.EntityInternship, id)
		}
		return nil, internal(err, "failed to assign supervisor to internship "+id)
	}

	notifyBestEffort(ctx, s.notifier, s.logger, models.Notification{
		Type:       models.NotificationSupervisorAssigned,
		EntityType: models.EntityInternship,
		EntityID:   id,
		Data:       map[string]string{"supervisor_id": req.SupervisorID, "kind": string(kind)},
	})
	return updated, nil
}

// RecordAttendance stores one day of attendance. A second record for the same
// day returns the stored one with created=false.
func (s *InternshipService) RecordAttendance(ctx context.Context, id string, req dto.RecordAttendanceRequest, actor models.Actor) (*models.AttendanceRecord, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	internship, err := s.loadOngoing(ctx, id, "attendance")
	if err != nil {
		return nil, false, err
	}
	if !isParticipant(internship, actor) {
		return nil, false, appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot record attendance for internship %s", actor.ID, id)
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, false, err
	}
	if date.Before(dayOf(internship.StartDate)) || date.After(dayOf(internship.EndDate)) {
		return nil, false, appErrors.Clonef(appErrors.ErrValidation, "date %s is outside internship %s period", req.Date, id)
	}
	record := &models.AttendanceRecord{
		InternshipID: id,
		Date:         date,
		Status:       req.Status,
		Notes:        stringPtr(req.Notes),
		RecordedBy:   actor.ID,
		CreatedAt:    s.now(),
	}
	stored, created, err := s.attendance.Insert(ctx, record)
	if err != nil {
		return nil, false, internal(err, "failed to record attendance for internship "+id)
	}
	return stored, created, nil
}

// LogActivity appends a journal entry written by the student.
func (s *InternshipService) LogActivity(ctx context.Context, id string, req dto.LogActivityRequest, actor models.Actor) (*models.ActivityLog, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	internship, err := s.loadOngoing(ctx, id, "activities")
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleStudent || actor.ID != internship.StudentID {
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "only the intern may log activities for internship %s", id)
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	entry := &models.ActivityLog{
		InternshipID: id,
		Date:         date,
		Description:  strings.TrimSpace(req.Description),
		Hours:        req.Hours,
		RecordedBy:   actor.ID,
		CreatedAt:    s.now(),
	}
	if err := s.activities.Create(ctx, entry); err != nil {
		return nil, internal(err, "failed to log activity for internship "+id)
	}
	return entry, nil
}

// Get returns the internship with progress and attendance.
func (s *InternshipService) Get(ctx context.Context, id string, actor models.Actor) (*dto.InternshipDetail, error) {
	internship, err := s.loadVisible(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	summary, err := s.attendance.Summary(ctx, id)
	if err != nil {
		return nil, internal(err, "failed to summarise attendance")
	}
	return &dto.InternshipDetail{
		Internship:     *internship,
		Progress:       internship.Progress(s.now()),
		Attendance:     summary,
		AttendanceRate: summary.Rate(),
	}, nil
}

// List returns internships visible to the actor.
func (s *InternshipService) List(ctx context.Context, query dto.InternshipQuery, actor models.Actor) ([]models.Internship, error) {
	filter := models.InternshipFilter{
		StudentID:    query.StudentID,
		EnterpriseID: query.EnterpriseID,
		SupervisorID: query.SupervisorID,
		Limit:        query.Limit,
		Offset:       query.Offset,
	}
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.ID
	case models.RoleSupervisor:
		filter.SupervisorID = actor.ID
	}
	for _, raw := range splitStatuses(query.Status) {
		status := models.InternshipStatus(raw)
		if !status.Valid() {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "unknown internship status %q", raw)
		}
		filter.Status = append(filter.Status, status)
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internal(err, "failed to list internships")
	}
	return items, nil
}

// ListAttendance returns the attendance log.
func (s *InternshipService) ListAttendance(ctx context.Context, id string, actor models.Actor) ([]models.AttendanceRecord, error) {
	if _, err := s.loadVisible(ctx, id, actor); err != nil {
		return nil, err
	}
	records, err := s.attendance.List(ctx, id)
	if err != nil {
		return nil, internal(err, "failed to list attendance")
	}
	return records, nil
}

// ListActivities returns the activity journal.
func (s *InternshipService) ListActivities(ctx context.Context, id string, actor models.Actor) ([]models.ActivityLog, error) {
	if _, err := s.loadVisible(ctx, id, actor); err != nil {
		return nil, err
	}
	entries, err := s.activities.List(ctx, id)
	if err != nil {
		return nil, internal(err, "failed to list activities")
	}
	return entries, nil
}

func (s *InternshipService) loadOngoing(ctx context.Context, id, what string) (*models.Internship, error) {
	internship, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "internship", id)
	}
	if internship.Status != models.InternshipOngoing {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "internship %s is %s; %s are recorded only while ONGOING",
			id, internship.Status, what)
	}
	return internship, nil
}

func (s *InternshipService) loadVisible(ctx context.Context, id string, actor models.Actor) (*models.Internship, error) {
	internship, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "internship", id)
	}
	if !canViewInternship(internship, actor) {
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot access internship %s", actor.ID, id)
	}
	return internship, nil
}

func (s *InternshipService) reject(err error) error {
	s.metrics.RecordRejectedTransition(string(models.EntityInternship), appErrors.FromError(err).Code)
	return err
}

func authorizeInternshipTransition(internship *models.Internship, actor models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleCoordinator, models.RoleSystem,
		models.RoleEnterpriseReviewer, models.RoleUniversityReviewer:
		return nil
	case models.RoleSupervisor:
		if isSupervisorOf(internship, actor.ID) {
			return nil
		}
	}
	return appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot change the status of internship %s", actor.ID, internship.ID)
}

func isSupervisorOf(internship *models.Internship, userID string) bool {
	return (internship.SupervisorID != nil && *internship.SupervisorID == userID) ||
		(internship.AcademicSupervisorID != nil && *internship.AcademicSupervisorID == userID)
}

// isParticipant reports the intern or one of the assigned supervisors.
func isParticipant(internship *models.Internship, actor models.Actor) bool {
	switch actor.Role {
	case models.RoleStudent:
		return actor.ID == internship.StudentID
	case models.RoleSupervisor:
		return isSupervisorOf(internship, actor.ID)
	}
	return false
}

func canViewInternship(internship *models.Internship, actor models.Actor) bool {
	switch actor.Role {
	case models.RoleStudent, models.RoleSupervisor:
		return isParticipant(internship, actor)
	}
	return actor.Role.Valid()
}
