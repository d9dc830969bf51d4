package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
	"github.com/noah-isme/internship-lifecycle-api/pkg/storage"
)

var (
	studentActor    = models.Actor{ID: "student-1", Role: models.RoleStudent}
	otherStudent    = models.Actor{ID: "student-2", Role: models.RoleStudent}
	enterpriseActor = models.Actor{ID: "ent-reviewer-1", Role: models.RoleEnterpriseReviewer}
	universityActor = models.Actor{ID: "uni-reviewer-1", Role: models.RoleUniversityReviewer}
	supervisorActor = models.Actor{ID: "supervisor-1", Role: models.RoleSupervisor}
	adminActor      = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	coordinator1    = models.Actor{ID: "coordinator-1", Role: models.RoleCoordinator}
)

// lifecycleHarness wires every service against the in-memory store, with the
// coordinator handling events inline.
type lifecycleHarness struct {
	db        *memDB
	clock     *testClock
	docs      *memDocuments
	notifier  *recordingDispatcher
	offers    *stubOffers
	cache     *memCache
	sequences *memSequences
	metrics   *MetricsService

	applications *ApplicationService
	internships  *InternshipService
	evaluations  *EvaluationService
	reports      *ReportService
	certificates *CertificateService
	coordinator  *LifecycleCoordinator
	feed         *EventFeedService
}

func newLifecycleHarness(t *testing.T) *lifecycleHarness {
	t.Helper()
	db := newMemDB()
	h := &lifecycleHarness{
		db:        db,
		clock:     newTestClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		docs:      newMemDocuments(),
		notifier:  &recordingDispatcher{},
		offers:    &stubOffers{remaining: map[string]int{"offer-1": 1}},
		cache:     newMemCache(),
		sequences: &memSequences{db: db},
		metrics:   NewMetricsService(),
	}
	logger := zap.NewNop()
	engine := scoring.MustEngine(scoring.DefaultWeights())
	publisher := PublisherFunc(func(ctx context.Context, event models.LifecycleEvent) error {
		return h.coordinator.Publish(ctx, event)
	})

	h.applications = NewApplicationService(memApplications{db}, h.offers, publisher, fastRetrier(), h.metrics, nil, logger,
		ApplicationServiceConfig{})
	h.applications.now = h.clock.Now

	h.internships = NewInternshipService(memInternships{db}, memAttendance{db}, memActivities{db}, memEvaluations{db},
		publisher, h.notifier, h.metrics, nil, logger, InternshipServiceConfig{MinAttendanceRate: 0.8})
	h.internships.now = h.clock.Now

	h.evaluations = NewEvaluationService(memEvaluations{db}, memInternships{db}, engine, h.notifier, nil, logger)
	h.evaluations.now = h.clock.Now

	h.reports = NewReportService(memReports{db}, memInternships{db}, h.docs, fastRetrier(), h.notifier, h.metrics, nil, logger,
		ReportServiceConfig{})
	h.reports.now = h.clock.Now

	h.certificates = NewCertificateService(CertificateServiceDeps{
		Repo:        memCertificates{db},
		Internships: memInternships{db},
		Evaluations: memEvaluations{db},
		Sequences:   h.sequences,
		Engine:      engine,
		Store:       h.docs,
		Signer:      storage.NewSignedURLSigner("test-secret", time.Hour),
		Cache:       h.cache,
		Publisher:   publisher,
		Retrier:     fastRetrier(),
		Metrics:     h.metrics,
		Logger:      logger,
	}, CertificateServiceConfig{VerifyBaseURL: "https://verify.example.test"})
	h.certificates.now = h.clock.Now

	h.coordinator = NewLifecycleCoordinator(LifecycleCoordinatorDeps{
		Sagas:        memSagas{db},
		Events:       memEvents{db},
		Applications: memApplications{db},
		Internships:  memInternships{db},
		Creator:      h.internships,
		Issuer:       h.certificates,
		Notifier:     h.notifier,
		Retrier:      fastRetrier(),
		Metrics:      h.metrics,
		Logger:       logger,
	})
	h.coordinator.now = h.clock.Now

	h.feed = NewEventFeedService(memEvents{db}, nil, nil, logger)
	return h
}

func (h *lifecycleHarness) submitApplication(t *testing.T, student models.Actor) *models.Application {
	t.Helper()
	app, err := h.applications.Submit(context.Background(), dto.SubmitApplicationRequest{
		OfferID:      "offer-1",
		EnterpriseID: "enterprise-1",
		UniversityID: "univ-1",
		StartDate:    "2026-03-02",
		EndDate:      "2026-05-25",
	}, student)
	require.NoError(t, err)
	return app
}

func (h *lifecycleHarness) moveApplication(t *testing.T, id string, statuses ...models.ApplicationStatus) *models.Application {
	t.Helper()
	var app *models.Application
	var err error
	for _, status := range statuses {
		app, err = h.applications.Transition(context.Background(), id, dto.ApplicationTransitionRequest{Status: status}, enterpriseActor)
		require.NoError(t, err, "move to %s", status)
	}
	return app
}

// acceptApplication walks a fresh application to ACCEPTED and returns the internship
// the coordinator created for it.
func (h *lifecycleHarness) acceptApplication(t *testing.T) (*models.Application, *models.Internship) {
	t.Helper()
	app := h.submitApplication(t, studentActor)
	app = h.moveApplication(t, app.ID,
		models.ApplicationUnderReview,
		models.ApplicationShortlisted,
		models.ApplicationInterviewScheduled,
		models.ApplicationAccepted,
	)
	internship := h.db.onlyInternship()
	require.NotNil(t, internship)
	return app, internship
}

// startInternship assigns the company supervisor and moves the internship to ONGOING.
func (h *lifecycleHarness) startInternship(t *testing.T) *models.Internship {
	t.Helper()
	ctx := context.Background()
	_, internship := h.acceptApplication(t)
	_, err := h.internships.AssignSupervisor(ctx, internship.ID,
		dto.AssignSupervisorRequest{SupervisorID: supervisorActor.ID, Kind: models.SupervisorCompany}, enterpriseActor)
	require.NoError(t, err)
	ongoing, err := h.internships.Transition(ctx, internship.ID,
		dto.InternshipTransitionRequest{Status: models.InternshipOngoing}, enterpriseActor)
	require.NoError(t, err)
	return ongoing
}

func (h *lifecycleHarness) evaluate(t *testing.T, internshipID string, scores ...string) *models.Evaluation {
	t.Helper()
	require.Len(t, scores, 5)
	evaluation, err := h.evaluations.Submit(context.Background(), internshipID, dto.SubmitEvaluationRequest{
		Period:        "final",
		Technical:     scores[0],
		Interpersonal: scores[1],
		Attendance:    scores[2],
		Initiative:    scores[3],
		ReportQuality: scores[4],
	}, supervisorActor)
	require.NoError(t, err)
	return evaluation
}

func (h *lifecycleHarness) saga(t *testing.T, kind models.SagaKind, key string) models.SagaRun {
	t.Helper()
	runs, err := memSagas{h.db}.List(context.Background(), models.SagaFilter{Kind: kind})
	require.NoError(t, err)
	for _, run := range runs {
		if run.IdempotencyKey == key {
			return run
		}
	}
	t.Fatalf("no %s saga for %s", kind, key)
	return models.SagaRun{}
}
