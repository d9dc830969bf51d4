package service

import (
	"context"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

type evaluationStore interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	ListByInternship(ctx context.Context, internshipID string) ([]models.Evaluation, error)
}

type internshipReader interface {
	GetByID(ctx context.Context, id string) (*models.Internship, error)
}

// EvaluationService records append-only evaluations and previews the aggregate score.
type EvaluationService struct {
	repo        evaluationStore
	internships internshipReader
	engine      *scoring.Engine
	notifier    NotificationDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
	now         Clock
}

// NewEvaluationService constructs the service.
func NewEvaluationService(repo evaluationStore, internships internshipReader, engine *scoring.Engine, notifier NotificationDispatcher,
	validate *validator.Validate, logger *zap.Logger) *EvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{
		repo:        repo,
		internships: internships,
		engine:      engine,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
		now:         systemClock,
	}
}

// Submit stores a new evaluation. Earlier evaluations are never modified; a
// newer one from the same evaluator type supersedes them during aggregation.
func (s *EvaluationService) Submit(ctx context.Context, internshipID string, req dto.SubmitEvaluationRequest, actor models.Actor) (*models.Evaluation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}
	internship, err := s.internships.GetByID(ctx, internshipID)
	if err != nil {
		return nil, notFoundOr(err, "internship", internshipID)
	}
	if internship.Status != models.InternshipOngoing && internship.Status != models.InternshipSuspended {
		return nil, appErrors.Clonef(appErrors.ErrValidation,
			"internship %s is %s; evaluations are accepted while ONGOING or SUSPENDED", internshipID, internship.Status)
	}
	evaluatorType, err := evaluatorTypeFor(internship, actor, req.EvaluatorType)
	if err != nil {
		return nil, err
	}

	scale := req.Scale
	if scale == 0 {
		scale = models.EvaluationScale20
	}
	evaluation := &models.Evaluation{
		InternshipID:  internshipID,
		EvaluatorID:   actor.ID,
		EvaluatorType: evaluatorType,
		Period:        strings.TrimSpace(req.Period),
		Scale:         scale,
		Feedback:      strings.TrimSpace(req.Feedback),
		SubmittedAt:   s.now(),
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"technical", req.Technical, &evaluation.Technical},
		{"interpersonal", req.Interpersonal, &evaluation.Interpersonal},
		{"attendance", req.Attendance, &evaluation.Attendance},
		{"initiative", req.Initiative, &evaluation.Initiative},
		{"report_quality", req.ReportQuality, &evaluation.ReportQuality},
	}
	for _, f := range fields {
		value, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "%s must be a decimal number", f.name)
		}
		if _, err := scoring.Normalize(value, scale); err != nil {
			return nil, appErrors.Clonef(appErrors.ErrOutOfRange, "internship %s evaluation: %s score %s outside [1,%d]",
				internshipID, f.name, value.String(), scale)
		}
		*f.dst = value
	}

	if err := s.repo.Create(ctx, evaluation); err != nil {
		return nil, internal(err, "failed to store evaluation for internship "+internshipID)
	}
	notifyBestEffort(ctx, s.notifier, s.logger, models.Notification{
		Type:       models.NotificationEvaluationSubmitted,
		EntityType: models.EntityInternship,
		EntityID:   internshipID,
		Data:       map[string]string{"evaluation_id": evaluation.ID, "evaluator_type": string(evaluatorType)},
	})
	return evaluation, nil
}

// List returns every evaluation of the internship with the current score preview.
func (s *EvaluationService) List(ctx context.Context, internshipID string, actor models.Actor) ([]models.Evaluation, dto.ScorePreview, error) {
	internship, err := s.internships.GetByID(ctx, internshipID)
	if err != nil {
		return nil, dto.ScorePreview{}, notFoundOr(err, "internship", internshipID)
	}
	if !canViewInternship(internship, actor) {
		return nil, dto.ScorePreview{}, appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot access internship %s", actor.ID, internshipID)
	}
	evaluations, err := s.repo.ListByInternship(ctx, internshipID)
	if err != nil {
		return nil, dto.ScorePreview{}, internal(err, "failed to list evaluations")
	}
	preview := dto.ScorePreview{Evaluations: len(evaluations)}
	if len(evaluations) == 0 {
		return evaluations, preview, nil
	}
	result, err := ScoreEvaluations(s.engine, evaluations)
	if err != nil {
		return nil, dto.ScorePreview{}, err
	}
	preview.OverallScore = result.OverallScore.StringFixed(2)
	preview.Mention = string(result.Mention)
	preview.MentionLabel = result.Mention.Label()
	return evaluations, preview, nil
}

// LatestPerEvaluatorType keeps the most recent evaluation of each evaluator type,
// ordered by submission time then id.
func LatestPerEvaluatorType(evaluations []models.Evaluation) []models.Evaluation {
	latest := make(map[models.EvaluatorType]models.Evaluation, 2)
	for _, e := range evaluations {
		current, ok := latest[e.EvaluatorType]
		if !ok || e.SubmittedAt.After(current.SubmittedAt) ||
			(e.SubmittedAt.Equal(current.SubmittedAt) && e.ID > current.ID) {
			latest[e.EvaluatorType] = e
		}
	}
	out := make([]models.Evaluation, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvaluatorType < out[j].EvaluatorType })
	return out
}

// AggregateEvaluations normalises the latest evaluation per evaluator type to the
// 0–20 scale and averages them component-wise.
func AggregateEvaluations(evaluations []models.Evaluation) (scoring.Criteria, error) {
	selected := LatestPerEvaluatorType(evaluations)
	if len(selected) == 0 {
		return scoring.Criteria{}, appErrors.Clone(appErrors.ErrValidation, "no evaluations to aggregate")
	}
	criteria := make([]scoring.Criteria, 0, len(selected))
	for _, e := range selected {
		c, err := normalizeEvaluation(e)
		if err != nil {
			return scoring.Criteria{}, err
		}
		criteria = append(criteria, c)
	}
	return scoring.Average(criteria)
}

// ScoreEvaluations aggregates and runs the result through the engine.
func ScoreEvaluations(engine *scoring.Engine, evaluations []models.Evaluation) (scoring.Result, error) {
	criteria, err := AggregateEvaluations(evaluations)
	if err != nil {
		return scoring.Result{}, err
	}
	return engine.ComputeMention(criteria)
}

func normalizeEvaluation(e models.Evaluation) (scoring.Criteria, error) {
	scale := e.Scale
	if scale == 0 {
		scale = models.EvaluationScale20
	}
	var out scoring.Criteria
	pairs := []struct {
		raw decimal.Decimal
		dst *decimal.Decimal
	}{
		{e.Technical, &out.Technical},
		{e.Interpersonal, &out.Interpersonal},
		{e.Attendance, &out.Attendance},
		{e.Initiative, &out.Initiative},
		{e.ReportQuality, &out.Report},
	}
	for _, p := range pairs {
		v, err := scoring.Normalize(p.raw, scale)
		if err != nil {
			return scoring.Criteria{}, err
		}
		*p.dst = v
	}
	return out, nil
}

func evaluatorTypeFor(internship *models.Internship, actor models.Actor, requested models.EvaluatorType) (models.EvaluatorType, error) {
	switch actor.Role {
	case models.RoleEnterpriseReviewer:
		return models.EvaluatorEnterprise, nil
	case models.RoleUniversityReviewer:
		return models.EvaluatorUniversity, nil
	case models.RoleSupervisor:
		company := internship.SupervisorID != nil && *internship.SupervisorID == actor.ID
		academic := internship.AcademicSupervisorID != nil && *internship.AcademicSupervisorID == actor.ID
		switch {
		case company && academic:
			if !requested.Valid() {
				return "", appErrors.Clonef(appErrors.ErrValidation,
					"supervisor %s holds both assignments on internship %s; evaluator_type is required", actor.ID, internship.ID)
			}
			return requested, nil
		case company:
			return models.EvaluatorEnterprise, nil
		case academic:
			return models.EvaluatorUniversity, nil
		}
	}
	return "", appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot evaluate internship %s", actor.ID, internship.ID)
}
