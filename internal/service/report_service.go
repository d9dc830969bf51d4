package service

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/repository"
	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/retry"
	"github.com/noah-isme/internship-lifecycle-api/pkg/storage"
)

type reportStore interface {
	Create(ctx context.Context, report *models.InternshipReport) error
	GetByID(ctx context.Context, id string) (*models.InternshipReport, error)
	ListByInternship(ctx context.Context, internshipID string) ([]models.InternshipReport, error)
	Review(ctx context.Context, id, reviewerID string, score decimal.Decimal, feedback string, at time.Time) (*models.InternshipReport, error)
}

var allowedReportTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.oasis.opendocument.text":                                 {},
	"text/plain":                                                               {},
}

// ReportServiceConfig configures uploads.
type ReportServiceConfig struct {
	MaxFileSize int64
	// FinalReportProgress is the minimum progress percentage for FINAL reports.
	FinalReportProgress int
}

// ReportService handles report uploads, reviews and downloads.
type ReportService struct {
	repo        reportStore
	internships internshipReader
	store       storage.DocumentStore
	retrier     *retry.Retrier
	notifier    NotificationDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
	config      ReportServiceConfig
	now         Clock
}

// NewReportService constructs the service.
func NewReportService(repo reportStore, internships internshipReader, store storage.DocumentStore, retrier *retry.Retrier,
	notifier NotificationDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.FinalReportProgress <= 0 || cfg.FinalReportProgress > 100 {
		cfg.FinalReportProgress = 80
	}
	return &ReportService{
		repo:        repo,
		internships: internships,
		store:       store,
		retrier:     dependencyRetrier(retrier, "document_store", metrics, logger),
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
		config:      cfg,
		now:         systemClock,
	}
}

// Upload stores the report file and records its metadata.
func (s *ReportService) Upload(ctx context.Context, internshipID string, req dto.UploadReportRequest, actor models.Actor) (*models.InternshipReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	internship, err := s.internships.GetByID(ctx, internshipID)
	if err != nil {
		return nil, notFoundOr(err, "internship", internshipID)
	}
	if actor.Role != models.RoleStudent || actor.ID != internship.StudentID {
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "only the intern may upload reports for internship %s", internshipID)
	}
	if internship.Status != models.InternshipOngoing && internship.Status != models.InternshipSuspended {
		return nil, appErrors.Clonef(appErrors.ErrValidation,
			"internship %s is %s; reports are accepted while ONGOING or SUSPENDED", internshipID, internship.Status)
	}
	if req.Type == models.ReportFinal {
		if progress := internship.Progress(s.now()); progress < s.config.FinalReportProgress {
			return nil, appErrors.Clonef(appErrors.ErrValidation,
				"internship %s is %d%% complete; FINAL reports require %d%%", internshipID, progress, s.config.FinalReportProgress)
		}
	}

	size := int64(len(req.Data))
	if size == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report file is empty")
	}
	if size > s.config.MaxFileSize {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "report file exceeds %d bytes", s.config.MaxFileSize)
	}
	contentType := normalizeContentType(req.ContentType, req.Data)
	if _, ok := allowedReportTypes[contentType]; !ok {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "unsupported report content type %q", contentType)
	}

	stored, err := storeDocument(ctx, s.retrier, s.store, storage.Document{
		Category:    "reports",
		Name:        filepath.Base(req.FileName),
		ContentType: contentType,
		Data:        req.Data,
	}, "report of internship "+internshipID)
	if err != nil {
		return nil, err
	}

	report := &models.InternshipReport{
		InternshipID: internshipID,
		Type:         req.Type,
		Title:        strings.TrimSpace(req.Title),
		DocumentPath: stored.Path,
		Checksum:     stored.Checksum,
		ContentType:  contentType,
		SizeBytes:    stored.Size,
		Status:       models.ReportSubmitted,
		SubmittedBy:  actor.ID,
		SubmittedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, internal(err, "failed to record report for internship "+internshipID)
	}
	notifyBestEffort(ctx, s.notifier, s.logger, models.Notification{
		Type:       models.NotificationReportSubmitted,
		EntityType: models.EntityInternship,
		EntityID:   internshipID,
		Data:       map[string]string{"report_id": report.ID, "report_type": string(report.Type)},
	})
	return report, nil
}

// Review scores a submitted report on the 0–20 scale. Each report is reviewed once.
func (s *ReportService) Review(ctx context.Context, reportID string, req dto.ReviewReportRequest, actor models.Actor) (*models.InternshipReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	report, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return nil, notFoundOr(err, "report", reportID)
	}
	internship, err := s.internships.GetByID(ctx, report.InternshipID)
	if err != nil {
		return nil, notFoundOr(err, "internship", report.InternshipID)
	}
	switch {
	case actor.Role == models.RoleUniversityReviewer:
	case actor.Role == models.RoleSupervisor && isSupervisorOf(internship, actor.ID):
	default:
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot review report %s", actor.ID, reportID)
	}
	if report.Status != models.ReportSubmitted {
		return nil, appErrors.Clonef(appErrors.ErrConflict, "report %s was already reviewed", reportID)
	}

	score, err := decimal.NewFromString(strings.TrimSpace(req.Score))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score must be a decimal number")
	}
	if score.IsNegative() || score.GreaterThan(scoring.MaxScore) {
		return nil, appErrors.Clonef(appErrors.ErrOutOfRange, "report %s score %s outside [0,20]", reportID, score.String())
	}

	reviewed, err := s.repo.Review(ctx, reportID, actor.ID, scoring.RoundHalfUp(score), strings.TrimSpace(req.Feedback), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, appErrors.Clonef(appErrors.ErrConflict, "report %s was already reviewed", reportID)
		}
		return nil, internal(err, "failed to review report "+reportID)
	}
	return reviewed, nil
}

// ListByInternship returns report metadata.
func (s *ReportService) ListByInternship(ctx context.Context, internshipID string, actor models.Actor) ([]models.InternshipReport, error) {
	internship, err := s.internships.GetByID(ctx, internshipID)
	if err != nil {
		return nil, notFoundOr(err, "internship", internshipID)
	}
	if !canViewInternship(internship, actor) {
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot access internship %s", actor.ID, internshipID)
	}
	reports, err := s.repo.ListByInternship(ctx, internshipID)
	if err != nil {
		return nil, internal(err, "failed to list reports")
	}
	return reports, nil
}

// Download fetches the report file after verifying its checksum.
func (s *ReportService) Download(ctx context.Context, reportID string, actor models.Actor) (*dto.ReportDownload, error) {
	report, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return nil, notFoundOr(err, "report", reportID)
	}
	internship, err := s.internships.GetByID(ctx, report.InternshipID)
	if err != nil {
		return nil, notFoundOr(err, "internship", report.InternshipID)
	}
	if !canViewInternship(internship, actor) {
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot access report %s", actor.ID, reportID)
	}
	data, err := fetchDocument(ctx, s.retrier, s.store, s.logger, report.DocumentPath, report.Checksum, "report "+reportID)
	if err != nil {
		return nil, err
	}
	return &dto.ReportDownload{
		FileName:    reportID + filepath.Ext(report.DocumentPath),
		ContentType: report.ContentType,
		Data:        data,
	}, nil
}

func normalizeContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if idx := strings.Index(declared, ";"); idx >= 0 {
		declared = strings.TrimSpace(declared[:idx])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	detected := http.DetectContentType(data)
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	return detected
}
