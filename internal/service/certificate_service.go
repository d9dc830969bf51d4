package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/repository"
	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/export"
	"github.com/noah-isme/internship-lifecycle-api/pkg/retry"
	"github.com/noah-isme/internship-lifecycle-api/pkg/storage"
)

const (
	verificationCodeBytes   = 10
	maxIdentifierRedraws    = 5
	verificationCachePrefix = "certificate:verify:"
)

var verificationEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type certificateStore interface {
	Create(ctx context.Context, cert *models.Certificate, event *models.LifecycleEvent) error
	GetByID(ctx context.Context, id string) (*models.Certificate, error)
	GetByInternshipID(ctx context.Context, internshipID string) (*models.Certificate, error)
	GetByVerificationCode(ctx context.Context, code string) (*models.Certificate, error)
}

// SequenceAllocator hands out certificate sequence numbers per institution and year.
type SequenceAllocator interface {
	Next(ctx context.Context, institution string, year int) (int64, error)
}

type evaluationLister interface {
	ListByInternship(ctx context.Context, internshipID string) ([]models.Evaluation, error)
}

type certificateRenderer interface {
	RenderCertificate(content export.CertificateContent) ([]byte, error)
}

type verificationCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CertificateServiceConfig configures issuance and verification.
type CertificateServiceConfig struct {
	VerifyBaseURL  string
	DownloadPath   string
	VerifyCacheTTL time.Duration
}

// CertificateService issues, verifies and serves internship certificates.
type CertificateService struct {
	repo        certificateStore
	internships internshipReader
	evaluations evaluationLister
	sequences   SequenceAllocator
	engine      *scoring.Engine
	renderer    certificateRenderer
	store       storage.DocumentStore
	signer      *storage.SignedURLSigner
	cache       verificationCache
	publisher   EventPublisher
	retrier     *retry.Retrier
	seqRetrier  *retry.Retrier
	metrics     *MetricsService
	logger      *zap.Logger
	config      CertificateServiceConfig
	now         Clock
	randomCode  func() (string, error)
}

// CertificateServiceDeps groups the collaborators of CertificateService.
type CertificateServiceDeps struct {
	Repo        certificateStore
	Internships internshipReader
	Evaluations evaluationLister
	Sequences   SequenceAllocator
	Engine      *scoring.Engine
	Renderer    certificateRenderer
	Store       storage.DocumentStore
	Signer      *storage.SignedURLSigner
	Cache       verificationCache
	Publisher   EventPublisher
	Retrier     *retry.Retrier
	Metrics     *MetricsService
	Logger      *zap.Logger
}

// NewCertificateService constructs the service.
func NewCertificateService(deps CertificateServiceDeps, cfg CertificateServiceConfig) *CertificateService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/certificates/download"
	}
	if cfg.VerifyCacheTTL <= 0 {
		cfg.VerifyCacheTTL = 10 * time.Minute
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = export.NewPDFExporter("")
	}
	return &CertificateService{
		repo:        deps.Repo,
		internships: deps.Internships,
		evaluations: deps.Evaluations,
		sequences:   deps.Sequences,
		engine:      deps.Engine,
		renderer:    renderer,
		store:       deps.Store,
		signer:      deps.Signer,
		cache:       deps.Cache,
		publisher:   deps.Publisher,
		retrier:     dependencyRetrier(deps.Retrier, "document_store", deps.Metrics, logger),
		seqRetrier:  dependencyRetrier(deps.Retrier, "certificate_sequence", deps.Metrics, logger),
		metrics:     deps.Metrics,
		logger:      logger,
		config:      cfg,
		now:         systemClock,
		randomCode:  NewVerificationCode,
	}
}

// Issue returns the certificate of a COMPLETED internship, creating it on first
// call. Concurrent callers all receive the single stored record.
func (s *CertificateService) Issue(ctx context.Context, internshipID string, actor models.Actor) (*models.Certificate, error) {
	ctx, span := tracer().Start(ctx, "certificate.issue")
	defer span.End()
	span.SetAttributes(attribute.String("internship.id", internshipID), attribute.String("actor.id", actor.ID))

	cert, err := s.issue(ctx, internshipID, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, appErrors.FromError(err).Code)
		return nil, err
	}
	span.SetAttributes(attribute.String("certificate.number", cert.CertificateNumber))
	return cert, nil
}

func (s *CertificateService) issue(ctx context.Context, internshipID string, actor models.Actor) (*models.Certificate, error) {
	started := time.Now()
	switch actor.Role {
	case models.RoleAdmin, models.RoleCoordinator, models.RoleSystem:
	default:
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "role %s cannot issue certificates", actor.Role)
	}

	existing, err := s.existing(ctx, internshipID)
	if err != nil || existing != nil {
		return existing, err
	}

	internship, err := s.internships.GetByID(ctx, internshipID)
	if err != nil {
		return nil, notFoundOr(err, "internship", internshipID)
	}
	if internship.Status != models.InternshipCompleted {
		return nil, appErrors.Clonef(appErrors.ErrValidation,
			"internship %s is %s; certificates are issued for COMPLETED internships", internshipID, internship.Status)
	}

	evaluations, err := s.evaluations.ListByInternship(ctx, internshipID)
	if err != nil {
		return nil, internal(err, "failed to load evaluations")
	}
	if len(evaluations) == 0 {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "internship %s has no evaluations to score", internshipID)
	}
	result, err := ScoreEvaluations(s.engine, evaluations)
	if err != nil {
		return nil, err
	}

	issuedAt := s.now()
	institution := InstitutionCode(internship.UniversityID)
	number, err := s.allocateNumber(ctx, institution, issuedAt.Year())
	if err != nil {
		return nil, err
	}
	code, err := s.randomCode()
	if err != nil {
		return nil, internal(err, "failed to generate verification code")
	}

	for attempt := 1; attempt <= maxIdentifierRedraws; attempt++ {
		stored, err := s.storeDocument(ctx, internship, result, number, code, issuedAt)
		if err != nil {
			return nil, err
		}
		cert := &models.Certificate{
			InternshipID:      internship.ID,
			CertificateNumber: number,
			VerificationCode:  code,
			StudentID:         internship.StudentID,
			EnterpriseID:      internship.EnterpriseID,
			UniversityID:      internship.UniversityID,
			OverallScore:      result.OverallScore,
			Mention:           result.Mention,
			DocumentPath:      stored.Path,
			DocumentChecksum:  stored.Checksum,
			IssuedBy:          actor.ID,
			IssuedAt:          issuedAt,
		}
		event := newEvent(models.EntityCertificate, "", "", models.CertificateIssued, actor, nil, issuedAt)
		err = s.repo.Create(ctx, cert, event)
		if err != nil {
			// The PDF names identifiers that were not persisted.
			s.discardDocument(ctx, internshipID, stored.Path)
		}
		switch {
		case err == nil:
			s.metrics.ObserveCertificateIssued(time.Since(started))
			s.forgetVerification(ctx, code)
			s.logger.Info("certificate issued",
				zap.String("internship_id", internship.ID),
				zap.String("certificate_id", cert.ID),
				zap.String("certificate_number", number),
				zap.String("mention", string(cert.Mention)))
			publishCommitted(ctx, s.publisher, s.logger, event)
			return cert, nil
		case errors.Is(err, repository.ErrCertificateExists):
			winner, err := s.existing(ctx, internshipID)
			if err != nil {
				return nil, err
			}
			if winner == nil {
				return nil, appErrors.Clonef(appErrors.ErrInvariantViolation,
					"internship %s reported an existing certificate that cannot be read", internshipID)
			}
			return winner, nil
		case errors.Is(err, repository.ErrVerificationCodeTaken):
			s.logger.Warn("verification code collision, redrawing", zap.String("internship_id", internshipID), zap.Int("attempt", attempt))
			if code, err = s.randomCode(); err != nil {
				return nil, internal(err, "failed to generate verification code")
			}
		case errors.Is(err, repository.ErrCertificateNumberTaken):
			s.logger.Warn("certificate number collision, reallocating",
				zap.String("internship_id", internshipID), zap.String("number", number), zap.Int("attempt", attempt))
			if number, err = s.allocateNumber(ctx, institution, issuedAt.Year()); err != nil {
				return nil, err
			}
		default:
			return nil, internal(err, "failed to persist certificate for internship "+internshipID)
		}
	}
	return nil, appErrors.Clonef(appErrors.ErrInternal,
		"could not allocate unique certificate identifiers for internship %s", internshipID)
}

// discardDocument removes a rendered certificate whose row was never stored.
// Failure leaves an unreferenced object behind and is logged only.
func (s *CertificateService) discardDocument(ctx context.Context, internshipID, path string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.logger.Warn("failed to discard unreferenced certificate document",
			zap.String("internship_id", internshipID), zap.String("path", path), zap.Error(err))
	}
}

// existing returns the stored certificate, nil when there is none.
func (s *CertificateService) existing(ctx context.Context, internshipID string) (*models.Certificate, error) {
	cert, err := s.repo.GetByInternshipID(ctx, internshipID)
	switch {
	case err == nil:
		return cert, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case errors.Is(err, repository.ErrMultipleCertificates):
		s.logger.Error("multiple certificates stored for one internship", zap.String("internship_id", internshipID))
		return nil, appErrors.WrapAs(err, appErrors.ErrInvariantViolation,
			"internship "+internshipID+" has more than one certificate")
	default:
		return nil, internal(err, "failed to load certificate")
	}
}

func (s *CertificateService) allocateNumber(ctx context.Context, institution string, year int) (string, error) {
	seq, err := retry.DoWithData(ctx, s.seqRetrier, func(ctx context.Context) (int64, error) {
		v, err := s.sequences.Next(ctx, institution, year)
		if err != nil {
			return 0, retry.Retryable(err)
		}
		return v, nil
	})
	if err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrDependencyUnavailable,
			fmt.Sprintf("certificate sequence for %s/%d unavailable", institution, year))
	}
	return FormatCertificateNumber(institution, year, seq), nil
}

func (s *CertificateService) storeDocument(ctx context.Context, internship *models.Internship, result scoring.Result,
	number, code string, issuedAt time.Time) (storage.StoredDocument, error) {
	pdf, err := s.renderer.RenderCertificate(export.CertificateContent{
		CertificateNumber: number,
		VerificationCode:  code,
		StudentRef:        internship.StudentID,
		EnterpriseRef:     internship.EnterpriseID,
		UniversityRef:     internship.UniversityID,
		StartDate:         internship.StartDate,
		EndDate:           completionDate(internship),
		OverallScore:      result.OverallScore.StringFixed(2),
		Mention:           string(result.Mention),
		MentionLabel:      result.Mention.Label(),
		IssuedAt:          issuedAt,
		VerifyURL:         s.verifyURL(code),
	})
	if err != nil {
		return storage.StoredDocument{}, internal(err, "failed to render certificate for internship "+internship.ID)
	}
	return storeDocument(ctx, s.retrier, s.store, storage.Document{
		Category:    "certificates",
		Name:        number + ".pdf",
		ContentType: "application/pdf",
		Data:        pdf,
	}, "certificate of internship "+internship.ID)
}

// Verify answers a public authenticity lookup. Unknown codes are reported as
// invalid rather than as errors.
func (s *CertificateService) Verify(ctx context.Context, code string) (*models.CertificateVerification, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || len(code) > 64 {
		return &models.CertificateVerification{Valid: false}, nil
	}
	key := verificationCachePrefix + code
	if s.cache != nil {
		var cached models.CertificateVerification
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	cert, err := s.repo.GetByVerificationCode(ctx, code)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, internal(err, "failed to verify certificate")
	}
	result := &models.CertificateVerification{Valid: false}
	if cert != nil && err == nil {
		issuedAt := cert.IssuedAt
		result = &models.CertificateVerification{
			Valid:             true,
			CertificateNumber: cert.CertificateNumber,
			StudentRef:        cert.StudentID,
			Mention:           cert.Mention,
			MentionLabel:      cert.Mention.Label(),
			IssuedAt:          &issuedAt,
		}
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, result, s.config.VerifyCacheTTL)
	}
	return result, nil
}

// GetByInternship returns the certificate with a signed download link.
func (s *CertificateService) GetByInternship(ctx context.Context, internshipID string, actor models.Actor) (*dto.CertificateResponse, error) {
	internship, err := s.internships.GetByID(ctx, internshipID)
	if err != nil {
		return nil, notFoundOr(err, "internship", internshipID)
	}
	if !canViewInternship(internship, actor) {
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "actor %s cannot access internship %s", actor.ID, internshipID)
	}
	cert, err := s.existing(ctx, internshipID)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, appErrors.Clonef(appErrors.ErrNotFound, "internship %s has no certificate", internshipID)
	}
	token, expiresAt, err := s.signer.Generate(cert.ID, cert.DocumentPath)
	if err != nil {
		return nil, internal(err, "failed to sign certificate download")
	}
	return &dto.CertificateResponse{
		Certificate:  *cert,
		MentionLabel: cert.Mention.Label(),
		DownloadURL:  s.config.DownloadPath + "?token=" + url.QueryEscape(token),
		ExpiresAt:    expiresAt,
	}, nil
}

// Download serves the certificate document addressed by a signed token.
func (s *CertificateService) Download(ctx context.Context, token string) (*dto.CertificateDownload, error) {
	certID, docPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	cert, err := s.repo.GetByID(ctx, certID)
	if err != nil {
		return nil, notFoundOr(err, "certificate", certID)
	}
	if cert.DocumentPath != docPath {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	data, err := fetchDocument(ctx, s.retrier, s.store, s.logger, cert.DocumentPath, cert.DocumentChecksum, "certificate "+cert.ID)
	if err != nil {
		return nil, err
	}
	return &dto.CertificateDownload{FileName: cert.CertificateNumber + ".pdf", Data: data}, nil
}

func (s *CertificateService) verifyURL(code string) string {
	if s.config.VerifyBaseURL == "" {
		return ""
	}
	return s.config.VerifyBaseURL + "/" + code
}

func (s *CertificateService) forgetVerification(ctx context.Context, code string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, verificationCachePrefix+code)
	}
}

func completionDate(internship *models.Internship) time.Time {
	if internship.ActualEndDate != nil {
		return *internship.ActualEndDate
	}
	return internship.EndDate
}

// InstitutionCode reduces a university reference to upper-case [A-Z0-9].
func InstitutionCode(universityID string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(universityID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "INST"
	}
	return b.String()
}

// FormatCertificateNumber renders {INSTITUTION}-{YEAR}-{SEQ:06d}.
func FormatCertificateNumber(institution string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", institution, year, seq)
}

// NewVerificationCode draws 80 random bits and encodes them as 16 base32 characters.
func NewVerificationCode() (string, error) {
	buf := make([]byte, verificationCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return verificationEncoding.EncodeToString(buf), nil
}
