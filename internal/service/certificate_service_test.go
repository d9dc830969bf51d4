package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

// seedCompletedInternship stores a COMPLETED internship with one enterprise
// evaluation scoring 13.75.
func seedCompletedInternship(h *lifecycleHarness) *models.Internship {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	supervisor := supervisorActor.ID
	end := date("2026-05-25")
	internship := &models.Internship{
		ID:            "int-seeded",
		ApplicationID: "app-seeded",
		StudentID:     studentActor.ID,
		EnterpriseID:  "enterprise-1",
		OfferID:       "offer-1",
		UniversityID:  "Univ of Lomé",
		SupervisorID:  &supervisor,
		StartDate:     date("2026-03-02"),
		EndDate:       end,
		ActualEndDate: &end,
		Status:        models.InternshipCompleted,
		Version:       4,
	}
	h.db.internships[internship.ID] = internship
	h.db.evaluations = append(h.db.evaluations, models.Evaluation{
		ID:            "eval-seeded",
		InternshipID:  internship.ID,
		EvaluatorID:   supervisor,
		EvaluatorType: models.EvaluatorEnterprise,
		Scale:         20,
		Technical:     decimal.NewFromInt(14),
		Interpersonal: decimal.NewFromInt(15),
		Attendance:    decimal.NewFromInt(13),
		Initiative:    decimal.NewFromInt(12),
		ReportQuality: decimal.NewFromInt(14),
		SubmittedAt:   date("2026-05-20"),
	})
	cp := *internship
	return &cp
}

func TestIssueCertificate(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := seedCompletedInternship(h)

	cert, err := h.certificates.Issue(context.Background(), internship.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "UNIVOFLOM-2026-000001", cert.CertificateNumber)
	assert.Equal(t, scoring.MentionC, cert.Mention)
	assert.Equal(t, "13.75", cert.OverallScore.StringFixed(2))
	assert.Equal(t, adminActor.ID, cert.IssuedBy)
	assert.NotEmpty(t, cert.DocumentChecksum)

	events := h.db.eventsFor(models.EntityCertificate, cert.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.CertificateIssued, events[0].NewStatus)

	again, err := h.certificates.Issue(context.Background(), internship.ID, models.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, again.ID)
	assert.Equal(t, 1, h.db.certificateCount())
}

func TestIssueCertificateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(h *lifecycleHarness, in *models.Internship)
		actor   models.Actor
		wantErr *appErrors.Error
	}{
		{
			name:    "student cannot issue",
			actor:   studentActor,
			wantErr: appErrors.ErrForbidden,
		},
		{
			name: "internship still ongoing",
			mutate: func(h *lifecycleHarness, in *models.Internship) {
				h.db.internships[in.ID].Status = models.InternshipOngoing
			},
			actor:   adminActor,
			wantErr: appErrors.ErrValidation,
		},
		{
			name: "terminated internship",
			mutate: func(h *lifecycleHarness, in *models.Internship) {
				h.db.internships[in.ID].Status = models.InternshipTerminated
			},
			actor:   adminActor,
			wantErr: appErrors.ErrValidation,
		},
		{
			name: "no evaluations",
			mutate: func(h *lifecycleHarness, _ *models.Internship) {
				h.db.evaluations = nil
			},
			actor:   adminActor,
			wantErr: appErrors.ErrValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newLifecycleHarness(t)
			internship := seedCompletedInternship(h)
			if tc.mutate != nil {
				h.db.mu.Lock()
				tc.mutate(h, internship)
				h.db.mu.Unlock()
			}
			_, err := h.certificates.Issue(context.Background(), internship.ID, tc.actor)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, h.db.certificateCount())
		})
	}
}

func TestIssueCertificateUnknownInternship(t *testing.T) {
	h := newLifecycleHarness(t)
	_, err := h.certificates.Issue(context.Background(), "missing", adminActor)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestConcurrentIssueReturnsSingleCertificate(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := seedCompletedInternship(h)

	const callers = 8
	results := make([]*models.Certificate, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.certificates.Issue(context.Background(), internship.ID, models.SystemActor)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
		assert.Equal(t, results[0].CertificateNumber, results[i].CertificateNumber)
		assert.Equal(t, results[0].VerificationCode, results[i].VerificationCode)
	}
	assert.Equal(t, 1, h.db.certificateCount())

	assert.Equal(t, 1, h.docs.count("certificates"), "losing issuers must not leave their PDFs behind")
	_, err := h.docs.Fetch(context.Background(), results[0].DocumentPath, results[0].DocumentChecksum)
	assert.NoError(t, err)
}

func TestIssueCertificateStoreUnavailable(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := seedCompletedInternship(h)
	h.docs.alwaysFail = true

	_, err := h.certificates.Issue(context.Background(), internship.ID, adminActor)
	assert.ErrorIs(t, err, appErrors.ErrDependencyUnavailable)
	assert.Zero(t, h.db.certificateCount())
	assert.Equal(t, 3, h.docs.storeCalls)
	assert.Empty(t, h.db.eventsFor(models.EntityCertificate, ""))
}

func TestIssueCertificateRecoversFromTransientFailures(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := seedCompletedInternship(h)
	h.docs.failStores = 2
	h.sequences.failures = 2

	cert, err := h.certificates.Issue(context.Background(), internship.ID, adminActor)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(cert.CertificateNumber, "-000001"))
	assert.Equal(t, 1, h.db.certificateCount())
}

func TestIssueCertificateRedrawsTakenVerificationCode(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := seedCompletedInternship(h)
	h.db.certificates["cert-other"] = &models.Certificate{
		ID:                "cert-other",
		InternshipID:      "int-other",
		CertificateNumber: "OTHER-2026-000001",
		VerificationCode:  "AAAAAAAAAAAAAAAA",
	}
	codes := []string{"AAAAAAAAAAAAAAAA", "BBBBBBBBBBBBBBBB"}
	h.certificates.randomCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	cert, err := h.certificates.Issue(context.Background(), internship.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBBBBBBBBBB", cert.VerificationCode)

	assert.Equal(t, 1, h.docs.count("certificates"), "the PDF naming the taken code is discarded")
	_, err = h.docs.Fetch(context.Background(), cert.DocumentPath, cert.DocumentChecksum)
	assert.NoError(t, err)
}

func TestVerifyCertificateUsesCache(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := seedCompletedInternship(h)
	cert, err := h.certificates.Issue(context.Background(), internship.ID, adminActor)
	require.NoError(t, err)

	first, err := h.certificates.Verify(context.Background(), strings.ToLower(cert.VerificationCode))
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.Equal(t, cert.CertificateNumber, first.CertificateNumber)
	assert.Equal(t, "Good", first.MentionLabel)

	second, err := h.certificates.Verify(context.Background(), cert.VerificationCode)
	require.NoError(t, err)
	assert.True(t, second.Valid)
	assert.Equal(t, 1, h.cache.hits)

	unknown, err := h.certificates.Verify(context.Background(), "ZZZZZZZZZZZZZZZZ")
	require.NoError(t, err)
	assert.False(t, unknown.Valid)
	assert.Empty(t, unknown.CertificateNumber)

	blank, err := h.certificates.Verify(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, blank.Valid)
}

func TestCertificateDownloadRoundTrip(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := seedCompletedInternship(h)
	cert, err := h.certificates.Issue(context.Background(), internship.ID, adminActor)
	require.NoError(t, err)

	resp, err := h.certificates.GetByInternship(context.Background(), internship.ID, studentActor)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

	parsed, err := url.Parse(resp.DownloadURL)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	file, err := h.certificates.Download(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, cert.CertificateNumber+".pdf", file.FileName)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))

	_, err = h.certificates.Download(context.Background(), token+"x")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	h.docs.corrupt(cert.DocumentPath)
	_, err = h.certificates.Download(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrInvariantViolation)
}

func TestGetCertificateHiddenFromOtherStudents(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := seedCompletedInternship(h)
	_, err := h.certificates.Issue(context.Background(), internship.ID, adminActor)
	require.NoError(t, err)

	_, err = h.certificates.GetByInternship(context.Background(), internship.ID, otherStudent)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestInstitutionCodeAndNumberFormat(t *testing.T) {
	assert.Equal(t, "UNIV1", InstitutionCode("univ-1"))
	assert.Equal(t, "INST", InstitutionCode("--"))
	assert.Equal(t, "UNIV1-2026-000042", FormatCertificateNumber("UNIV1", 2026, 42))

	code, err := NewVerificationCode()
	require.NoError(t, err)
	assert.Len(t, code, 16)
	assert.Equal(t, strings.ToUpper(code), code)
}
