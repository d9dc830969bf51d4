package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

type certificateServiceStub struct {
	cert      *models.Certificate
	response  *dto.CertificateResponse
	verify    *models.CertificateVerification
	download  *dto.CertificateDownload
	err       error
	lastCode  string
	lastToken string
}

func (s *certificateServiceStub) Issue(ctx context.Context, internshipID string, actor models.Actor) (*models.Certificate, error) {
	return s.cert, s.err
}

func (s *certificateServiceStub) GetByInternship(ctx context.Context, internshipID string, actor models.Actor) (*dto.CertificateResponse, error) {
	return s.response, s.err
}

func (s *certificateServiceStub) Verify(ctx context.Context, code string) (*models.CertificateVerification, error) {
	s.lastCode = code
	return s.verify, s.err
}

func (s *certificateServiceStub) Download(ctx context.Context, token string) (*dto.CertificateDownload, error) {
	s.lastToken = token
	return s.download, s.err
}

func TestCertificateHandlerVerifyIsPublic(t *testing.T) {
	stub := &certificateServiceStub{verify: &models.CertificateVerification{Valid: true, CertificateNumber: "UNI1-2026-000001"}}
	handler := NewCertificateHandler(stub)

	c, w := newTestContext(http.MethodGet, "/verify/abc", "", nil, gin.Param{Key: "code", Value: "abc"})
	handler.Verify(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", stub.lastCode)
	var result models.CertificateVerification
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.True(t, result.Valid)
	assert.Equal(t, "UNI1-2026-000001", result.CertificateNumber)
}

func TestCertificateHandlerVerifyUnknownCode(t *testing.T) {
	stub := &certificateServiceStub{err: appErrors.Clone(appErrors.ErrNotFound, "verification code not found")}
	handler := NewCertificateHandler(stub)

	c, w := newTestContext(http.MethodGet, "/verify/nope", "", nil, gin.Param{Key: "code", Value: "nope"})
	handler.Verify(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCertificateHandlerDownload(t *testing.T) {
	stub := &certificateServiceStub{download: &dto.CertificateDownload{FileName: "UNI1-2026-000001.pdf", Data: []byte("%PDF")}}
	handler := NewCertificateHandler(stub)

	c, w := newTestContext(http.MethodGet, "/certificates/download?token=signed", "", nil)
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signed", stub.lastToken)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "UNI1-2026-000001.pdf")

	c, w = newTestContext(http.MethodGet, "/certificates/download", "", nil)
	handler.Download(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCertificateHandlerIssueRequiresClaims(t *testing.T) {
	handler := NewCertificateHandler(&certificateServiceStub{})

	c, w := newTestContext(http.MethodPost, "/internships/int-1/certificate", "", nil, idParam("int-1"))
	handler.Issue(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	stub := &certificateServiceStub{cert: &models.Certificate{ID: "cert-1", InternshipID: "int-1"}}
	handler = NewCertificateHandler(stub)
	c, w = newTestContext(http.MethodPost, "/internships/int-1/certificate", "", claimsFor("admin-1", models.RoleAdmin), idParam("int-1"))
	handler.Issue(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}
