package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

type certificateService interface {
	Issue(ctx context.Context, internshipID string, actor models.Actor) (*models.Certificate, error)
	GetByInternship(ctx context.Context, internshipID string, actor models.Actor) (*dto.CertificateResponse, error)
	Verify(ctx context.Context, code string) (*models.CertificateVerification, error)
	Download(ctx context.Context, token string) (*dto.CertificateDownload, error)
}

// CertificateHandler exposes certificate issuance, download and public verification.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler builds a new handler.
func NewCertificateHandler(service certificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Issue godoc
// @Summary Issue the certificate of a completed internship
// @Description Returns the existing certificate when one was already issued.
// @Tags Certificates
// @Produce json
// @Param id path string true "Internship ID"
// @Success 201 {object} response.Envelope
// @Router /internships/{id}/certificate [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	cert, err := h.service.Issue(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// Get godoc
// @Summary Get the certificate of an internship with a signed download link
// @Tags Certificates
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/certificate [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	cert, err := h.service.GetByInternship(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Download godoc
// @Summary Download a certificate document through a signed link
// @Tags Certificates
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Router /certificates/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	doc, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", doc.FileName))
	c.Data(http.StatusOK, "application/pdf", doc.Data)
}

// Verify godoc
// @Summary Verify a certificate by its public code
// @Tags Certificates
// @Produce json
// @Param code path string true "Verification code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /verify/{code} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
