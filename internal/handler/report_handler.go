package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

const maxReportUploadBytes = 20 << 20

type reportService interface {
	Upload(ctx context.Context, internshipID string, req dto.UploadReportRequest, actor models.Actor) (*models.InternshipReport, error)
	Review(ctx context.Context, reportID string, req dto.ReviewReportRequest, actor models.Actor) (*models.InternshipReport, error)
	ListByInternship(ctx context.Context, internshipID string, actor models.Actor) ([]models.InternshipReport, error)
	Download(ctx context.Context, reportID string, actor models.Actor) (*dto.ReportDownload, error)
}

// ReportHandler exposes internship report endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Upload godoc
// @Summary Upload an internship report
// @Tags Reports
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Internship ID"
// @Param type formData string true "WEEKLY, MONTHLY, MIDTERM, FINAL or ACTIVITY"
// @Param title formData string true "Report title"
// @Param file formData file true "Report document"
// @Success 201 {object} response.Envelope
// @Router /internships/{id}/reports [post]
func (h *ReportHandler) Upload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "report file is required"))
		return
	}
	if header.Size > maxReportUploadBytes {
		response.Error(c, appErrors.Clonef(appErrors.ErrValidation, "report file exceeds %d bytes", maxReportUploadBytes))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "report file is unreadable"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxReportUploadBytes))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "report file is unreadable"))
		return
	}

	req := dto.UploadReportRequest{
		Type:        models.InternshipReportType(c.PostForm("type")),
		Title:       c.PostForm("title"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	report, err := h.service.Upload(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// List godoc
// @Summary List reports of an internship
// @Tags Reports
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	reports, err := h.service.ListByInternship(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil, countMeta(len(reports)))
}

// Review godoc
// @Summary Score a submitted report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.ReviewReportRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/review [post]
func (h *ReportHandler) Review(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ReviewReportRequest
	if !bindJSON(c, &req, "review") {
		return
	}
	report, err := h.service.Review(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Download godoc
// @Summary Download a report document
// @Tags Reports
// @Produce octet-stream
// @Param id path string true "Report ID"
// @Success 200 {file} file
// @Router /reports/{id}/file [get]
func (h *ReportHandler) Download(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	doc, err := h.service.Download(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", doc.FileName))
	c.Data(http.StatusOK, doc.ContentType, doc.Data)
}
