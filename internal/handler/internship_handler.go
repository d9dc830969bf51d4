package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

type internshipService interface {
	Transition(ctx context.Context, id string, req dto.InternshipTransitionRequest, actor models.Actor) (*models.Internship, error)
	AssignSupervisor(ctx context.Context, id string, req dto.AssignSupervisorRequest, actor models.Actor) (*models.Internship, error)
	RecordAttendance(ctx context.Context, id string, req dto.RecordAttendanceRequest, actor models.Actor) (*models.AttendanceRecord, bool, error)
	LogActivity(ctx context.Context, id string, req dto.LogActivityRequest, actor models.Actor) (*models.ActivityLog, error)
	Get(ctx context.Context, id string, actor models.Actor) (*dto.InternshipDetail, error)
	List(ctx context.Context, query dto.InternshipQuery, actor models.Actor) ([]models.Internship, error)
	ListAttendance(ctx context.Context, id string, actor models.Actor) ([]models.AttendanceRecord, error)
	ListActivities(ctx context.Context, id string, actor models.Actor) ([]models.ActivityLog, error)
}

// InternshipHandler exposes internship lifecycle endpoints.
type InternshipHandler struct {
	service internshipService
}

// NewInternshipHandler builds a new handler.
func NewInternshipHandler(service internshipService) *InternshipHandler {
	return &InternshipHandler{service: service}
}

// List godoc
// @Summary List internships visible to the caller
// @Tags Internships
// @Produce json
// @Param student_id query string false "Student ID"
// @Param enterprise_id query string false "Enterprise ID"
// @Param supervisor_id query string false "Supervisor ID"
// @Param status query string false "Status"
// @Success 200 {object} response.Envelope
// @Router /internships [get]
func (h *InternshipHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.InternshipQuery
	if !bindQuery(c, &query) {
		return
	}
	items, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, countMeta(len(items)))
}

// Get godoc
// @Summary Get an internship with progress and attendance
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id} [get]
func (h *InternshipHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// AssignSupervisor godoc
// @Summary Assign the company or academic supervisor
// @Tags Internships
// @Accept json
// @Produce json
// @Param id path string true "Internship ID"
// @Param payload body dto.AssignSupervisorRequest true "Supervisor payload"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/supervisor [post]
func (h *InternshipHandler) AssignSupervisor(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AssignSupervisorRequest
	if !bindJSON(c, &req, "supervisor") {
		return
	}
	internship, err := h.service.AssignSupervisor(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, internship, nil)
}

// Transition godoc
// @Summary Move an internship to a new status
// @Tags Internships
// @Accept json
// @Produce json
// @Param id path string true "Internship ID"
// @Param payload body dto.InternshipTransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /internships/{id}/transitions [post]
func (h *InternshipHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.InternshipTransitionRequest
	if !bindJSON(c, &req, "transition") {
		return
	}
	internship, err := h.service.Transition(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, internship, nil)
}

// RecordAttendance godoc
// @Summary Record one day of attendance
// @Description Replaying the same day and status returns the stored record with 200.
// @Tags Internships
// @Accept json
// @Produce json
// @Param id path string true "Internship ID"
// @Param payload body dto.RecordAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/attendance [post]
func (h *InternshipHandler) RecordAttendance(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.RecordAttendanceRequest
	if !bindJSON(c, &req, "attendance") {
		return
	}
	record, created, err := h.service.RecordAttendance(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, record)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListAttendance godoc
// @Summary List attendance records
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/attendance [get]
func (h *InternshipHandler) ListAttendance(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	records, err := h.service.ListAttendance(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil, countMeta(len(records)))
}

// LogActivity godoc
// @Summary Append an activity journal entry
// @Tags Internships
// @Accept json
// @Produce json
// @Param id path string true "Internship ID"
// @Param payload body dto.LogActivityRequest true "Activity payload"
// @Success 201 {object} response.Envelope
// @Router /internships/{id}/activities [post]
func (h *InternshipHandler) LogActivity(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.LogActivityRequest
	if !bindJSON(c, &req, "activity") {
		return
	}
	entry, err := h.service.LogActivity(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// ListActivities godoc
// @Summary List activity journal entries
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/activities [get]
func (h *InternshipHandler) ListActivities(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	entries, err := h.service.ListActivities(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil, countMeta(len(entries)))
}
