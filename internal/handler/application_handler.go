package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

type applicationService interface {
	Submit(ctx context.Context, req dto.SubmitApplicationRequest, actor models.Actor) (*models.Application, error)
	Transition(ctx context.Context, id string, req dto.ApplicationTransitionRequest, actor models.Actor) (*models.Application, error)
	Get(ctx context.Context, id string, actor models.Actor) (*models.Application, error)
	List(ctx context.Context, query dto.ApplicationQuery, actor models.Actor) ([]models.Application, error)
}

// ApplicationHandler exposes internship application endpoints.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// Submit godoc
// @Summary Apply to an internship offer
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.SubmitApplicationRequest
	if !bindJSON(c, &req, "application") {
		return
	}
	app, err := h.service.Submit(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Transition godoc
// @Summary Move an application to a new status
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ApplicationTransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /applications/{id}/transitions [post]
func (h *ApplicationHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ApplicationTransitionRequest
	if !bindJSON(c, &req, "transition") {
		return
	}
	app, err := h.service.Transition(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Get godoc
// @Summary Get an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	app, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// List godoc
// @Summary List applications visible to the caller
// @Tags Applications
// @Produce json
// @Param offer_id query string false "Offer ID"
// @Param student_id query string false "Student ID"
// @Param status query string false "Status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.ApplicationQuery
	if !bindQuery(c, &query) {
		return
	}
	apps, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil, countMeta(len(apps)))
}
