package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

type evaluationService interface {
	Submit(ctx context.Context, internshipID string, req dto.SubmitEvaluationRequest, actor models.Actor) (*models.Evaluation, error)
	List(ctx context.Context, internshipID string, actor models.Actor) ([]models.Evaluation, dto.ScorePreview, error)
}

// EvaluationHandler exposes supervisor evaluation endpoints.
type EvaluationHandler struct {
	service evaluationService
}

// NewEvaluationHandler builds a new handler.
func NewEvaluationHandler(service evaluationService) *EvaluationHandler {
	return &EvaluationHandler{service: service}
}

// Submit godoc
// @Summary Record an evaluation for an internship
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Internship ID"
// @Param payload body dto.SubmitEvaluationRequest true "Evaluation payload"
// @Success 201 {object} response.Envelope
// @Router /internships/{id}/evaluations [post]
func (h *EvaluationHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.SubmitEvaluationRequest
	if !bindJSON(c, &req, "evaluation") {
		return
	}
	evaluation, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, evaluation)
}

// List godoc
// @Summary List evaluations with the current score preview
// @Tags Evaluations
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/evaluations [get]
func (h *EvaluationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	evaluations, preview, err := h.service.List(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, nil, map[string]interface{}{"score": preview})
}
