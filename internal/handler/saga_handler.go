package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

type sagaConsole interface {
	ListSagas(ctx context.Context, query dto.SagaQuery, actor models.Actor) ([]models.SagaRun, error)
	RetrySaga(ctx context.Context, id string, actor models.Actor) (*models.SagaRun, error)
}

// SagaHandler is the operator console for coordinated sequences.
type SagaHandler struct {
	console sagaConsole
}

// NewSagaHandler builds a new handler.
func NewSagaHandler(console sagaConsole) *SagaHandler {
	return &SagaHandler{console: console}
}

// List godoc
// @Summary List saga runs
// @Tags Sagas
// @Produce json
// @Param status query string false "Comma separated RUNNING, DONE, STALLED"
// @Param kind query string false "Saga kind"
// @Success 200 {object} response.Envelope
// @Router /sagas [get]
func (h *SagaHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.SagaQuery
	if !bindQuery(c, &query) {
		return
	}
	runs, err := h.console.ListSagas(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil, countMeta(len(runs)))
}

// Retry godoc
// @Summary Retry a stalled saga
// @Tags Sagas
// @Produce json
// @Param id path string true "Saga ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sagas/{id}/retry [post]
func (h *SagaHandler) Retry(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	run, err := h.console.RetrySaga(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}
