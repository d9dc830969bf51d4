package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

type eventFeedService interface {
	List(ctx context.Context, query dto.EventQuery, actor models.Actor) (*dto.EventPage, error)
	ListByEntity(ctx context.Context, entityType, entityID string, actor models.Actor) ([]models.LifecycleEvent, error)
	ExportCSV(ctx context.Context, query dto.EventQuery, w io.Writer, actor models.Actor) (int, error)
	ExportPDF(ctx context.Context, query dto.EventQuery, w io.Writer, actor models.Actor) (int, error)
}

// EventHandler exposes the lifecycle event feed.
type EventHandler struct {
	service eventFeedService
	now     func() time.Time
}

// NewEventHandler builds a new handler.
func NewEventHandler(service eventFeedService) *EventHandler {
	return &EventHandler{service: service, now: time.Now}
}

// List godoc
// @Summary Page through lifecycle events
// @Tags Events
// @Produce json
// @Param entity_type query string false "application or internship"
// @Param entity_id query string false "Entity ID"
// @Param cursor query string false "Cursor from the previous page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.EventQuery
	if !bindQuery(c, &query) {
		return
	}
	page, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := countMeta(len(page.Events))
	if page.NextCursor != "" {
		meta["next_cursor"] = page.NextCursor
	}
	response.JSON(c, http.StatusOK, page.Events, nil, meta)
}

// History godoc
// @Summary Full event history of one entity
// @Tags Events
// @Produce json
// @Param entity_type path string true "application or internship"
// @Param entity_id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /events/{entity_type}/{entity_id} [get]
func (h *EventHandler) History(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	events, err := h.service.ListByEntity(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil, countMeta(len(events)))
}

// Export godoc
// @Summary Export lifecycle events as CSV or PDF
// @Tags Events
// @Produce text/csv
// @Produce application/pdf
// @Param entity_type query string false "application or internship"
// @Param entity_id query string false "Entity ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /events/export [get]
func (h *EventHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.EventQuery
	if !bindQuery(c, &query) {
		return
	}

	export, ext, contentType := h.service.ExportCSV, "csv", "text/csv; charset=utf-8"
	switch strings.ToLower(strings.TrimSpace(query.Format)) {
	case "", "csv":
	case "pdf":
		export, ext, contentType = h.service.ExportPDF, "pdf", "application/pdf"
	default:
		response.Error(c, appErrors.Clonef(appErrors.ErrValidation, "unsupported export format %q", query.Format))
		return
	}

	var buf bytes.Buffer
	rows, err := export(c.Request.Context(), query, &buf, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	name := fmt.Sprintf("lifecycle-events-%s.%s", h.now().UTC().Format("20060102T150405Z"), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Header("X-Row-Count", strconv.Itoa(rows))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
