package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/export"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

var eventExportHeaders = []string{
	"id", "entity_type", "entity_id", "sequence", "old_status", "new_status",
	"actor_id", "actor_role", "reason", "occurred_at",
}

type eventFeedStore interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.LifecycleEvent, error)
	ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.LifecycleEvent, error)
}

// eventPDFHeaders is the narrower column set that fits an A4 page.
var eventPDFHeaders = []string{
	"entity_type", "entity_id", "sequence", "old_status", "new_status", "actor_role", "occurred_at",
}

type csvWriter interface {
	Write(w io.Writer, data export.Dataset) error
}

type tableRenderer interface {
	RenderTable(data export.Dataset, title string) ([]byte, error)
}

// EventFeedService exposes the lifecycle event log to operators.
type EventFeedService struct {
	repo   eventFeedStore
	csv    csvWriter
	pdf    tableRenderer
	logger *zap.Logger
}

// NewEventFeedService constructs the service.
func NewEventFeedService(repo eventFeedStore, csv csvWriter, pdf tableRenderer, logger *zap.Logger) *EventFeedService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventFeedService{repo: repo, csv: csv, pdf: pdf, logger: logger}
}

// List returns one page ordered by (occurred_at, id). NextCursor is set when the
// page is full.
func (s *EventFeedService) List(ctx context.Context, query dto.EventQuery, actor models.Actor) (*dto.EventPage, error) {
	if !actor.Role.IsOperator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only operators may read the event feed")
	}
	filter, err := feedFilter(query)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internal(err, "failed to list lifecycle events")
	}
	page := &dto.EventPage{Events: events}
	if len(events) == filter.Limit {
		last := events[len(events)-1]
		page.NextCursor = EncodeEventCursor(last.OccurredAt, last.ID)
	}
	return page, nil
}

// ListByEntity returns the full history of one entity in sequence order.
func (s *EventFeedService) ListByEntity(ctx context.Context, entityType, entityID string, actor models.Actor) ([]models.LifecycleEvent, error) {
	if !actor.Role.IsOperator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only operators may read the event feed")
	}
	kind, err := parseEntityType(entityType)
	if err != nil {
		return nil, err
	}
	if kind == "" || strings.TrimSpace(entityID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entity type and id are required")
	}
	events, err := s.repo.ListByEntity(ctx, kind, strings.TrimSpace(entityID))
	if err != nil {
		return nil, internal(err, "failed to list entity events")
	}
	return events, nil
}

// ExportCSV writes every event matching the query, following cursors until
// the feed is exhausted.
func (s *EventFeedService) ExportCSV(ctx context.Context, query dto.EventQuery, w io.Writer, actor models.Actor) (int, error) {
	dataset, err := s.collect(ctx, query, eventExportHeaders, actor)
	if err != nil {
		return 0, err
	}
	if err := s.csv.Write(w, dataset); err != nil {
		return 0, internal(err, "failed to render event export")
	}
	s.logger.Info("lifecycle events exported", zap.String("format", "csv"),
		zap.Int("rows", len(dataset.Rows)), zap.String("actor_id", actor.ID))
	return len(dataset.Rows), nil
}

// ExportPDF renders the same selection as ExportCSV as a printable table.
func (s *EventFeedService) ExportPDF(ctx context.Context, query dto.EventQuery, w io.Writer, actor models.Actor) (int, error) {
	dataset, err := s.collect(ctx, query, eventPDFHeaders, actor)
	if err != nil {
		return 0, err
	}
	pdf, err := s.pdf.RenderTable(dataset, "Lifecycle events")
	if err != nil {
		return 0, internal(err, "failed to render event export")
	}
	if _, err := w.Write(pdf); err != nil {
		return 0, internal(err, "failed to write event export")
	}
	s.logger.Info("lifecycle events exported", zap.String("format", "pdf"),
		zap.Int("rows", len(dataset.Rows)), zap.String("actor_id", actor.ID))
	return len(dataset.Rows), nil
}

func (s *EventFeedService) collect(ctx context.Context, query dto.EventQuery, headers []string, actor models.Actor) (export.Dataset, error) {
	dataset := export.Dataset{Headers: headers}
	if !actor.Role.IsOperator() {
		return dataset, appErrors.Clone(appErrors.ErrForbidden, "only operators may export the event feed")
	}
	query.Limit = maxFeedLimit
	filter, err := feedFilter(query)
	if err != nil {
		return dataset, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return dataset, err
		}
		events, err := s.repo.List(ctx, filter)
		if err != nil {
			return dataset, internal(err, "failed to list lifecycle events")
		}
		for _, e := range events {
			dataset.Rows = append(dataset.Rows, eventRow(e))
		}
		if len(events) < filter.Limit {
			return dataset, nil
		}
		last := events[len(events)-1]
		filter.AfterCursor, filter.AfterID = last.OccurredAt, last.ID
	}
}

// EncodeEventCursor builds the opaque feed cursor.
func EncodeEventCursor(at time.Time, id string) string {
	raw := at.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeEventCursor parses a cursor produced by EncodeEventCursor.
func DecodeEventCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("cursor timestamp: %w", err)
	}
	return at, parts[1], nil
}

func feedFilter(query dto.EventQuery) (models.EventFilter, error) {
	kind, err := parseEntityType(query.EntityType)
	if err != nil {
		return models.EventFilter{}, err
	}
	filter := models.EventFilter{
		EntityType: kind,
		EntityID:   strings.TrimSpace(query.EntityID),
		Limit:      query.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultFeedLimit
	}
	if filter.Limit > maxFeedLimit {
		filter.Limit = maxFeedLimit
	}
	if cursor := strings.TrimSpace(query.Cursor); cursor != "" {
		at, id, err := DecodeEventCursor(cursor)
		if err != nil {
			return models.EventFilter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cursor")
		}
		filter.AfterCursor, filter.AfterID = at, id
	}
	return filter, nil
}

func parseEntityType(raw string) (models.EntityType, error) {
	kind := models.EntityType(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case "", models.EntityApplication, models.EntityInternship, models.EntityCertificate:
		return kind, nil
	}
	return "", appErrors.Clonef(appErrors.ErrValidation, "unknown entity type %q", raw)
}

func eventRow(e models.LifecycleEvent) map[string]string {
	return map[string]string{
		"id":          e.ID,
		"entity_type": string(e.EntityType),
		"entity_id":   e.EntityID,
		"sequence":    strconv.FormatInt(e.Sequence, 10),
		"old_status":  e.OldStatus,
		"new_status":  e.NewStatus,
		"actor_id":    e.ActorID,
		"actor_role":  e.ActorRole,
		"reason":      derefString(e.Reason),
		"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}
