package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/pkg/jobs"
)

type outboxReader interface {
	GetByID(ctx context.Context, id string) (*models.LifecycleEvent, error)
	ListUndispatched(ctx context.Context, olderThan time.Time, limit int) ([]models.LifecycleEvent, error)
}

type staleSagaLister interface {
	ListStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]models.SagaRun, error)
}

// SagaSweeperConfig tunes redelivery.
type SagaSweeperConfig struct {
	// Schedule is a cron spec; "@every 1m" when empty.
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

// SagaSweeper redelivers committed events the coordinator never acknowledged and
// the triggers of sequences that stopped making progress.
type SagaSweeper struct {
	events    outboxReader
	sagas     staleSagaLister
	publisher EventPublisher
	logger    *zap.Logger
	config    SagaSweeperConfig
	now       Clock

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSagaSweeper constructs the sweeper.
func NewSagaSweeper(events outboxReader, sagas staleSagaLister, publisher EventPublisher, logger *zap.Logger, cfg SagaSweeperConfig) *SagaSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &SagaSweeper{
		events:    events,
		sagas:     sagas,
		publisher: publisher,
		logger:    logger,
		config:    cfg,
		now:       systemClock,
	}
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *SagaSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.config.Schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("outbox sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule outbox sweep %q: %w", s.config.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("outbox sweeper started", zap.String("schedule", s.config.Schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *SagaSweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("outbox sweeper stopped")
}

// Sweep republishes one batch and returns how many events were handed over.
func (s *SagaSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.StaleAfter)
	seen := make(map[string]struct{})
	republished := 0

	pending, err := s.events.ListUndispatched(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list undispatched events: %w", err)
	}
	for _, event := range pending {
		seen[event.ID] = struct{}{}
		ok, full := s.republish(ctx, event)
		if full {
			s.logSweep(republished)
			return republished, nil
		}
		if ok {
			republished++
		}
	}

	stale, err := s.sagas.ListStaleRunning(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return republished, fmt.Errorf("list stale sagas: %w", err)
	}
	for _, run := range stale {
		if _, ok := seen[run.TriggerEventID]; ok {
			continue
		}
		seen[run.TriggerEventID] = struct{}{}
		event, err := s.events.GetByID(ctx, run.TriggerEventID)
		if err != nil {
			s.logger.Error("stale saga trigger event unavailable",
				zap.String("saga_id", run.ID), zap.String("event_id", run.TriggerEventID), zap.Error(err))
			continue
		}
		ok, full := s.republish(ctx, *event)
		if full {
			break
		}
		if ok {
			republished++
		}
	}

	s.logSweep(republished)
	return republished, nil
}

func (s *SagaSweeper) logSweep(republished int) {
	if republished > 0 {
		s.logger.Info("outbox sweep republished events", zap.Int("count", republished))
	}
}

// republish reports whether the event was handed over and whether the worker
// queue is saturated, in which case the rest of the batch waits for the next tick.
func (s *SagaSweeper) republish(ctx context.Context, event models.LifecycleEvent) (ok, full bool) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			s.logger.Warn("worker queue full, sweep deferred", zap.String("event_id", event.ID))
			return false, true
		}
		s.logger.Warn("republish lifecycle event failed", zap.String("event_id", event.ID), zap.Error(err))
		return false, false
	}
	return true, false
}
