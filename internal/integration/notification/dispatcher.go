// Package notification hands lifecycle notifications to the delivery service.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

// Dispatcher delivers notifications. Delivery is at-least-once; consumers
// deduplicate on Notification.ID.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisDispatcher appends notifications to a Redis stream read by the
// notification service.
type RedisDispatcher struct {
	client  streamAdder
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisDispatcher builds a dispatcher writing to stream.
func NewRedisDispatcher(client streamAdder, stream string, maxLen int64, timeout time.Duration, logger *zap.Logger) *RedisDispatcher {
	if stream == "" {
		stream = "internship:notifications"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDispatcher{client: client, stream: stream, maxLen: maxLen, timeout: timeout, logger: logger}
}

// Dispatch XADDs the notification. Failures are DependencyUnavailable so the
// caller's retry policy treats them as transient.
func (d *RedisDispatcher) Dispatch(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			"id":          n.ID,
			"type":        string(n.Type),
			"entity_type": string(n.EntityType),
			"entity_id":   n.EntityID,
			"payload":     payload,
		},
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}
	entryID, err := d.client.XAdd(ctx, args).Result()
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrDependencyUnavailable, "notification stream unavailable")
	}
	d.logger.Debug("notification dispatched",
		zap.String("notification_id", n.ID), zap.String("type", string(n.Type)), zap.String("stream_entry", entryID))
	return nil
}

// LogDispatcher only logs. Used when notifications are disabled.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher builds a dispatcher that writes notifications to the log.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the notification and never fails.
func (d *LogDispatcher) Dispatch(_ context.Context, n models.Notification) error {
	d.logger.Info("notification",
		zap.String("notification_id", n.ID), zap.String("type", string(n.Type)),
		zap.String("entity_type", string(n.EntityType)), zap.String("entity_id", n.EntityID))
	return nil
}
