package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

type enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

// Tracker hands events to the analytics queue.
type Tracker struct {
	queue  enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker creates a tracker that enqueues through q.
func NewTracker(q enqueuer, opts ...TrackerOption) *Tracker {
	t := &Tracker{queue: q, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track enqueues e, assigning ID and OccurredAt when empty.
func (t *Tracker) Track(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = t.now().UTC()
	}
	if err := e.validate(); err != nil {
		return err
	}
	if err := t.queue.Enqueue(ctx, e, queue.WithQueue(QueueName)); err != nil {
		return fmt.Errorf("enqueue analytics event %s: %w", e.Name, err)
	}
	return nil
}

// TrackAsync is Track for callers that must not fail on analytics: errors are
// logged at warn level.
func (t *Tracker) TrackAsync(ctx context.Context, e Event) {
	if err := t.Track(ctx, e); err != nil {
		t.logger.LogAttrs(ctx, slog.LevelWarn, "analytics event dropped",
			slog.String("event", e.Name),
			logger.TenantID(e.TenantID),
			logger.Error(err),
		)
	}
}

// NewInsertHandler returns a queue handler that writes events to store.
func NewInsertHandler(store Store) queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, e Event) error {
		err := store.Insert(ctx, e)
		if errors.Is(err, ErrMissingID) || errors.Is(err, ErrMissingTenantID) || errors.Is(err, ErrMissingName) {
			return fmt.Errorf("%w: %w", queue.ErrSkipRetry, err)
		}
		return err
	})
}
