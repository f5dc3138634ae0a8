package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/pushkit/pkg/queue"
	"github.com/dmitrymomot/pushkit/pkg/vault"
)

// SweepTaskName is the periodic task that delivers due scheduled pushes.
const SweepTaskName = "push.dispatch_scheduled"

// DispatchPayload is the queue job for one SendPush call.
type DispatchPayload struct {
	TenantID string      `json:"tenant_id"`
	Request  SendRequest `json:"request"`
}

// NewDispatchHandler returns a queue handler running DispatchPayload jobs.
// Provider and rate limit failures are retried; failures a retry cannot fix
// are not.
func NewDispatchHandler(d *Dispatcher) queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, p DispatchPayload) error {
		_, err := d.SendPush(ctx, p.TenantID, p.Request)
		if err != nil && permanent(err) {
			return fmt.Errorf("%w: %w", queue.ErrSkipRetry, err)
		}
		return err
	})
}

// NewSweepHandler returns the periodic handler for SweepTaskName.
func NewSweepHandler(d *Dispatcher) queue.Handler {
	return queue.NewPeriodicTaskHandler(SweepTaskName, func(ctx context.Context) error {
		n, err := d.DispatchDue(ctx)
		if n > 0 {
			d.logger.InfoContext(ctx, "scheduled pushes dispatched", slog.Int("count", n))
		}
		return err
	})
}

func permanent(err error) bool {
	return errors.Is(err, ErrConfigDisabled) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrProviderNotReady) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, vault.ErrDecryption)
}
