package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/pushkit/pkg/queue"
)

// QueueName is the queue transactional email jobs are enqueued on.
const QueueName = "email"

// NewSendHandler returns a queue handler that sends SendEmailParams jobs.
// Jobs with invalid params go straight to the dead-letter set.
func NewSendHandler(sender EmailSender) queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, p SendEmailParams) error {
		err := sender.SendEmail(ctx, p)
		if errors.Is(err, ErrInvalidParams) {
			return fmt.Errorf("%w: %w", queue.ErrSkipRetry, err)
		}
		return err
	})
}
