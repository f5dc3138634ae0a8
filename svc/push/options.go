package push

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/analytics"
	"github.com/dmitrymomot/pushkit/pkg/ratelimiter"
)

type options struct {
	logger        *slog.Logger
	now           func() time.Time
	limits        ratelimiter.Store
	tracker       Tracker
	scheduleBatch int
	attempts      int
}

// Option configures the services of this package. Options that do not apply
// to a service are ignored by it.
type Option func(*options)

// Tracker records analytics events without failing the caller.
type Tracker interface {
	TrackAsync(ctx context.Context, e analytics.Event)
}

func newOptions(opts []Option) options {
	o := options{
		logger:        slog.Default(),
		now:           time.Now,
		scheduleBatch: 100,
		attempts:      3,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRateLimitStore enables the per-tenant send ceiling of
// TenantPushConfig.RateLimitPerMinute. Without a store the ceiling is not
// enforced.
func WithRateLimitStore(s ratelimiter.Store) Option {
	return func(o *options) {
		o.limits = s
	}
}

// WithTracker emits a push.dispatched analytics event per completed dispatch.
func WithTracker(t Tracker) Option {
	return func(o *options) {
		o.tracker = t
	}
}

// WithScheduleBatch sets how many due logs one DispatchDue call claims.
func WithScheduleBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.scheduleBatch = n
		}
	}
}

// WithAttempts sets the max attempts of the jobs Triggers enqueue.
func WithAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// FromConfig applies cfg's tunables.
func FromConfig(cfg Config) Option {
	return func(o *options) {
		WithScheduleBatch(cfg.ScheduleBatch)(o)
		WithAttempts(cfg.DefaultAttempts)(o)
	}
}
