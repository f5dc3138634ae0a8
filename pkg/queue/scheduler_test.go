package queue_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

func TestSchedules(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	tests := []struct {
		name     string
		schedule queue.Schedule
		want     time.Time
		str      string
	}{
		{"every", queue.Every(90 * time.Second), from.Add(90 * time.Second), "every 1m30s"},
		{"every minute", queue.EveryMinute(), from.Add(time.Minute), "every 1m0s"},
		{"hourly later this hour", queue.HourlyAt(45), time.Date(2025, 3, 10, 14, 45, 0, 0, time.UTC), "hourly at :45"},
		{"hourly next hour", queue.HourlyAt(30), time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC), "hourly at :30"},
		{"daily today", queue.DailyAt(18, 0), time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), "daily at 18:00"},
		{"daily tomorrow", queue.DailyAt(2, 5), time.Date(2025, 3, 11, 2, 5, 0, 0, time.UTC), "daily at 02:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.schedule.Next(from))
			assert.Equal(t, tt.str, tt.schedule.String())
		})
	}
}

func TestScheduler_AddTask(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = ms.Close() })

	_, err := queue.NewScheduler(nil)
	require.ErrorIs(t, err, queue.ErrRepositoryNil)

	s, err := queue.NewScheduler(ms, queue.WithSchedulerLogger(logger.Discard()))
	require.NoError(t, err)

	require.ErrorIs(t, s.Start(context.Background()), queue.ErrSchedulerNotConfigured)

	require.NoError(t, s.AddTask("sweep", queue.EveryMinute()))
	require.ErrorIs(t, s.AddTask("sweep", queue.EveryMinute()), queue.ErrTaskAlreadyRegistered)
	assert.Equal(t, []string{"sweep"}, s.ListTasks())

	s.RemoveTask("sweep")
	assert.Empty(t, s.ListTasks())
}

func TestScheduler_RunsPeriodicTask(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = ms.Close() })

	s, err := queue.NewScheduler(ms,
		queue.WithCheckInterval(10*time.Millisecond),
		queue.WithSchedulerLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, s.AddTask("push.sweep", queue.Every(20*time.Millisecond), queue.WithTaskQueue("notifications")))

	var runs atomic.Int32
	w := newTestWorker(t, ms, queue.WithQueues("notifications"))
	require.NoError(t, w.RegisterHandler(queue.NewPeriodicTaskHandler("push.sweep", func(context.Context) error {
		runs.Add(1)
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, w.Stop())
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := queue.ExponentialBackoff{InitialInterval: time.Second, MaxInterval: 10 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Duration(0), b.NextInterval(0))
	assert.Equal(t, time.Second, b.NextInterval(1))
	assert.Equal(t, 2*time.Second, b.NextInterval(2))
	assert.Equal(t, 8*time.Second, b.NextInterval(4))
	assert.Equal(t, 10*time.Second, b.NextInterval(10))

	jittered := queue.DefaultBackoff()
	for attempt := 1; attempt <= 5; attempt++ {
		d := jittered.NextInterval(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, 5*time.Minute)
	}

	assert.Equal(t, 3*time.Second, queue.FixedBackoff{Interval: 3 * time.Second}.NextInterval(7))
}
