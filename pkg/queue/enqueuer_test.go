package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/queue"
)

type MockEnqueuerRepository struct {
	mock.Mock
}

func (m *MockEnqueuerRepository) CreateTask(ctx context.Context, task *queue.Task) error {
	return m.Called(ctx, task).Error(0)
}

func TestEnqueuer_Defaults(t *testing.T) {
	t.Parallel()

	repo := new(MockEnqueuerRepository)
	var stored *queue.Task
	repo.On("CreateTask", mock.Anything, mock.AnythingOfType("*queue.Task")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*queue.Task) }).
		Return(nil).Once()

	enq, err := queue.NewEnqueuer(repo)
	require.NoError(t, err)
	require.NoError(t, enq.Enqueue(context.Background(), &testPayload{Message: "hello"}))

	require.NotNil(t, stored)
	assert.Equal(t, queue.DefaultQueueName, stored.Queue)
	assert.Equal(t, "queue_test.testPayload", stored.TaskName)
	assert.Equal(t, queue.DefaultMaxAttempts, stored.MaxAttempts)
	assert.Equal(t, 0, stored.Attempts)
	assert.Equal(t, queue.TaskStatusPending, stored.Status)
	assert.Equal(t, queue.TaskTypeOneTime, stored.TaskType)
	assert.JSONEq(t, `{"message":"hello"}`, string(stored.Payload))
	assert.WithinDuration(t, time.Now(), stored.ScheduledAt, time.Second)
	repo.AssertExpectations(t)
}

func TestEnqueuer_Options(t *testing.T) {
	t.Parallel()

	at := time.Now().Add(time.Hour).Truncate(time.Second)
	tests := []struct {
		name   string
		eopts  []queue.EnqueuerOption
		opts   []queue.EnqueueOption
		assert func(t *testing.T, task *queue.Task)
	}{
		{
			name:  "enqueuer defaults",
			eopts: []queue.EnqueuerOption{queue.WithDefaultQueue("email"), queue.WithDefaultMaxAttempts(5)},
			assert: func(t *testing.T, task *queue.Task) {
				assert.Equal(t, "email", task.Queue)
				assert.Equal(t, 5, task.MaxAttempts)
			},
		},
		{
			name: "per call overrides",
			opts: []queue.EnqueueOption{
				queue.WithQueue("analytics"),
				queue.WithMaxAttempts(7),
				queue.WithPriority(queue.PriorityHigh),
				queue.WithTaskName("analytics.track"),
			},
			assert: func(t *testing.T, task *queue.Task) {
				assert.Equal(t, "analytics", task.Queue)
				assert.Equal(t, 7, task.MaxAttempts)
				assert.Equal(t, queue.PriorityHigh, task.Priority)
				assert.Equal(t, "analytics.track", task.TaskName)
			},
		},
		{
			name: "scheduled at wins over delay",
			opts: []queue.EnqueueOption{queue.WithDelay(time.Minute), queue.WithScheduledAt(at)},
			assert: func(t *testing.T, task *queue.Task) {
				assert.True(t, task.ScheduledAt.Equal(at))
			},
		},
		{
			name: "delay",
			opts: []queue.EnqueueOption{queue.WithDelay(10 * time.Minute)},
			assert: func(t *testing.T, task *queue.Task) {
				assert.WithinDuration(t, time.Now().Add(10*time.Minute), task.ScheduledAt, time.Second)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := new(MockEnqueuerRepository)
			var stored *queue.Task
			repo.On("CreateTask", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { stored = args.Get(1).(*queue.Task) }).
				Return(nil)

			enq, err := queue.NewEnqueuer(repo, tt.eopts...)
			require.NoError(t, err)
			require.NoError(t, enq.Enqueue(context.Background(), testPayload{}, tt.opts...))
			tt.assert(t, stored)
		})
	}
}

func TestEnqueuer_Errors(t *testing.T) {
	t.Parallel()

	_, err := queue.NewEnqueuer(nil)
	require.ErrorIs(t, err, queue.ErrRepositoryNil)

	repo := new(MockEnqueuerRepository)
	enq, err := queue.NewEnqueuer(repo)
	require.NoError(t, err)
	ctx := context.Background()

	require.ErrorIs(t, enq.Enqueue(ctx, nil), queue.ErrPayloadNil)
	require.ErrorIs(t, enq.Enqueue(ctx, testPayload{}, queue.WithPriority(101)), queue.ErrInvalidPriority)
	require.ErrorIs(t, enq.Enqueue(ctx, testPayload{}, queue.WithMaxAttempts(0)), queue.ErrInvalidMaxAttempts)
	require.ErrorIs(t, enq.Enqueue(ctx, testPayload{}, queue.WithMaxAttempts(26)), queue.ErrInvalidMaxAttempts)
	require.Error(t, enq.Enqueue(ctx, make(chan int)))

	storeErr := errors.New("disk full")
	repo.On("CreateTask", mock.Anything, mock.Anything).Return(storeErr).Once()
	require.ErrorIs(t, enq.Enqueue(ctx, testPayload{}), storeErr)
	repo.AssertExpectations(t)
}
