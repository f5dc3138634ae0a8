package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

type MockWorkerRepository struct {
	mock.Mock
}

func (m *MockWorkerRepository) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	args := m.Called(ctx, workerID, queues, lockDuration)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Task), args.Error(1)
}

func (m *MockWorkerRepository) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *MockWorkerRepository) RetryTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryAt time.Time) error {
	return m.Called(ctx, taskID, errMsg, retryAt).Error(0)
}

func (m *MockWorkerRepository) MoveToDLQ(ctx context.Context, taskID uuid.UUID, errMsg string) error {
	return m.Called(ctx, taskID, errMsg).Error(0)
}

func (m *MockWorkerRepository) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	return m.Called(ctx, taskID, duration).Error(0)
}

type testPayload struct {
	Message string `json:"message"`
}

func newTestWorker(t *testing.T, repo queue.WorkerRepository, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()
	opts = append([]queue.WorkerOption{
		queue.WithPullInterval(5 * time.Millisecond),
		queue.WithBackoff(queue.FixedBackoff{}),
		queue.WithWorkerLogger(logger.Discard()),
	}, opts...)
	w, err := queue.NewWorker(repo, opts...)
	require.NoError(t, err)
	return w
}

func claimedTask(t *testing.T, attempts, maxAttempts int) *queue.Task {
	t.Helper()
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       queue.DefaultQueueName,
		TaskType:    queue.TaskTypeOneTime,
		TaskName:    "queue_test.testPayload",
		Payload:     []byte(`{"message":"hi"}`),
		Status:      queue.TaskStatusProcessing,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
	}
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	_, err := queue.NewWorker(nil)
	require.ErrorIs(t, err, queue.ErrRepositoryNil)

	w, err := queue.NewWorker(new(MockWorkerRepository))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, w.ID())
}

func TestWorker_StartWithoutHandlers(t *testing.T) {
	t.Parallel()

	w := newTestWorker(t, new(MockWorkerRepository))
	require.ErrorIs(t, w.Start(context.Background()), queue.ErrNoHandlers)
	require.ErrorIs(t, w.Stop(), queue.ErrWorkerNotStarted)
}

func TestWorker_FailureSettlement(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name        string
		attempts    int
		maxAttempts int
		handlerErr  error
		expectDLQ   bool
	}{
		{"first failure is retried", 1, 3, boom, false},
		{"second failure is retried", 2, 3, boom, false},
		{"last attempt is dead-lettered", 3, 3, boom, true},
		{"permanent error skips retries", 1, 3, errors.Join(queue.ErrSkipRetry, boom), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := new(MockWorkerRepository)
			task := claimedTask(t, tt.attempts, tt.maxAttempts)
			settled := make(chan struct{})

			repo.On("ClaimTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(task, nil).Once()
			repo.On("ClaimTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, queue.ErrNoTaskToClaim)
			if tt.expectDLQ {
				repo.On("MoveToDLQ", mock.Anything, task.ID, tt.handlerErr.Error()).
					Run(func(mock.Arguments) { close(settled) }).Return(nil).Once()
			} else {
				repo.On("RetryTask", mock.Anything, task.ID, "boom", mock.AnythingOfType("time.Time")).
					Run(func(mock.Arguments) { close(settled) }).Return(nil).Once()
			}

			w := newTestWorker(t, repo)
			require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, testPayload) error {
				return tt.handlerErr
			})))
			require.NoError(t, w.Start(context.Background()))

			select {
			case <-settled:
			case <-time.After(2 * time.Second):
				t.Fatal("task was not settled")
			}
			require.NoError(t, w.Stop())
			repo.AssertExpectations(t)
		})
	}
}

func TestWorker_CompletesTask(t *testing.T) {
	t.Parallel()

	repo := new(MockWorkerRepository)
	task := claimedTask(t, 1, 3)
	done := make(chan struct{})

	repo.On("ClaimTask", mock.Anything, mock.Anything, []string{queue.DefaultQueueName}, 5*time.Minute).Return(task, nil).Once()
	repo.On("ClaimTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, queue.ErrNoTaskToClaim)
	repo.On("CompleteTask", mock.Anything, task.ID).Run(func(mock.Arguments) { close(done) }).Return(nil).Once()

	var got testPayload
	w := newTestWorker(t, repo)
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(_ context.Context, p testPayload) error {
		got = p
		return nil
	})))
	require.NoError(t, w.Start(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not completed")
	}
	require.NoError(t, w.Stop())
	assert.Equal(t, "hi", got.Message)
	repo.AssertExpectations(t)
}

func TestWorker_RetryBound(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	enq, err := queue.NewEnqueuer(storage, queue.WithDefaultQueue("email"))
	require.NoError(t, err)

	var calls atomic.Int32
	w := newTestWorker(t, storage, queue.WithQueues("email"), queue.WithMaxConcurrentTasks(3))
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, testPayload) error {
		calls.Add(1)
		return errors.New("smtp unavailable")
	})))

	ctx := context.Background()
	require.NoError(t, enq.Enqueue(ctx, testPayload{Message: "welcome"}, queue.WithMaxAttempts(4)))
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool {
		dead, _ := storage.DeadTasks(ctx, "email")
		return len(dead) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Give a misbehaving worker the chance to claim again.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())

	assert.EqualValues(t, 4, calls.Load())

	dead, err := storage.DeadTasks(ctx, "email")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 4, dead[0].Attempts)
	assert.Equal(t, "smtp unavailable", dead[0].Error)
	assert.JSONEq(t, `{"message":"welcome"}`, string(dead[0].Payload))

	pending, err := storage.Pending(ctx, "email")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorker_PanicCountsAsFailure(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	w := newTestWorker(t, storage)
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, testPayload) error {
		panic("nil map")
	})))

	ctx := context.Background()
	require.NoError(t, enq.Enqueue(ctx, testPayload{}, queue.WithMaxAttempts(1)))
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool {
		dead, _ := storage.DeadTasks(ctx, queue.DefaultQueueName)
		return len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	dead, _ := storage.DeadTasks(ctx, queue.DefaultQueueName)
	assert.Contains(t, dead[0].Error, "panic in handler")
}

func TestWorker_MissingHandlerGoesToDLQ(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	w := newTestWorker(t, storage)
	require.NoError(t, w.RegisterHandler(queue.NewPeriodicTaskHandler("other", func(context.Context) error { return nil })))

	ctx := context.Background()
	require.NoError(t, enq.Enqueue(ctx, testPayload{}, queue.WithTaskName("unknown")))
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool {
		dead, _ := storage.DeadTasks(ctx, queue.DefaultQueueName)
		return len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	dead, _ := storage.DeadTasks(ctx, queue.DefaultQueueName)
	assert.Equal(t, 1, dead[0].Attempts)
	assert.Contains(t, dead[0].Error, "unknown")
}

func TestWorker_IndependentQueues(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	ctx := context.Background()

	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	emailWorker := newTestWorker(t, storage, queue.WithQueues("email"))
	require.NoError(t, emailWorker.RegisterHandler(queue.NewNamedTaskHandler("send_email", func(context.Context, testPayload) error {
		<-block
		return nil
	})))

	var analytics atomic.Int32
	analyticsWorker := newTestWorker(t, storage, queue.WithQueues("analytics"))
	require.NoError(t, analyticsWorker.RegisterHandler(queue.NewNamedTaskHandler("track", func(context.Context, testPayload) error {
		analytics.Add(1)
		return nil
	})))

	require.NoError(t, enq.Enqueue(ctx, testPayload{}, queue.WithQueue("email"), queue.WithTaskName("send_email")))
	for range 3 {
		require.NoError(t, enq.Enqueue(ctx, testPayload{}, queue.WithQueue("analytics"), queue.WithTaskName("track")))
	}

	require.NoError(t, emailWorker.Start(ctx))
	require.NoError(t, analyticsWorker.Start(ctx))

	require.Eventually(t, func() bool { return analytics.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, analyticsWorker.Stop())
}
