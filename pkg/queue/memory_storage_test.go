package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/queue"
)

func newTask(q string, priority queue.Priority, scheduledAt time.Time) *queue.Task {
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       q,
		TaskType:    queue.TaskTypeOneTime,
		TaskName:    "task",
		Status:      queue.TaskStatusPending,
		Priority:    priority,
		MaxAttempts: 3,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
}

func TestMemoryStorage_ClaimOrder(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = ms.Close() })
	ctx := context.Background()
	now := time.Now()

	low := newTask("q", queue.PriorityLow, now.Add(-3*time.Second))
	highLate := newTask("q", queue.PriorityHigh, now.Add(-time.Second))
	highEarly := newTask("q", queue.PriorityHigh, now.Add(-2*time.Second))
	future := newTask("q", queue.PriorityMax, now.Add(time.Hour))
	other := newTask("other", queue.PriorityMax, now.Add(-time.Hour))

	for _, task := range []*queue.Task{low, highLate, highEarly, future, other} {
		require.NoError(t, ms.CreateTask(ctx, task))
	}

	worker := uuid.New()
	var order []uuid.UUID
	for {
		task, err := ms.ClaimTask(ctx, worker, []string{"q"}, time.Minute)
		if err != nil {
			require.ErrorIs(t, err, queue.ErrNoTaskToClaim)
			break
		}
		assert.Equal(t, 1, task.Attempts)
		assert.Equal(t, queue.TaskStatusProcessing, task.Status)
		order = append(order, task.ID)
	}

	assert.Equal(t, []uuid.UUID{highEarly.ID, highLate.ID, low.ID}, order)
}

func TestMemoryStorage_DuplicateCreate(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = ms.Close() })
	task := newTask("q", queue.PriorityDefault, time.Now())

	require.NoError(t, ms.CreateTask(context.Background(), task))
	require.ErrorIs(t, ms.CreateTask(context.Background(), task), queue.ErrTaskExists)
}

func TestMemoryStorage_RetryAndComplete(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = ms.Close() })
	ctx := context.Background()

	task := newTask("q", queue.PriorityDefault, time.Now())
	require.NoError(t, ms.CreateTask(ctx, task))

	claimed, err := ms.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, ms.RetryTask(ctx, claimed.ID, "timeout", time.Now().Add(time.Hour)))
	_, err = ms.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.ErrorIs(t, err, queue.ErrNoTaskToClaim, "retry delay must be honoured")

	require.ErrorIs(t, ms.CompleteTask(ctx, claimed.ID), queue.ErrTaskNotProcessing)

	pending, err := ms.Pending(ctx, "q")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "timeout", pending[0].Error)
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestMemoryStorage_DLQLimit(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage(queue.WithDLQLimit(2))
	t.Cleanup(func() { _ = ms.Close() })
	ctx := context.Background()

	var ids []uuid.UUID
	for i := range 3 {
		task := newTask("q", queue.PriorityDefault, time.Now())
		require.NoError(t, ms.CreateTask(ctx, task))
		require.NoError(t, ms.MoveToDLQ(ctx, task.ID, fmt.Sprintf("err %d", i)))
		ids = append(ids, task.ID)
	}

	dead, err := ms.DeadTasks(ctx, "q")
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, ids[2], dead[0].TaskID)
	assert.Equal(t, ids[1], dead[1].TaskID)
	assert.Equal(t, "err 2", dead[0].Error)
}

func TestMemoryStorage_ExpiredLock(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = ms.Close() })
	ctx := context.Background()

	t.Run("requeued while attempts remain", func(t *testing.T) {
		t.Parallel()
		task := newTask("crash", queue.PriorityDefault, time.Now())
		require.NoError(t, ms.CreateTask(ctx, task))

		_, err := ms.ClaimTask(ctx, uuid.New(), []string{"crash"}, time.Millisecond)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		again, err := ms.ClaimTask(ctx, uuid.New(), []string{"crash"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, task.ID, again.ID)
		assert.Equal(t, 2, again.Attempts)
	})

	t.Run("dead-lettered when attempts are spent", func(t *testing.T) {
		t.Parallel()
		task := newTask("crash-last", queue.PriorityDefault, time.Now())
		task.MaxAttempts = 1
		require.NoError(t, ms.CreateTask(ctx, task))

		_, err := ms.ClaimTask(ctx, uuid.New(), []string{"crash-last"}, time.Millisecond)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		_, err = ms.ClaimTask(ctx, uuid.New(), []string{"crash-last"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim)

		dead, err := ms.DeadTasks(ctx, "crash-last")
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, queue.ErrLockExpired.Error(), dead[0].Error)
	})
}

func TestMemoryStorage_GetPendingTaskByName(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = ms.Close() })
	ctx := context.Background()

	_, err := ms.GetPendingTaskByName(ctx, "sweep")
	require.ErrorIs(t, err, queue.ErrTaskNotFound)

	task := newTask("q", queue.PriorityDefault, time.Now())
	task.TaskName = "sweep"
	require.NoError(t, ms.CreateTask(ctx, task))

	got, err := ms.GetPendingTaskByName(ctx, "sweep")
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}
