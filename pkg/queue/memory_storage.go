package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDLQLimit bounds each queue's dead-letter set.
const DefaultDLQLimit = 1000

// MemoryStorage implements every repository interface in process memory. It
// suits tests and single-process deployments.
type MemoryStorage struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]*Task
	dead     map[string][]*DeadTask
	dlqLimit int

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// StorageOption configures a storage implementation.
type StorageOption func(*storageOptions)

type storageOptions struct {
	dlqLimit int
	prefix   string
}

// WithDLQLimit caps each queue's dead-letter set; the oldest entries are
// dropped first.
func WithDLQLimit(n int) StorageOption {
	return func(o *storageOptions) {
		if n > 0 {
			o.dlqLimit = n
		}
	}
}

// WithKeyPrefix sets the Redis key prefix. MemoryStorage ignores it.
func WithKeyPrefix(prefix string) StorageOption {
	return func(o *storageOptions) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

func defaultStorageOptions(opts []StorageOption) *storageOptions {
	o := &storageOptions{dlqLimit: DefaultDLQLimit, prefix: "queue"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewMemoryStorage creates an empty storage and starts its lock reaper.
// Call Close to stop it.
func NewMemoryStorage(opts ...StorageOption) *MemoryStorage {
	o := defaultStorageOptions(opts)
	ms := &MemoryStorage{
		tasks:      make(map[uuid.UUID]*Task),
		dead:       make(map[string][]*DeadTask),
		dlqLimit:   o.dlqLimit,
		lockTicker: time.NewTicker(time.Second),
		done:       make(chan struct{}),
	}
	go ms.reapLocks()
	return ms
}

// Close stops the lock reaper.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("queue: task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return ErrTaskExists
	}
	cp := *task
	ms.tasks[task.ID] = &cp
	return nil
}

// ClaimTask picks the highest priority due task; ties go to the earliest
// scheduled, then the earliest created.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	ms.releaseExpired(now)

	var best *Task
	for _, task := range ms.tasks {
		if task.Status != TaskStatusPending || !slices.Contains(queues, task.Queue) {
			continue
		}
		if task.ScheduledAt.After(now) {
			continue
		}
		if best == nil || before(task, best) {
			best = task
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.Attempts++
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	cp := *best
	return &cp, nil
}

func before(a, b *Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, err := ms.processing(taskID); err != nil {
		return err
	}
	delete(ms.tasks, taskID)
	return nil
}

func (ms *MemoryStorage) RetryTask(_ context.Context, taskID uuid.UUID, errMsg string, retryAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	task.Status = TaskStatusPending
	task.Error = errMsg
	task.ScheduledAt = retryAt
	task.LockedUntil = nil
	task.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	ms.deadLetter(task, errMsg, time.Now())
	return nil
}

func (ms *MemoryStorage) deadLetter(task *Task, errMsg string, now time.Time) {
	set := append(ms.dead[task.Queue], newDeadTask(task, errMsg, now))
	if over := len(set) - ms.dlqLimit; over > 0 {
		set = slices.Delete(set, 0, over)
	}
	ms.dead[task.Queue] = set
	delete(ms.tasks, task.ID)
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	lockUntil := time.Now().Add(duration)
	task.LockedUntil = &lockUntil
	return nil
}

// GetPendingTaskByName returns a pending or running task with the given name.
func (ms *MemoryStorage) GetPendingTaskByName(_ context.Context, taskName string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, task := range ms.tasks {
		if task.TaskName == taskName {
			cp := *task
			return &cp, nil
		}
	}
	return nil, ErrTaskNotFound
}

// DeadTasks returns the dead-letter set of queue, newest first.
func (ms *MemoryStorage) DeadTasks(_ context.Context, queue string) ([]*DeadTask, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	set := ms.dead[queue]
	out := make([]*DeadTask, 0, len(set))
	for i := len(set) - 1; i >= 0; i-- {
		cp := *set[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Pending returns a snapshot of the queued tasks of queue, in claim order.
func (ms *MemoryStorage) Pending(_ context.Context, queue string) ([]*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []*Task
	for _, task := range ms.tasks {
		if task.Queue == queue && task.Status == TaskStatusPending {
			cp := *task
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Task) int {
		if before(a, b) {
			return -1
		}
		if before(b, a) {
			return 1
		}
		return 0
	})
	return out, nil
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if task.Status != TaskStatusProcessing {
		return nil, ErrTaskNotProcessing
	}
	return task, nil
}

// reapLocks returns tasks held by dead workers to the pending state. The
// claim already counted, so a crash consumes one attempt; a task with no
// attempts left is dead-lettered instead.
func (ms *MemoryStorage) reapLocks() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks(time.Now())
		case <-ms.done:
			return
		}
	}
}

func (ms *MemoryStorage) expireLocks(now time.Time) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.releaseExpired(now)
}

func (ms *MemoryStorage) releaseExpired(now time.Time) {
	for _, task := range ms.tasks {
		if task.Status != TaskStatusProcessing || task.LockedUntil == nil || !task.LockedUntil.Before(now) {
			continue
		}
		if task.AttemptsLeft() == 0 {
			ms.deadLetter(task, ErrLockExpired.Error(), now)
			continue
		}
		task.Status = TaskStatusPending
		task.LockedUntil = nil
		task.LockedBy = nil
	}
}
