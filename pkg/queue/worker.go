package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// WorkerRepository is the storage side of task processing.
type WorkerRepository interface {
	// ClaimTask atomically locks the next due task of the given queues and
	// counts the claim as one attempt. It returns ErrNoTaskToClaim when idle.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask removes a processed task.
	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// RetryTask releases the lock and makes the task due again at retryAt.
	RetryTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryAt time.Time) error

	// MoveToDLQ removes the task and records it in its queue's dead-letter set.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID, errMsg string) error

	// ExtendLock pushes the lock deadline of a long-running task.
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker claims tasks from its queues and runs them on a bounded number of
// concurrent slots.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	backoff      BackoffStrategy
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a worker. It pulls from DefaultQueueName unless
// WithQueues says otherwise.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		backoff:            DefaultBackoff(),
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	id := uuid.New()
	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     id,
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		backoff:      options.backoff,
		logger: options.logger.With(
			logger.Component("queue.worker"),
			slog.String("worker_id", id.String()),
		),
	}, nil
}

// RegisterHandler adds h; a later handler with the same name replaces it.
func (w *Worker) RegisterHandler(h Handler) error {
	if h == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[h.Name()] = h
	return nil
}

// RegisterHandlers registers every handler in hs.
func (w *Worker) RegisterHandlers(hs ...Handler) error {
	for _, h := range hs {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the processing loop in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels the loop and waits for in-flight tasks to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.logger.Info("worker stopping, waiting for active tasks")
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// Run returns a function for errgroup.Group.Go that runs the worker until ctx
// is done.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.fillSlots()
		}
	}
}

// fillSlots claims tasks until every slot is busy or the queues are empty.
func (w *Worker) fillSlots() {
	for {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}

		w.stopMu.Lock()
		if w.stopping.Load() {
			w.stopMu.Unlock()
			<-w.sem
			return
		}
		w.wg.Add(1)
		w.stopMu.Unlock()

		task, err := w.claim()
		if err != nil || task == nil {
			<-w.sem
			w.wg.Done()
			if err != nil {
				w.logger.Error("failed to claim task", logger.Error(err))
			}
			return
		}

		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()

			if err := w.processTask(task); err != nil && !errors.Is(err, ErrHandlerNotFound) {
				w.logger.Error("failed to settle task",
					logger.TaskID(task.ID),
					logger.TaskName(task.TaskName),
					logger.Error(err))
			}
		}()
	}
}

func (w *Worker) claim() (*Task, error) {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoTaskToClaim) || errors.Is(err, context.Canceled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// processTask runs the handler and settles the task. Settlement uses a
// context detached from the worker so that a shutdown does not strand a
// finished task in the processing state.
func (w *Worker) processTask(task *Task) (retErr error) {
	start := time.Now()
	settleCtx := context.WithoutCancel(w.ctx)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked",
				logger.TaskID(task.ID),
				logger.TaskName(task.TaskName),
				slog.Any("panic", r))
			retErr = w.handleFailure(settleCtx, task, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		return w.handleMissingHandler(settleCtx, task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	if err := handler.Handle(ctx, task.Payload); err != nil {
		return w.handleFailure(settleCtx, task, err, time.Since(start))
	}

	if err := w.repo.CompleteTask(settleCtx, task.ID); err != nil {
		return fmt.Errorf("failed to complete task %s: %w", task.ID, err)
	}

	w.logger.Debug("task completed",
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName),
		logger.Queue(task.Queue),
		slog.Int("attempt", task.Attempts),
		logger.Duration(time.Since(start)))
	return nil
}

// handleMissingHandler dead-letters the task at once: retries cannot succeed
// until a handler is deployed.
func (w *Worker) handleMissingHandler(ctx context.Context, task *Task) error {
	w.logger.Error("no handler registered for task",
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName))

	if err := w.repo.MoveToDLQ(ctx, task.ID, ErrHandlerNotFound.Error()+": "+task.TaskName); err != nil {
		return fmt.Errorf("failed to dead-letter task %s: %w", task.ID, err)
	}
	return ErrHandlerNotFound
}

// handleFailure re-queues the task with backoff, or dead-letters it once its
// attempts are spent or the error is permanent.
func (w *Worker) handleFailure(ctx context.Context, task *Task, execErr error, took time.Duration) error {
	exhausted := task.Attempts >= task.MaxAttempts
	permanent := errors.Is(execErr, ErrSkipRetry)

	w.logger.Warn("task failed",
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName),
		logger.Queue(task.Queue),
		slog.Int("attempt", task.Attempts),
		slog.Int("max_attempts", task.MaxAttempts),
		logger.Duration(took),
		logger.Error(execErr))

	if exhausted || permanent {
		if err := w.repo.MoveToDLQ(ctx, task.ID, execErr.Error()); err != nil {
			return fmt.Errorf("failed to dead-letter task %s: %w", task.ID, err)
		}
		w.logger.Error("task moved to dead letter queue",
			logger.TaskID(task.ID),
			logger.TaskName(task.TaskName),
			logger.Queue(task.Queue),
			slog.Bool("permanent", permanent))
		return nil
	}

	retryAt := time.Now().Add(w.backoff.NextInterval(task.Attempts))
	if err := w.repo.RetryTask(ctx, task.ID, execErr.Error(), retryAt); err != nil {
		return fmt.Errorf("failed to re-queue task %s: %w", task.ID, err)
	}
	return nil
}

// ExtendLockForTask extends the lock of a task that outlives the lock timeout.
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

// ID returns the worker identifier used for task locks.
func (w *Worker) ID() uuid.UUID {
	return w.workerID
}
