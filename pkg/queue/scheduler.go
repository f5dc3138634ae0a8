package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// SchedulerRepository is the storage side of periodic scheduling.
type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error

	// GetPendingTaskByName returns the live task with the given name, or
	// ErrTaskNotFound.
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler materialises periodic tasks. It skips a run while a task with the
// same name is still pending or running.
type Scheduler struct {
	repo     SchedulerRepository
	tasks    map[string]*scheduledTask
	mu       sync.RWMutex
	interval time.Duration
	logger   *slog.Logger
}

type scheduledTask struct {
	name            string
	schedule        Schedule
	queue           string
	priority        Priority
	maxAttempts     int
	lastScheduledAt *time.Time
}

// NewScheduler creates a Scheduler.
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:     repo,
		tasks:    make(map[string]*scheduledTask),
		interval: options.checkInterval,
		logger:   options.logger.With(logger.Component("queue.scheduler")),
	}, nil
}

// AddTask registers a periodic task. Its handler must be registered on a
// worker with NewPeriodicTaskHandler under the same name.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	taskOpts := &schedulerTaskOptions{
		queue:       DefaultQueueName,
		priority:    PriorityDefault,
		maxAttempts: 1,
	}
	for _, opt := range opts {
		opt(taskOpts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}
	s.tasks[name] = &scheduledTask{
		name:        name,
		schedule:    schedule,
		queue:       taskOpts.queue,
		priority:    taskOpts.priority,
		maxAttempts: taskOpts.maxAttempts,
	}

	s.logger.Info("registered periodic task",
		logger.TaskName(name),
		slog.String("schedule", schedule.String()))
	return nil
}

// Start checks due tasks immediately and then on every interval until ctx is
// done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	n := len(s.tasks)
	s.mu.RUnlock()
	if n == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.checkTasks(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.checkTasks(ctx, time.Now())
		}
	}
}

// Run returns a function for errgroup.Group.Go.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error { return s.Start(ctx) }
}

func (s *Scheduler) checkTasks(ctx context.Context, now time.Time) {
	s.mu.RLock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.RUnlock()

	for _, t := range tasks {
		if err := s.scheduleIfDue(ctx, t, now); err != nil {
			s.logger.Error("failed to schedule periodic task",
				logger.TaskName(t.name),
				logger.Error(err))
		}
	}
}

func (s *Scheduler) scheduleIfDue(ctx context.Context, t *scheduledTask, now time.Time) error {
	s.mu.RLock()
	last := t.lastScheduledAt
	s.mu.RUnlock()

	var next time.Time
	if last == nil {
		next = t.schedule.Next(now)
	} else {
		next = t.schedule.Next(*last)
		if next.After(now) {
			return nil
		}
	}

	existing, err := s.repo.GetPendingTaskByName(ctx, t.name)
	switch {
	case err == nil && existing != nil:
		s.setLast(t.name, existing.ScheduledAt)
		return nil
	case err != nil && !errors.Is(err, ErrTaskNotFound):
		return err
	}

	// A schedule that fell behind resumes from now instead of replaying
	// every missed slot.
	if next.Before(now) {
		next = now
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       t.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    t.name,
		Status:      TaskStatusPending,
		Priority:    t.priority,
		MaxAttempts: t.maxAttempts,
		ScheduledAt: next,
		CreatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create periodic task: %w", err)
	}
	s.setLast(t.name, next)

	s.logger.Debug("scheduled periodic task",
		logger.TaskName(t.name),
		slog.Time("scheduled_for", next))
	return nil
}

func (s *Scheduler) setLast(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.lastScheduledAt = &at
	}
}

// RemoveTask unregisters a periodic task. A task already in storage still runs.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

// ListTasks returns the registered task names.
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}
