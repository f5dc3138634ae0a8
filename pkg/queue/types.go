package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

// DefaultMaxAttempts is the attempt budget of a task enqueued without WithMaxAttempts.
const DefaultMaxAttempts = 3

// TaskType distinguishes one-off work from scheduler-created work.
type TaskType string

const (
	TaskTypeOneTime  TaskType = "one-time"
	TaskTypePeriodic TaskType = "periodic"
)

// TaskStatus is the lifecycle state of a task held by storage.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
)

// Priority orders tasks within a queue (0-100, higher first).
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid reports whether p lies in the accepted range.
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task is the queue envelope around a JSON payload.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	TaskType    TaskType   `json:"task_type"`
	TaskName    string     `json:"task_name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AttemptsLeft returns how many more times the task may be claimed.
func (t *Task) AttemptsLeft() int {
	return max(t.MaxAttempts-t.Attempts, 0)
}

// DeadTask is a task that exhausted its attempts, kept for inspection.
type DeadTask struct {
	ID       uuid.UUID `json:"id"`
	TaskID   uuid.UUID `json:"task_id"`
	Queue    string    `json:"queue"`
	TaskType TaskType  `json:"task_type"`
	TaskName string    `json:"task_name"`
	Payload  []byte    `json:"payload,omitempty"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

func newDeadTask(task *Task, errMsg string, now time.Time) *DeadTask {
	return &DeadTask{
		ID:       uuid.New(),
		TaskID:   task.ID,
		Queue:    task.Queue,
		TaskType: task.TaskType,
		TaskName: task.TaskName,
		Payload:  task.Payload,
		Error:    errMsg,
		Attempts: task.Attempts,
		FailedAt: now,
	}
}
