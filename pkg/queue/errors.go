package queue

import "errors"

var (
	ErrRepositoryNil          = errors.New("queue: repository cannot be nil")
	ErrPayloadNil             = errors.New("queue: payload cannot be nil")
	ErrInvalidPriority        = errors.New("queue: priority must be between 0 and 100")
	ErrInvalidMaxAttempts     = errors.New("queue: max attempts must be between 1 and 25")
	ErrNoTaskToClaim          = errors.New("queue: no task to claim")
	ErrTaskNotFound           = errors.New("queue: task not found")
	ErrTaskExists             = errors.New("queue: task already exists")
	ErrTaskNotProcessing      = errors.New("queue: task is not being processed")
	ErrLockExpired            = errors.New("queue: task lock expired")
	ErrHandlerNotFound        = errors.New("queue: no handler registered for task")
	ErrNoHandlers             = errors.New("queue: no task handlers registered")
	ErrWorkerStarted          = errors.New("queue: worker already started")
	ErrWorkerNotStarted       = errors.New("queue: worker not started")
	ErrTaskAlreadyRegistered  = errors.New("queue: periodic task already registered")
	ErrSchedulerNotConfigured = errors.New("queue: scheduler has no registered tasks")

	// ErrSkipRetry marks a handler failure as permanent. The task goes
	// straight to the dead-letter set regardless of attempts left.
	ErrSkipRetry = errors.New("queue: skip retry")
)
