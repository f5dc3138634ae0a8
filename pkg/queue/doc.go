// Package queue provides a storage-agnostic task queue with retries, a
// bounded dead-letter set, and periodic scheduling.
//
// Three components share a small set of repository interfaces:
//
//   - Enqueuer adds one-time tasks to a named queue.
//   - Worker claims tasks from one or more queues and runs the registered Handler.
//   - Scheduler turns Schedule definitions into periodic tasks.
//
// MemoryStorage backs the interfaces in-process; RedisStorage backs them with
// Redis so that several processes can share a queue.
//
// # Delivery semantics
//
// Delivery is at-least-once. Every claim counts as one attempt. A task whose
// handler fails is re-queued with a delay from the worker's BackoffStrategy
// until it has been attempted MaxAttempts times, after which it is moved to
// the dead-letter set of its queue. The dead-letter set keeps the newest
// entries up to the storage's limit and can be read with DeadTasks.
// A handler can short-circuit the retry loop by returning an error that wraps
// ErrSkipRetry.
//
// A worker that dies mid-task leaves the task locked; the lock expires after
// the lock timeout and the task becomes claimable again. Handlers must
// therefore tolerate duplicates.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	enq, _ := queue.NewEnqueuer(storage, queue.WithDefaultQueue("email"))
//	_ = enq.Enqueue(ctx, SendEmail{To: "a@example.com"}, queue.WithMaxAttempts(5))
//
//	w, _ := queue.NewWorker(storage, queue.WithQueues("email"))
//	_ = w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p SendEmail) error {
//		return mailer.Send(ctx, p)
//	}))
//	g.Go(w.Run(ctx))
package queue
