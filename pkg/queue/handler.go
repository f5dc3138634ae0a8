package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler processes the payload of tasks registered under Name.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

type (
	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// NewTaskHandler wraps a typed handler. It registers under the qualified type
// name of T, matching the name Enqueue derives from a T payload.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var zero T
	return &typedHandler[T]{name: qualifiedStructName(zero), fn: fn}
}

// NewNamedTaskHandler wraps a typed handler under an explicit name, for tasks
// enqueued with WithTaskName.
func NewNamedTaskHandler[T any](name string, fn TaskHandlerFunc[T]) Handler {
	return &typedHandler[T]{name: name, fn: fn}
}

// NewPeriodicTaskHandler wraps a payload-less handler for scheduler tasks.
func NewPeriodicTaskHandler(name string, fn PeriodicTaskHandlerFunc) Handler {
	return &periodicHandler{name: name, fn: fn}
}

type typedHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *typedHandler[T]) Name() string { return h.name }

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var p T
	if err := json.Unmarshal(payload, &p); err != nil {
		// A payload that cannot be decoded never will be.
		return fmt.Errorf("%w: decode %s payload: %w", ErrSkipRetry, h.name, err)
	}
	return h.fn(ctx, p)
}

type periodicHandler struct {
	name string
	fn   PeriodicTaskHandlerFunc
}

func (h *periodicHandler) Name() string { return h.name }

func (h *periodicHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.fn(ctx)
}
