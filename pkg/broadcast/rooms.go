package broadcast

import (
	"context"
	"sync"
)

// Rooms is a registry of named broadcasters. A room is created by its first
// subscriber and dropped once its last subscriber leaves, so broadcasting to
// a room nobody listens to is a no-op.
type Rooms[T any] struct {
	mu         sync.Mutex
	rooms      map[string]*MemoryBroadcaster[T]
	bufferSize int
	closed     bool
}

// NewRooms creates an empty registry. bufferSize is applied to every subscriber.
func NewRooms[T any](bufferSize int) *Rooms[T] {
	return &Rooms[T]{
		rooms:      make(map[string]*MemoryBroadcaster[T]),
		bufferSize: bufferSize,
	}
}

// Subscribe joins room. The subscription ends when ctx is done or the
// subscriber is closed.
func (r *Rooms[T]) Subscribe(ctx context.Context, room string) (Subscriber[T], error) {
	if room == "" {
		return nil, ErrEmptyRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	b, ok := r.rooms[room]
	if !ok {
		b = NewMemoryBroadcaster[T](r.bufferSize)
		r.rooms[room] = b
	}
	sub := b.Subscribe(ctx)
	return &roomSubscriber[T]{Subscriber: sub, rooms: r, room: room}, nil
}

// Broadcast offers msg to every subscriber of room.
func (r *Rooms[T]) Broadcast(ctx context.Context, room string, msg Message[T]) error {
	if room == "" {
		return ErrEmptyRoom
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	b, ok := r.rooms[room]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	// A room pruned concurrently has no subscribers left to miss the message.
	_ = b.Broadcast(ctx, msg)
	r.prune(room)
	return nil
}

// Len returns the number of subscribers currently in room.
func (r *Rooms[T]) Len(room string) int {
	r.mu.Lock()
	b, ok := r.rooms[room]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return b.Len()
}

// Names returns the rooms that currently have subscribers.
func (r *Rooms[T]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}

// Close closes every room and its subscribers.
func (r *Rooms[T]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	rooms := r.rooms
	r.rooms = make(map[string]*MemoryBroadcaster[T])
	r.mu.Unlock()

	for _, b := range rooms {
		_ = b.Close()
	}
	return nil
}

// prune drops room when it has no subscribers left.
func (r *Rooms[T]) prune(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.rooms[room]
	if !ok || b.Len() > 0 {
		return
	}
	delete(r.rooms, room)
	_ = b.Close()
}

type roomSubscriber[T any] struct {
	Subscriber[T]
	rooms *Rooms[T]
	room  string
}

func (s *roomSubscriber[T]) Close() error {
	err := s.Subscriber.Close()
	s.rooms.prune(s.room)
	return err
}
