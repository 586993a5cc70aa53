// Package queue defines the bounded per-lane event queue.
//
// A lane owns one queue; the dispatcher blocks on Enqueue when the lane is
// full, so a slow lane slows the producer instead of dropping events.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultName          = "0"
)

// Event represents the payload type flowing through the queue.
type Event = model.ScoreEvent

// Queue provides blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event, waiting for room until ctx is done.
	Enqueue(ctx context.Context, e Event) error

	// Dequeue returns the channel events are delivered on. It is closed once
	// the queue is closed and drained.
	Dequeue() <-chan Event

	// Len returns the current number of queued events.
	Len() int

	// Close stops accepting events. Queued events remain readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	name     string

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		name:     defaultName,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.events = make(chan Event, q.capacity)
	metrics.UpdateLaneQueueDepth(q.name, 0)

	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.events <- e:
		metrics.UpdateLaneQueueDepth(q.name, len(q.events))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue on lane %s: %w", q.name, context.Cause(ctx))
	}
}

// Dequeue returns the channel that delivers queued events.
func (q *InMemoryQueue) Dequeue() <-chan Event {
	return q.events
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	size := len(q.events)
	metrics.UpdateLaneQueueDepth(q.name, size)
	return size
}

// Close stops the queue from accepting events.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.events)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
