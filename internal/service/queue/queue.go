// Package queue provides the bounded FIFO used between the capture loop and its workers.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("queue closed")

// Policy decides what Put does when the queue is full.
type Policy int

const (
	// Block makes the producer wait for room.
	Block Policy = iota
	// DropOldest evicts the oldest queued item to make room.
	DropOldest
)

// ParsePolicy maps the config names "block" and "drop-oldest".
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "block":
		return Block, nil
	case "drop-oldest":
		return DropOldest, nil
	}
	return Block, errors.New("unknown overflow policy " + name)
}

// Queue is a multi-producer, single-consumer bounded FIFO. Close is the stop sentinel: the
// consumer still receives everything queued before it.
type Queue[T any] struct {
	items  chan T
	policy Policy
	// onDrop releases an evicted item, e.g. closing its frame.
	onDrop func(T)

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// New creates a queue holding at most size items.
func New[T any](size int, policy Policy, onDrop func(T)) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{
		items:  make(chan T, size),
		policy: policy,
		onDrop: onDrop,
	}
}

// Put enqueues item. Under Block it waits for room or ctx; under DropOldest it never waits.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	if q.policy == Block {
		select {
		case q.items <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case q.items <- item:
			return nil
		default:
		}
		select {
		case old := <-q.items:
			q.dropped.Add(1)
			if q.onDrop != nil {
				q.onDrop(old)
			}
		default:
		}
	}
}

// Items is the consumer side. It is closed after Close once everything queued is drained.
func (q *Queue[T]) Items() <-chan T {
	return q.items
}

// Close stops accepting items. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue bound.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

// Dropped returns how many items DropOldest has evicted.
func (q *Queue[T]) Dropped() int64 {
	return q.dropped.Load()
}
