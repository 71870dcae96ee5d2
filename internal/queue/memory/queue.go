// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// DefaultLane is assigned to items enqueued without an explicit lane.
const DefaultLane = "crawling"

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan crawl.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan crawl.QueueItem, capacity),
	}
}

// Enqueue pushes a claimed job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item crawl.QueueItem) error {
	if item.Lane == "" {
		item.Lane = DefaultLane
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawl.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawl.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return crawl.QueueItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Len reports the number of items waiting in the queue.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
