package pricefeed

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// TickQueue is an unbounded FIFO between the socket reader and the consumer.
// Push never blocks; Pop waits for the next tick or context cancellation.
type TickQueue struct {
	mu     sync.Mutex
	ticks  deque.Deque[Tick]
	notify chan struct{}
}

func NewTickQueue() *TickQueue {
	return &TickQueue{notify: make(chan struct{}, 1)}
}

func (q *TickQueue) Push(t Tick) {
	q.mu.Lock()
	q.ticks.PushBack(t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *TickQueue) Pop(ctx context.Context) (Tick, error) {
	for {
		q.mu.Lock()
		if q.ticks.Len() > 0 {
			t := q.ticks.PopFront()
			q.mu.Unlock()
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Tick{}, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *TickQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ticks.Len()
}
