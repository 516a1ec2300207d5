package engine

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded FIFO of dispatches.
//
// Every Push closes the current ready channel and installs a fresh one, so
// any number of waiters (a blocked Pop, the idle activity) observe
// "work became available" without consuming anything.
type Queue struct {
	mu    sync.Mutex
	items []Dispatch
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{})}
}

func (q *Queue) Push(d Dispatch) {
	q.mu.Lock()
	q.items = append(q.items, d)
	close(q.ready)
	q.ready = make(chan struct{})
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wake returns a channel closed by the next Push. pending is true when items
// are already queued, in which case the channel may never fire.
func (q *Queue) Wake() (ready <-chan struct{}, pending bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready, len(q.items) > 0
}

// Pop removes the oldest dispatch. It waits up to timeout (forever when
// timeout <= 0) and returns ErrDequeueTimeout if nothing arrived.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Dispatch, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			d := q.items[0]
			q.items[0] = Dispatch{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return d, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Dispatch{}, ctx.Err()
		case <-deadline:
			return Dispatch{}, ErrDequeueTimeout
		case <-ready:
		}
	}
}
