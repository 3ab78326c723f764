package handlers

import (
	"context"
	"sync"
)

// eventQueue runs persistence and publishing work for conversation events on one goroutine, in the
// order the events were pushed. Pushing never waits on the store, only on a full buffer.
type eventQueue struct {
	mu     sync.Mutex
	closed bool

	ch   chan func()
	done chan struct{}
}

const eventQueueSize = 64

func newEventQueue() *eventQueue {
	q := &eventQueue{
		ch:   make(chan func(), eventQueueSize),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) run() {
	defer close(q.done)

	for fn := range q.ch {
		fn()
	}
}

// push enqueues fn. It reports false once the queue is closed.
func (q *eventQueue) push(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.ch <- fn
	return true
}

// flush waits until every event pushed before the call has been handled.
func (q *eventQueue) flush(ctx context.Context) error {
	handled := make(chan struct{})
	if !q.push(func() { close(handled) }) {
		return q.wait(ctx)
	}

	select {
	case <-handled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting events and waits until the pending ones are handled. It is safe to call more
// than once.
func (q *eventQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	return q.wait(ctx)
}

func (q *eventQueue) wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
