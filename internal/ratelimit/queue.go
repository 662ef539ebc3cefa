package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Submit after Close has been called.
var ErrQueueClosed = errors.New("task queue closed")

// TaskQueue runs queued tasks strictly one at a time, in FIFO order, with a
// fixed delay inserted between consecutive tasks. It carries no retry or
// backoff logic of its own; retries belong to the wrapped call.
type TaskQueue struct {
	delay time.Duration
	items chan *queueItem

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

type queueItem struct {
	ctx  context.Context
	task func()
	done chan struct{}
}

// NewTaskQueue creates a TaskQueue with the given inter-task delay and
// starts its single worker.
func NewTaskQueue(delay time.Duration) *TaskQueue {
	q := &TaskQueue{
		delay:  delay,
		items:  make(chan *queueItem, 64),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues task and blocks until it has run. Tasks run in submission
// order with at most one in flight. If ctx is canceled before the task
// starts, the task is skipped and the context error returned.
func (q *TaskQueue) Submit(ctx context.Context, task func()) error {
	item := &queueItem{ctx: ctx, task: task, done: make(chan struct{})}

	select {
	case <-q.closed:
		return ErrQueueClosed
	case q.items <- item:
	}

	select {
	case <-item.done:
		return item.ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// Close stops the worker after the current task finishes. Pending tasks are
// abandoned; their Submit calls return ErrQueueClosed.
func (q *TaskQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// run is the single worker loop. The post-task delay provides the spacing
// between consecutive tasks: a task arriving after the delay has already
// elapsed starts immediately.
func (q *TaskQueue) run() {
	defer close(q.done)

	for {
		select {
		case <-q.closed:
			return
		case item := <-q.items:
			if item.ctx.Err() == nil {
				item.task()
			}
			close(item.done)

			timer := time.NewTimer(q.delay)
			select {
			case <-q.closed:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}
