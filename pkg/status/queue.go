package status

import (
    "context"
    "sync"
)

// Queue hands updates to a Reporter from a single goroutine, in the order
// they were queued. Report only enqueues, so callers may hold their own
// locks while reporting. Each update is delivered exactly once and is not
// bound to the caller's context cancellation.
type Queue struct {
    next    Reporter
    onError func(Update, error)

    mu      sync.Mutex
    pending []queued
    // idle is closed when the delivery goroutine drains the queue; nil
    // while no goroutine runs.
    idle chan struct{}
}

type queued struct {
    ctx context.Context
    u   Update
}

// NewQueue wraps next. onError, if set, is called for every update next
// failed to deliver.
func NewQueue(next Reporter, onError func(Update, error)) *Queue {
    return &Queue{next: next, onError: onError}
}

// Report enqueues u and returns immediately.
func (q *Queue) Report(ctx context.Context, u Update) error {
    q.mu.Lock()
    defer q.mu.Unlock()
    q.pending = append(q.pending, queued{ctx: context.WithoutCancel(ctx), u: u})
    if q.idle == nil {
        q.idle = make(chan struct{})
        go q.drain(q.idle)
    }
    return nil
}

func (q *Queue) drain(idle chan struct{}) {
    for {
        q.mu.Lock()
        if len(q.pending) == 0 {
            q.idle = nil
            q.mu.Unlock()
            close(idle)
            return
        }
        item := q.pending[0]
        q.pending[0] = queued{}
        q.pending = q.pending[1:]
        q.mu.Unlock()

        if err := q.next.Report(item.ctx, item.u); err != nil && q.onError != nil {
            q.onError(item.u, err)
        }
    }
}

// Pending returns the number of updates not yet handed to the reporter.
func (q *Queue) Pending() int {
    q.mu.Lock(); defer q.mu.Unlock()
    return len(q.pending)
}

// Flush waits until every queued update has been delivered or ctx is done.
func (q *Queue) Flush(ctx context.Context) error {
    q.mu.Lock()
    idle := q.idle
    q.mu.Unlock()
    if idle == nil {
        return nil
    }
    select {
    case <-idle:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

var _ Reporter = (*Queue)(nil)
