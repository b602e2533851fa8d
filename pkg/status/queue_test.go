package status

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// gatedReporter blocks every delivery until gate is closed.
type gatedReporter struct {
    gate chan struct{}
    rec  Recorder
    mu   sync.Mutex
    ctxs []context.Context
}

func (r *gatedReporter) Report(ctx context.Context, u Update) error {
    <-r.gate
    r.mu.Lock()
    r.ctxs = append(r.ctxs, ctx)
    r.mu.Unlock()
    return r.rec.Report(ctx, u)
}

func TestQueueDeliversInOrder(t *testing.T) {
    var rec Recorder
    q := NewQueue(&rec, nil)
    ctx := context.Background()
    for _, st := range []State{StateRunning, StateRunning, StateFailed} {
        require.NoError(t, q.Report(ctx, NewUpdate("namenode.1", st, "")))
    }
    require.NoError(t, q.Flush(ctx))
    assert.Equal(t, 3, rec.Len())
    ups := rec.For("namenode.1")
    assert.Equal(t, StateFailed, ups[2].State)
    assert.Zero(t, q.Pending())
}

func TestQueueReportDoesNotBlock(t *testing.T) {
    r := &gatedReporter{gate: make(chan struct{})}
    q := NewQueue(r, nil)

    done := make(chan struct{})
    go func() {
        _ = q.Report(context.Background(), NewUpdate("journalnode.1", StateRunning, ""))
        _ = q.Report(context.Background(), NewUpdate("journalnode.1", StateFailed, "killed"))
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("Report blocked on delivery")
    }

    flushCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    assert.ErrorIs(t, q.Flush(flushCtx), context.DeadlineExceeded)

    close(r.gate)
    require.NoError(t, q.Flush(context.Background()))
    assert.Equal(t, []State{StateRunning, StateFailed}, []State{r.rec.Updates()[0].State, r.rec.Updates()[1].State})
}

func TestQueueOutlivesCallerContext(t *testing.T) {
    r := &gatedReporter{gate: make(chan struct{})}
    q := NewQueue(r, nil)
    ctx, cancel := context.WithCancel(context.Background())
    require.NoError(t, q.Report(ctx, NewUpdate("zkfc.1", StateRunning, "")))
    cancel()
    close(r.gate)
    require.NoError(t, q.Flush(context.Background()))

    require.Len(t, r.ctxs, 1)
    assert.NoError(t, r.ctxs[0].Err())
    assert.Equal(t, 1, r.rec.Len())
}

type failingReporter struct{}

func (failingReporter) Report(context.Context, Update) error { return errors.New("orchestrator down") }

func TestQueueReportsDeliveryErrors(t *testing.T) {
    var mu sync.Mutex
    var failed []string
    q := NewQueue(failingReporter{}, func(u Update, err error) {
        mu.Lock(); defer mu.Unlock()
        failed = append(failed, u.TaskID+": "+err.Error())
    })
    require.NoError(t, q.Report(context.Background(), NewUpdate("namenode.1", StateFailed, "")))
    require.NoError(t, q.Flush(context.Background()))
    mu.Lock(); defer mu.Unlock()
    assert.Equal(t, []string{"namenode.1: orchestrator down"}, failed)
}
