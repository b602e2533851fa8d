package readiness

import (
    "context"
    "errors"
    "io"
    "log"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/jonboulle/clockwork"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("connection refused")

// fakeCheck reports targets as ready according to a mutable set and records
// the order of probes.
type fakeCheck struct {
    targets []string
    mu      sync.Mutex
    ready   map[string]bool
    probes  []string
}

func newFakeCheck(targets ...string) *fakeCheck {
    return &fakeCheck{targets: targets, ready: make(map[string]bool)}
}

func (f *fakeCheck) Name() string      { return "fake" }
func (f *fakeCheck) Targets() []string { return f.targets }

func (f *fakeCheck) Probe(_ context.Context, target string) error {
    f.mu.Lock(); defer f.mu.Unlock()
    f.probes = append(f.probes, target)
    if f.ready[target] { return nil }
    return errUnreachable
}

func (f *fakeCheck) setReady(targets ...string) {
    f.mu.Lock(); defer f.mu.Unlock()
    for _, t := range targets { f.ready[t] = true }
}

func (f *fakeCheck) probed() []string {
    f.mu.Lock(); defer f.mu.Unlock()
    return append([]string(nil), f.probes...)
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

const interval = 15 * time.Second

func TestEvaluateStopsAtFirstFailure(t *testing.T) {
    c := newFakeCheck("jn3", "jn2", "jn1")
    c.setReady("jn3", "jn1")

    ok, failed := Evaluate(context.Background(), c, time.Second, quietLogger())
    assert.False(t, ok)
    assert.Equal(t, "jn2", failed)
    assert.Equal(t, []string{"jn3", "jn2"}, c.probed())
}

func TestEvaluateAllReady(t *testing.T) {
    c := newFakeCheck("jn3", "jn2", "jn1")
    c.setReady("jn1", "jn2", "jn3")
    ok, failed := Evaluate(context.Background(), c, time.Second, quietLogger())
    assert.True(t, ok)
    assert.Empty(t, failed)
    assert.Equal(t, []string{"jn3", "jn2", "jn1"}, c.probed())
}

type panickyCheck struct{}

func (panickyCheck) Name() string                        { return "panicky" }
func (panickyCheck) Targets() []string                   { return []string{"jn1"} }
func (panickyCheck) Probe(context.Context, string) error { panic("permission denied") }

func TestEvaluateAbsorbsProbePanics(t *testing.T) {
    c := panickyCheck{}
    ok, failed := Evaluate(context.Background(), c, time.Second, quietLogger())
    assert.False(t, ok)
    assert.Equal(t, "jn1", failed)
}

func TestPollerRetriesUntilAllReady(t *testing.T) {
    clock := clockwork.NewFakeClock()
    p := New(Options{Clock: clock, Interval: interval, Logger: quietLogger()})

    // peers 1 and 2 are up, peer 3 (checked first) is not
    c := newFakeCheck("jn3", "jn2", "jn1")
    c.setReady("jn1", "jn2")

    var ready atomic.Int32
    h := p.Start(c, func() { ready.Add(1) }, nil)

    for tick := 1; tick <= 3; tick++ {
        require.Eventually(t, func() bool { return len(c.probed()) == tick }, time.Second, time.Millisecond)
        clock.Advance(interval)
    }
    require.Eventually(t, func() bool { return h.Ticks() == 4 }, time.Second, time.Millisecond)
    assert.Equal(t, int32(0), ready.Load())
    assert.False(t, h.Stopped())

    c.setReady("jn3")
    require.Eventually(t, func() bool { return len(c.probed()) >= 4 }, time.Second, time.Millisecond)
    clock.Advance(interval)

    select {
    case <-h.Done():
    case <-time.After(2 * time.Second):
        t.Fatal("poll did not finish after all peers became ready")
    }
    assert.Equal(t, int32(1), ready.Load())
    assert.True(t, h.Stopped())
    ticks := h.Ticks()

    // no further ticks once ready
    clock.Advance(interval)
    clock.Advance(interval)
    time.Sleep(20 * time.Millisecond)
    assert.Equal(t, ticks, h.Ticks())
    assert.Equal(t, int32(1), ready.Load())
}

func TestPollerReadyOnFirstTick(t *testing.T) {
    clock := clockwork.NewFakeClock()
    p := New(Options{Clock: clock, Interval: interval, Logger: quietLogger()})
    c := newFakeCheck("nn2", "nn1")
    c.setReady("nn1", "nn2")

    done := make(chan struct{})
    h := p.Start(c, func() { close(done) }, nil)
    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatal("first tick should fire without waiting for the interval")
    }
    <-h.Done()
    assert.Equal(t, 1, h.Ticks())
    assert.False(t, h.Stop())
}

func TestPollerGivesUpAfterMaxAttempts(t *testing.T) {
    clock := clockwork.NewFakeClock()
    p := New(Options{Clock: clock, Interval: interval, MaxAttempts: 2, Logger: quietLogger()})
    c := newFakeCheck("jn1")

    gaveUp := make(chan int, 1)
    h := p.Start(c, func() { t.Error("onReady must not be called") }, func(n int) { gaveUp <- n })
    require.Eventually(t, func() bool { return len(c.probed()) == 1 }, time.Second, time.Millisecond)
    clock.Advance(interval)

    select {
    case n := <-gaveUp:
        assert.Equal(t, 2, n)
    case <-time.After(2 * time.Second):
        t.Fatal("poller did not give up")
    }
    <-h.Done()
}

// blockingCheck parks every probe until released.
type blockingCheck struct {
    entered chan struct{}
    release chan struct{}
}

func (b *blockingCheck) Name() string      { return "blocking" }
func (b *blockingCheck) Targets() []string { return []string{"nn1"} }
func (b *blockingCheck) Probe(context.Context, string) error {
    b.entered <- struct{}{}
    <-b.release
    return nil
}

func TestStopWinsAgainstInFlightTick(t *testing.T) {
    p := New(Options{Clock: clockwork.NewFakeClock(), Interval: interval, Logger: quietLogger()})
    c := &blockingCheck{entered: make(chan struct{}, 1), release: make(chan struct{})}

    var ready atomic.Int32
    h := p.Start(c, func() { ready.Add(1) }, nil)
    <-c.entered
    assert.True(t, h.Stop())
    assert.False(t, h.Stop())
    close(c.release)

    <-h.Done()
    assert.Equal(t, int32(0), ready.Load())
}
