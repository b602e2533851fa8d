// Package readiness decides when the metadata node's peers are reachable.
// A Poller evaluates a Check on a fixed schedule until every target passes
// within one tick, then cancels itself and hands control back through a
// callback.
package readiness

import (
    "context"
    "log"
    "sync/atomic"
    "time"

    "github.com/jonboulle/clockwork"

    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-nnagent/pkg/observability/metrics"
)

// DefaultInterval is the delay between two ticks of a poll.
const DefaultInterval = 15 * time.Second

// Options configures a Poller.
type Options struct {
    Clock clockwork.Clock
    // Interval between ticks. The first tick fires immediately.
    Interval time.Duration
    // Timeout bounds every single probe. Default 5s.
    Timeout time.Duration
    // MaxAttempts stops the poll after that many unsuccessful ticks.
    // Zero retries until success or Stop.
    MaxAttempts int
    Logger      *log.Logger
}

// Poller spawns polls sharing one schedule and retry policy.
type Poller struct {
    opts Options
}

func New(opts Options) *Poller {
    if opts.Clock == nil { opts.Clock = clockwork.NewRealClock() }
    if opts.Interval <= 0 { opts.Interval = DefaultInterval }
    if opts.Timeout <= 0 { opts.Timeout = 5 * time.Second }
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &Poller{opts: opts}
}

// Handle controls one outstanding poll.
type Handle struct {
    check   Check
    ctx     context.Context
    cancel  context.CancelFunc
    done    chan struct{}
    stopped atomic.Bool
    ticks   atomic.Int64
}

// Stop cancels the poll. It returns true for the call that actually
// stopped it; later calls, or calls after the poll completed, return false.
func (h *Handle) Stop() bool {
    if h.stopped.CompareAndSwap(false, true) {
        h.cancel()
        return true
    }
    return false
}

// Stopped reports whether the poll was stopped or completed.
func (h *Handle) Stopped() bool { return h.stopped.Load() }

// Done is closed once the poll goroutine has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Ticks returns how many ticks have started so far.
func (h *Handle) Ticks() int { return int(h.ticks.Load()) }

// Check returns the policy being polled.
func (h *Handle) Check() Check { return h.check }

// Start begins polling c. onReady is called once, from the poll goroutine,
// after a tick found every target ready and the poll has cancelled itself.
// onGiveUp is called once when MaxAttempts is exhausted. Neither is called
// if Stop wins the race against the deciding tick.
func (p *Poller) Start(c Check, onReady func(), onGiveUp func(attempts int)) *Handle {
    ctx, cancel := context.WithCancel(context.Background())
    h := &Handle{check: c, ctx: ctx, cancel: cancel, done: make(chan struct{})}
    obsmetrics.PollsActive.Inc()
    logutil.Infof(p.opts.Logger, "polling %s every %s for %v", c.Name(), p.opts.Interval, c.Targets())
    ticker := p.opts.Clock.NewTicker(p.opts.Interval)
    go func() {
        defer close(h.done)
        defer obsmetrics.PollsActive.Dec()
        defer ticker.Stop()
        for {
            if p.tick(h, onReady, onGiveUp) {
                return
            }
            select {
            case <-ctx.Done():
                return
            case <-ticker.Chan():
            }
        }
    }()
    return h
}

// tick runs one evaluation and reports whether the poll is over.
func (p *Poller) tick(h *Handle, onReady func(), onGiveUp func(int)) bool {
    if h.stopped.Load() {
        return true
    }
    n := int(h.ticks.Add(1))
    ok, _ := Evaluate(h.ctx, h.check, p.opts.Timeout, p.opts.Logger)
    if ok {
        obsmetrics.PollTicks.WithLabelValues(h.check.Name(), "ready").Inc()
        if !h.Stop() {
            return true
        }
        logutil.Infof(p.opts.Logger, "%s: found all nodes needed to continue after %d tick(s)", h.check.Name(), n)
        if onReady != nil { onReady() }
        return true
    }
    obsmetrics.PollTicks.WithLabelValues(h.check.Name(), "not_ready").Inc()
    if p.opts.MaxAttempts > 0 && n >= p.opts.MaxAttempts {
        if h.Stop() {
            logutil.Warnf(p.opts.Logger, "%s: giving up after %d tick(s)", h.check.Name(), n)
            if onGiveUp != nil { onGiveUp(n) }
        }
        return true
    }
    return false
}
