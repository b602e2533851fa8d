package agent

import (
    obsmetrics "github.com/amirimatin/go-nnagent/pkg/observability/metrics"
)

// State is the lifecycle state of the node as a whole.
type State string

const (
    StateIdle            State = "idle"
    StateJournalStarting State = "journal_starting"
    StateAwaitingSignal  State = "awaiting_signal"
    StatePolling         State = "polling"
    StateInitializing    State = "initializing"
    StateServiceRunning  State = "service_running"
    StateFailed          State = "failed"
)

// States lists every state in lifecycle order.
var States = []State{StateIdle, StateJournalStarting, StateAwaitingSignal, StatePolling, StateInitializing, StateServiceRunning, StateFailed}

func (s State) rank() int {
    for i, v := range States {
        if v == s { return i }
    }
    return -1
}

// Terminal reports whether no further transition except to Failed exists.
func (s State) Terminal() bool { return s == StateServiceRunning || s == StateFailed }

// canAdvance reports whether the node may move from s to next. The
// lifecycle only moves forward; Failed is absorbing and reachable from
// every other state.
func (s State) canAdvance(next State) bool {
    if s == StateFailed { return false }
    if next == StateFailed { return true }
    return next.rank() > s.rank()
}

// advance moves the node to next if the lifecycle allows it. Callers hold a.mu.
func (a *Agent) advance(next State) bool {
    cur := a.state
    if !cur.canAdvance(next) {
        return false
    }
    a.state = next
    obsmetrics.NodeState.WithLabelValues(string(cur)).Set(0)
    obsmetrics.NodeState.WithLabelValues(string(next)).Set(1)
    a.logf("node state %s -> %s", cur, next)
    return true
}
