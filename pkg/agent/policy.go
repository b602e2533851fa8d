package agent

import (
    "github.com/amirimatin/go-nnagent/pkg/readiness"
    "github.com/amirimatin/go-nnagent/pkg/task"
)

// RolePolicy is the role-specific behavior of the agent, injected as data.
type RolePolicy struct {
    // StartOnLaunch starts the task's process as soon as it is launched.
    StartOnLaunch bool
    // StartOnSignal starts the task's process when the metadata node
    // receives a signal (the failover controller is started this way).
    StartOnSignal bool
    // Enter is the node state reached once a task of this role is launched.
    Enter State
}

// SignalPolicy maps a signal to the one-shot command that initializes the
// metadata node and to the readiness check gating it in discovery mode.
type SignalPolicy struct {
    Command string
    // Check builds the readiness check for one poll. Nil means the signal is
    // not gated on peers even in discovery mode.
    Check func() readiness.Check
}

// DefaultRoles encodes the HA layout: journal nodes start immediately, the
// metadata node waits for a signal and the failover controller is started
// alongside it.
func DefaultRoles() map[task.Role]RolePolicy {
    return map[task.Role]RolePolicy{
        task.RoleJournal:  {StartOnLaunch: true, Enter: StateJournalStarting},
        task.RoleMetadata: {Enter: StateAwaitingSignal},
        task.RoleFailover: {StartOnSignal: true},
    }
}

// DefaultSignals maps Init to "<binary> -i" gated on the journal quorum and
// Bootstrap to "<binary> -b" gated on peer name resolution.
func DefaultSignals(binary string, quorum, peers readiness.Check) map[task.Signal]SignalPolicy {
    return map[task.Signal]SignalPolicy{
        task.SignalInit:      {Command: binary + " " + task.InitMessage, Check: static(quorum)},
        task.SignalBootstrap: {Command: binary + " " + task.BootstrapMessage, Check: static(peers)},
    }
}

func static(c readiness.Check) func() readiness.Check {
    if c == nil { return nil }
    return func() readiness.Check { return c }
}
