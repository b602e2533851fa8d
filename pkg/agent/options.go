package agent

import (
    "context"
    "errors"
    "log"

    "github.com/amirimatin/go-nnagent/pkg/readiness"
    "github.com/amirimatin/go-nnagent/pkg/status"
    "github.com/amirimatin/go-nnagent/pkg/task"
    "github.com/amirimatin/go-nnagent/pkg/transport"
)

// Supervisor runs the processes of tasks. *process.Supervisor satisfies it.
type Supervisor interface {
    Start(t *task.Task) error
    RunOnce(ctx context.Context, command string) error
    Stop(t *task.Task) error
}

// ExitNotifier is implemented by supervisors that can report processes
// exiting on their own.
type ExitNotifier interface {
    SetOnExit(fn func(id task.ID, p task.Process, err error))
}

// Poller spawns readiness polls. *readiness.Poller satisfies it.
type Poller interface {
    Start(c readiness.Check, onReady func(), onGiveUp func(attempts int)) *readiness.Handle
}

// Options carries the collaborators and policies of an Agent. Instances are
// typically produced from bootstrap.Config.
type Options struct {
    Supervisor Supervisor
    Reporter   status.Reporter
    // Poller is required when Discovery is set.
    Poller Poller

    Roles   map[task.Role]RolePolicy
    Signals map[task.Signal]SignalPolicy

    // DataDir holds the metadata node's "name" directory.
    DataDir string
    // Discovery gates initialization on readiness polls because peer
    // records may lag behind process startup.
    Discovery bool

    Logger *log.Logger

    // Optional control endpoint started by Start.
    ControlServer transport.ControlServer
}

// Validate performs a minimal validation of Options.
func (o Options) Validate() error {
    if o.Supervisor == nil {
        return errors.New("agent: nil Supervisor")
    }
    if o.Reporter == nil {
        return errors.New("agent: nil Reporter")
    }
    if o.Logger == nil {
        return errors.New("agent: nil Logger")
    }
    if o.DataDir == "" {
        return errors.New("agent: empty DataDir")
    }
    if o.Discovery && o.Poller == nil {
        return errors.New("agent: discovery enabled without Poller")
    }
    for sig, p := range o.Signals {
        if p.Command == "" {
            return errors.New("agent: empty command for signal " + sig.String())
        }
    }
    return nil
}
