package agent

import (
    "context"
    "errors"

    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
    "github.com/amirimatin/go-nnagent/pkg/task"
    "github.com/amirimatin/go-nnagent/pkg/transport"
)

// Handlers adapts the agent to the control transport. Requests naming an
// unparseable task ID or an unknown signal are acknowledged as ignored and
// produce no status record.
func (a *Agent) Handlers() transport.Handlers {
    return transport.Handlers{
        Status: a.StatusJSON,
        Launch: a.handleLaunch,
        Kill:   a.handleKill,
        Signal: a.handleSignal,
    }
}

func (a *Agent) handleLaunch(ctx context.Context, req transport.LaunchRequest) (transport.Ack, error) {
    id, err := task.ParseID(req.ID)
    if err != nil {
        logutil.Warnf(a.opts.Logger, "ignoring launch: %v", err)
        return transport.Ack{Ignored: true, Error: err.Error()}, nil
    }
    d := task.Descriptor{ID: id, Command: req.Command, Resources: req.Resources}
    if err := a.Launch(ctx, d); err != nil {
        return transport.Ack{Error: err.Error()}, nil
    }
    return transport.Ack{Accepted: true}, nil
}

func (a *Agent) handleKill(ctx context.Context, req transport.KillRequest) (transport.Ack, error) {
    id, err := task.ParseID(req.ID)
    if err != nil {
        logutil.Warnf(a.opts.Logger, "ignoring kill: %v", err)
        return transport.Ack{Ignored: true, Error: err.Error()}, nil
    }
    if err := a.Kill(ctx, id); err != nil {
        return transport.Ack{Error: err.Error()}, nil
    }
    return transport.Ack{Accepted: true}, nil
}

func (a *Agent) handleSignal(ctx context.Context, req transport.SignalRequest) (transport.Ack, error) {
    if _, ok := task.ParseSignal([]byte(req.Message)); !ok {
        logutil.Debugf(a.opts.Logger, "ignoring unknown message %q", req.Message)
        return transport.Ack{Accepted: true, Ignored: true}, nil
    }
    err := a.Signal(ctx, []byte(req.Message))
    switch {
    case err == nil:
        return transport.Ack{Accepted: true}, nil
    case errors.Is(err, ErrAlreadyInitialized):
        return transport.Ack{Accepted: true, Ignored: true, Error: err.Error()}, nil
    default:
        return transport.Ack{Error: err.Error()}, nil
    }
}
