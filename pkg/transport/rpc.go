// Package transport defines the control API through which the orchestrator
// drives the agent, independent of the wire protocol (HTTP/JSON or gRPC).
package transport

import "context"

// LaunchRequest asks the agent to register and, depending on the role,
// start a task. ID is kept textual so that malformed identifiers reach the
// handler and can be rejected there.
type LaunchRequest struct {
    ID        string            `json:"id"`
    Command   string            `json:"command"`
    Resources map[string]string `json:"resources,omitempty"`
}

// KillRequest asks the agent to kill the task holding the ID's role.
type KillRequest struct {
    ID string `json:"id"`
}

// SignalRequest carries a framework message (e.g. "-i" or "-b").
type SignalRequest struct {
    Message string `json:"message"`
}

// Ack is the response to every control request. Ignored is set when the
// request was dropped without effect (unknown role or signal).
type Ack struct {
    Accepted bool   `json:"accepted"`
    Ignored  bool   `json:"ignored,omitempty"`
    Error    string `json:"error,omitempty"`
}

// StatusFunc returns the JSON-encoded agent snapshot for /status.
type StatusFunc func(ctx context.Context) ([]byte, error)

type LaunchFunc func(ctx context.Context, req LaunchRequest) (Ack, error)

type KillFunc func(ctx context.Context, req KillRequest) (Ack, error)

type SignalFunc func(ctx context.Context, req SignalRequest) (Ack, error)

// Handlers bundles the callbacks a ControlServer dispatches to.
type Handlers struct {
    Status StatusFunc
    Launch LaunchFunc
    Kill   KillFunc
    Signal SignalFunc
}

// ControlServer exposes the control endpoints.
type ControlServer interface {
    Start(ctx context.Context, h Handlers) error
    Addr() string
    Stop(ctx context.Context) error
}

// ControlClient calls a remote agent's control endpoints.
type ControlClient interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
    Launch(ctx context.Context, addr string, req LaunchRequest) (Ack, error)
    Kill(ctx context.Context, addr string, req KillRequest) (Ack, error)
    Signal(ctx context.Context, addr string, req SignalRequest) (Ack, error)
}
