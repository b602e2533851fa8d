// Package agent implements the node lifecycle coordinator: it interprets the
// orchestrator's launch, kill and signal calls and drives the task registry,
// the process supervisor, readiness polls and status reports in order.
package agent

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "sync"

    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-nnagent/pkg/observability/metrics"
    "github.com/amirimatin/go-nnagent/pkg/observability/tracing"
    "github.com/amirimatin/go-nnagent/pkg/readiness"
    "github.com/amirimatin/go-nnagent/pkg/status"
    "github.com/amirimatin/go-nnagent/pkg/task"
)

// NameDir is the marker directory created under the data dir on the first
// signal.
const NameDir = "name"

// Agent is the per-node coordinator. Registry, poll and lifecycle state are
// shared between orchestrator callbacks and poll goroutines and guarded by
// one lock.
type Agent struct {
    opts Options

    mu          sync.Mutex
    reg         *task.Registry
    state       State
    polls       map[task.Signal]*readiness.Handle
    initStarted bool

    // reports delivers status records in transition order without holding mu.
    reports *status.Queue

    run struct {
        started bool
        closed  bool
    }
}

// New constructs an Agent from validated options. It performs no I/O; call
// Start to serve the control endpoint.
func New(opts Options) (*Agent, error) {
    if opts.Roles == nil { opts.Roles = DefaultRoles() }
    if opts.Signals == nil { opts.Signals = DefaultSignals("bin/hdfs-mesos-namenode", nil, nil) }
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    a := &Agent{opts: opts, reg: task.NewRegistry(), state: StateIdle, polls: make(map[task.Signal]*readiness.Handle)}
    a.reports = status.NewQueue(opts.Reporter, func(u status.Update, err error) {
        obsmetrics.StatusReportErrors.Inc()
        logutil.Errorf(opts.Logger, "report %s %s: %v", u.TaskID, u.State, err)
    })
    if n, ok := opts.Supervisor.(ExitNotifier); ok {
        n.SetOnExit(a.onExit)
    }
    obsmetrics.NodeState.WithLabelValues(string(StateIdle)).Set(1)
    return a, nil
}

// Start registers metrics and starts the control server, if configured.
func (a *Agent) Start(ctx context.Context) error {
    a.mu.Lock()
    defer a.mu.Unlock()
    if a.run.started {
        return nil
    }
    a.run.started = true
    obsmetrics.Register()
    if srv := a.opts.ControlServer; srv != nil {
        if err := srv.Start(ctx, a.Handlers()); err != nil { return err }
        logutil.Infof(a.opts.Logger, "control endpoint listening at %s (launch/kill/signal/status/metrics/healthz)", srv.Addr())
    }
    return nil
}

// Stop shuts every task down and stops the control server.
func (a *Agent) Stop(ctx context.Context) error {
    a.mu.Lock()
    if !a.run.started {
        a.mu.Unlock()
        return ErrNotStarted
    }
    if a.run.closed {
        a.mu.Unlock()
        return nil
    }
    a.run.closed = true
    a.mu.Unlock()

    a.Shutdown(ctx)
    if srv := a.opts.ControlServer; srv != nil {
        return srv.Stop(ctx)
    }
    return nil
}

// ControlAddr returns the address of the control endpoint, if any.
func (a *Agent) ControlAddr() string {
    if a.opts.ControlServer == nil { return "" }
    return a.opts.ControlServer.Addr()
}

// Launch registers the task described by d and applies its role policy.
func (a *Agent) Launch(ctx context.Context, d task.Descriptor) (err error) {
    ctx, span := tracing.StartSpan(ctx, "agent.launch", "task", d.ID.String())
    defer func() { span.End(err) }()

    role := d.ID.Role
    if !role.Valid() {
        obsmetrics.TasksLaunched.WithLabelValues(string(role), "rejected").Inc()
        return fmt.Errorf("agent: launch %q: %w", d.ID, task.ErrUnknownRole)
    }
    pol := a.opts.Roles[role]

    a.mu.Lock()
    defer a.mu.Unlock()
    t := task.New(d)
    if _, added, err := a.reg.Register(t); err != nil {
        obsmetrics.TasksLaunched.WithLabelValues(string(role), "rejected").Inc()
        logutil.Warnf(a.opts.Logger, "rejecting launch of %s: %v", d.ID, err)
        a.report(ctx, d.ID, status.StateFailed, err.Error())
        return err
    } else if !added {
        obsmetrics.TasksLaunched.WithLabelValues(string(role), "duplicate").Inc()
        logutil.Infof(a.opts.Logger, "%s already launched, ignoring", d.ID)
        return nil
    }
    logutil.Infof(a.opts.Logger, "launching %s", d.ID)

    if pol.StartOnLaunch {
        if err := a.opts.Supervisor.Start(t); err != nil {
            obsmetrics.TasksLaunched.WithLabelValues(string(role), "failed").Inc()
            logutil.Errorf(a.opts.Logger, "start %s: %v", d.ID, err)
            a.report(ctx, d.ID, status.StateFailed, err.Error())
            return err
        }
    }
    obsmetrics.TasksLaunched.WithLabelValues(string(role), "ok").Inc()
    a.report(ctx, d.ID, status.StateRunning, "")
    if pol.Enter != "" {
        a.advance(pol.Enter)
    }
    return nil
}

// Kill stops the task holding id's role, reports it FAILED and retires the
// role. Killing an empty slot is a no-op. Killing the metadata node cancels
// its outstanding polls.
func (a *Agent) Kill(ctx context.Context, id task.ID) (err error) {
    ctx, span := tracing.StartSpan(ctx, "agent.kill", "task", id.String())
    defer func() { span.End(err) }()

    a.mu.Lock()
    t, ok := a.reg.Remove(id.Role)
    if !ok {
        a.mu.Unlock()
        logutil.Infof(a.opts.Logger, "kill %s: no task registered for %s", id, id.Role)
        return nil
    }
    if t.ID() != id {
        logutil.Warnf(a.opts.Logger, "kill %s: killing %s which holds the %s slot", id, t.ID(), id.Role)
    }
    if t.Role() == task.RoleMetadata {
        a.stopPolls()
    }
    a.mu.Unlock()

    // The task is out of the registry, so neither onExit nor initialize
    // touches it while it stops.
    logutil.Infof(a.opts.Logger, "killing task %s", t.ID())
    if err := a.opts.Supervisor.Stop(t); err != nil {
        logutil.Warnf(a.opts.Logger, "stop %s: %v", t.ID(), err)
    }

    a.mu.Lock()
    defer a.mu.Unlock()
    a.report(ctx, t.ID(), status.StateFailed, "killed")
    if t.Role() == task.RoleMetadata {
        a.advance(StateFailed)
    }
    return nil
}

// Signal handles a framework message. Unknown payloads are ignored. Without
// a registered metadata task it returns ErrNoMetadataTask and does nothing.
func (a *Agent) Signal(ctx context.Context, payload []byte) (err error) {
    sig, ok := task.ParseSignal(payload)
    if !ok {
        logutil.Debugf(a.opts.Logger, "ignoring unknown message %q", payload)
        return nil
    }
    pol, ok := a.opts.Signals[sig]
    if !ok {
        logutil.Warnf(a.opts.Logger, "no policy for %s signal, ignoring", sig)
        return nil
    }
    ctx, span := tracing.StartSpan(ctx, "agent.signal", "signal", sig.String())
    defer func() { span.End(err) }()

    a.mu.Lock()
    meta, ok := a.reg.Lookup(task.RoleMetadata)
    if !ok {
        a.mu.Unlock()
        return ErrNoMetadataTask
    }
    a.ensureNameDir()
    a.startCompanions(ctx)
    a.report(ctx, meta.ID(), status.StateRunning, sig.Literal())

    if a.initStarted {
        a.mu.Unlock()
        logutil.Infof(a.opts.Logger, "%s signal: initialization already started", sig)
        return ErrAlreadyInitialized
    }
    if a.opts.Discovery && pol.Check != nil {
        if _, polling := a.polls[sig]; polling {
            a.mu.Unlock()
            logutil.Infof(a.opts.Logger, "%s signal: poll already outstanding", sig)
            return nil
        }
        a.advance(StatePolling)
        a.polls[sig] = a.opts.Poller.Start(pol.Check(),
            func() { a.onReady(sig) },
            func(n int) { a.onGiveUp(sig, n) })
        a.mu.Unlock()
        return nil
    }
    a.initStarted = true
    a.mu.Unlock()
    return a.initialize(context.WithoutCancel(ctx), sig, meta)
}

// ensureNameDir creates <dataDir>/name unless it exists. Callers hold a.mu.
func (a *Agent) ensureNameDir() {
    dir := filepath.Join(a.opts.DataDir, NameDir)
    if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
        logutil.Infof(a.opts.Logger, "data directory %s already exists, not formatting just starting", dir)
        return
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        logutil.Errorf(a.opts.Logger, "create data directory %s: %v", dir, err)
        return
    }
    logutil.Infof(a.opts.Logger, "created data directory %s", dir)
}

// startCompanions starts the processes of roles started alongside the
// metadata node. Callers hold a.mu.
func (a *Agent) startCompanions(ctx context.Context) {
    for _, role := range task.Roles {
        if !a.opts.Roles[role].StartOnSignal { continue }
        t, ok := a.reg.Lookup(role)
        if !ok || t.Running() { continue }
        if err := a.opts.Supervisor.Start(t); err != nil {
            logutil.Errorf(a.opts.Logger, "start %s: %v", t.ID(), err)
            a.report(ctx, t.ID(), status.StateFailed, err.Error())
        }
    }
}

// onReady runs on the poll goroutine once every peer of the check is ready.
func (a *Agent) onReady(sig task.Signal) {
    a.mu.Lock()
    delete(a.polls, sig)
    meta, ok := a.reg.Lookup(task.RoleMetadata)
    if !ok || a.initStarted {
        a.mu.Unlock()
        logutil.Infof(a.opts.Logger, "%s poll finished, nothing left to initialize", sig)
        return
    }
    a.initStarted = true
    a.stopPolls()
    a.mu.Unlock()
    logutil.Infof(a.opts.Logger, "found all nodes needed to continue, running %s", sig)
    _ = a.initialize(context.Background(), sig, meta)
}

func (a *Agent) onGiveUp(sig task.Signal, attempts int) {
    a.mu.Lock()
    defer a.mu.Unlock()
    delete(a.polls, sig)
    if a.initStarted {
        return
    }
    meta, ok := a.reg.Lookup(task.RoleMetadata)
    if !ok {
        return
    }
    a.report(context.Background(), meta.ID(), status.StateFailed, fmt.Sprintf("peers not ready after %d attempts", attempts))
    if len(a.polls) == 0 {
        a.advance(StateFailed)
    }
}

// initialize runs the signal's one-shot command and then starts the metadata
// process. The lock is released while the command runs so that Kill is not
// blocked behind it. It runs at most once per node lifetime.
func (a *Agent) initialize(ctx context.Context, sig task.Signal, meta *task.Task) (err error) {
    ctx, span := tracing.StartSpan(ctx, "agent.initialize", "signal", sig.String(), "task", meta.ID().String())
    defer func() { span.End(err) }()

    a.mu.Lock()
    a.advance(StateInitializing)
    a.mu.Unlock()

    cmdErr := a.opts.Supervisor.RunOnce(ctx, a.opts.Signals[sig].Command)

    a.mu.Lock()
    defer a.mu.Unlock()
    if cur, ok := a.reg.Lookup(task.RoleMetadata); !ok || cur != meta {
        // Kill already reported the task.
        if cmdErr != nil {
            logutil.Warnf(a.opts.Logger, "%s command failed after %s was killed: %v", sig, meta.ID(), cmdErr)
            return fmt.Errorf("agent: %s: %w", sig, cmdErr)
        }
        logutil.Warnf(a.opts.Logger, "%s was killed during %s, not starting it", meta.ID(), sig)
        return nil
    }
    if cmdErr != nil {
        logutil.Errorf(a.opts.Logger, "%s command failed: %v", sig, cmdErr)
        a.report(ctx, meta.ID(), status.StateFailed, cmdErr.Error())
        a.advance(StateFailed)
        return fmt.Errorf("agent: %s: %w", sig, cmdErr)
    }
    if err := a.opts.Supervisor.Start(meta); err != nil {
        logutil.Errorf(a.opts.Logger, "start %s: %v", meta.ID(), err)
        a.report(ctx, meta.ID(), status.StateFailed, err.Error())
        a.advance(StateFailed)
        return err
    }
    a.advance(StateServiceRunning)
    return nil
}

// onExit is called by the supervisor when a process exits without being
// stopped. The task stays registered without a process.
func (a *Agent) onExit(id task.ID, p task.Process, exitErr error) {
    a.mu.Lock()
    defer a.mu.Unlock()
    t, ok := a.reg.Lookup(id.Role)
    if !ok || t.ID() != id || t.Process() != p {
        return
    }
    t.ClearProcess()
    msg := "process exited"
    if exitErr != nil {
        msg = exitErr.Error()
    }
    a.report(context.Background(), id, status.StateFailed, msg)
    if id.Role == task.RoleMetadata {
        a.advance(StateFailed)
    }
}

// Shutdown cancels every poll, stops every process and reports each
// registered task KILLED. It returns once the records are delivered or ctx
// is done. Used when the orchestrator shuts the agent down.
func (a *Agent) Shutdown(ctx context.Context) {
    a.mu.Lock()
    a.stopPolls()
    tasks := a.reg.Tasks()
    for _, t := range tasks {
        a.reg.Remove(t.Role())
    }
    a.mu.Unlock()

    for _, t := range tasks {
        if err := a.opts.Supervisor.Stop(t); err != nil {
            logutil.Warnf(a.opts.Logger, "stop %s: %v", t.ID(), err)
        }
    }

    a.mu.Lock()
    for _, t := range tasks {
        a.report(ctx, t.ID(), status.StateKilled, "agent shutdown")
    }
    a.mu.Unlock()
    if err := a.Flush(ctx); err != nil {
        logutil.Warnf(a.opts.Logger, "shutdown: %d status record(s) undelivered: %v", a.reports.Pending(), err)
    }
}

// Flush waits until every status record reported so far has been handed to
// the reporter, or ctx is done.
func (a *Agent) Flush(ctx context.Context) error {
    return a.reports.Flush(ctx)
}

// stopPolls cancels every outstanding poll. Callers hold a.mu.
func (a *Agent) stopPolls() {
    for sig, h := range a.polls {
        if h.Stop() {
            logutil.Infof(a.opts.Logger, "cancelled %s poll after %d tick(s)", sig, h.Ticks())
        }
        delete(a.polls, sig)
    }
}

// report queues exactly one status record. Delivery happens off the lock
// and outlives ctx; errors are logged and absorbed. Callers hold a.mu so
// records leave in transition order.
func (a *Agent) report(ctx context.Context, id task.ID, st status.State, msg string) {
    obsmetrics.StatusReports.WithLabelValues(string(st)).Inc()
    _ = a.reports.Report(ctx, status.NewUpdate(id.String(), st, msg))
}

func (a *Agent) logf(format string, args ...any) {
    logutil.Debugf(a.opts.Logger, format, args...)
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
    a.mu.Lock(); defer a.mu.Unlock()
    return a.state
}

// PollInfo describes an outstanding poll.
type PollInfo struct {
    Signal task.Signal `json:"signal"`
    Check  string      `json:"check"`
    Ticks  int         `json:"ticks"`
}

// Snapshot is a JSON-serializable view of the agent.
type Snapshot struct {
    State       State       `json:"state"`
    Discovery   bool        `json:"discovery"`
    Initialized bool        `json:"initialized"`
    Tasks       []task.Info `json:"tasks"`
    Polls       []PollInfo  `json:"polls,omitempty"`
}

// Snapshot returns the current view of the agent.
func (a *Agent) Snapshot() Snapshot {
    a.mu.Lock()
    defer a.mu.Unlock()
    s := Snapshot{State: a.state, Discovery: a.opts.Discovery, Initialized: a.initStarted, Tasks: []task.Info{}}
    for _, t := range a.reg.Tasks() {
        s.Tasks = append(s.Tasks, t.Info())
    }
    for sig, h := range a.polls {
        s.Polls = append(s.Polls, PollInfo{Signal: sig, Check: h.Check().Name(), Ticks: h.Ticks()})
    }
    sort.Slice(s.Polls, func(i, j int) bool { return s.Polls[i].Signal < s.Polls[j].Signal })
    return s
}

// StatusJSON encodes Snapshot for the control endpoints.
func (a *Agent) StatusJSON(context.Context) ([]byte, error) {
    return json.Marshal(a.Snapshot())
}
