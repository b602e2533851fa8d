// Package process starts, tracks and terminates the OS processes backing
// the node's tasks, and runs the synchronous one-shot commands (format,
// bootstrap) that prepare them.
package process

import (
    "context"
    "errors"
    "fmt"
    "io"
    "log"
    "os"
    "os/exec"
    "strings"
    "sync/atomic"
    "time"

    "github.com/google/shlex"

    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-nnagent/pkg/observability/metrics"
    "github.com/amirimatin/go-nnagent/pkg/task"
)

var ErrEmptyCommand = errors.New("process: empty command")

// ExitError reports a one-shot command that ran but exited non-zero.
type ExitError struct {
    Command string
    Code    int
    Output  string
}

func (e *ExitError) Error() string {
    if e.Output == "" {
        return fmt.Sprintf("process: %q exited with status %d", e.Command, e.Code)
    }
    return fmt.Sprintf("process: %q exited with status %d: %s", e.Command, e.Code, e.Output)
}

// Options configures a Supervisor.
type Options struct {
    // Shell runs command strings as `Shell -c <command>`. Defaults to /bin/sh.
    Shell string
    // Direct skips the shell: commands are split with shell quoting rules
    // and executed as argv.
    Direct bool
    // Dir is the working directory of spawned processes (the sandbox).
    Dir string
    // Env is appended to the agent's environment.
    Env []string
    // StopTimeout is the grace period between SIGTERM and SIGKILL. Default 10s.
    StopTimeout time.Duration
    // RunTimeout bounds one-shot commands when positive.
    RunTimeout time.Duration
    // Stdout/Stderr receive service process output. Default: the agent's.
    Stdout io.Writer
    Stderr io.Writer
    Logger *log.Logger
    // OnExit is called when a service process exits without being stopped
    // through Stop.
    OnExit func(id task.ID, p task.Process, err error)
}

// Supervisor implements the agent's process boundary.
type Supervisor struct {
    opts Options
}

func New(opts Options) *Supervisor {
    if opts.Shell == "" { opts.Shell = "/bin/sh" }
    if opts.StopTimeout <= 0 { opts.StopTimeout = 10 * time.Second }
    if opts.Stdout == nil { opts.Stdout = os.Stdout }
    if opts.Stderr == nil { opts.Stderr = os.Stderr }
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &Supervisor{opts: opts}
}

// SetOnExit replaces the exit callback. Call before the first Start.
func (s *Supervisor) SetOnExit(fn func(id task.ID, p task.Process, err error)) { s.opts.OnExit = fn }

// Handle is a running service process. It implements task.Process.
type Handle struct {
    id       task.ID
    cmd      *exec.Cmd
    started  time.Time
    done     chan struct{}
    err      error
    stopping atomic.Bool
}

func (h *Handle) Pid() int {
    if h.cmd == nil || h.cmd.Process == nil { return 0 }
    return h.cmd.Process.Pid
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the wait error once Done is closed.
func (h *Handle) Err() error {
    select {
    case <-h.done:
        return h.err
    default:
        return nil
    }
}

// Terminate sends SIGTERM to the process group and SIGKILL once grace
// elapses. It returns after the process has exited.
func (h *Handle) Terminate(grace time.Duration) error {
    select {
    case <-h.done:
        return nil
    default:
    }
    h.stopping.Store(true)
    if err := terminate(h.cmd); err != nil {
        return fmt.Errorf("process: terminate %s: %w", h.id, err)
    }
    select {
    case <-h.done:
        return nil
    case <-time.After(grace):
    }
    kill(h.cmd)
    <-h.done
    return nil
}

// Start spawns the task's command unless a process is already set.
func (s *Supervisor) Start(t *task.Task) error {
    if t.Running() {
        logutil.Debugf(s.opts.Logger, "process for %s already running (pid %d)", t.ID(), t.Process().Pid())
        return nil
    }
    cmd, err := s.command(context.Background(), t.Descriptor.Command)
    if err != nil { return fmt.Errorf("process: start %s: %w", t.ID(), err) }
    cmd.Stdout = s.opts.Stdout
    cmd.Stderr = s.opts.Stderr
    if err := cmd.Start(); err != nil {
        return fmt.Errorf("process: start %s: %w", t.ID(), err)
    }
    h := &Handle{id: t.ID(), cmd: cmd, started: time.Now(), done: make(chan struct{})}
    t.SetProcess(h)
    obsmetrics.ProcessesRunning.Inc()
    logutil.Infof(s.opts.Logger, "started %s (pid %d): %s", t.ID(), h.Pid(), t.Descriptor.Command)
    go s.wait(h)
    return nil
}

func (s *Supervisor) wait(h *Handle) {
    err := h.cmd.Wait()
    h.err = err
    close(h.done)
    obsmetrics.ProcessesRunning.Dec()
    if h.stopping.Load() {
        obsmetrics.ProcessExits.WithLabelValues(string(h.id.Role), "stopped").Inc()
        logutil.Infof(s.opts.Logger, "%s stopped after %s", h.id, time.Since(h.started).Round(time.Millisecond))
        return
    }
    obsmetrics.ProcessExits.WithLabelValues(string(h.id.Role), "exited").Inc()
    logutil.Warnf(s.opts.Logger, "%s exited on its own: %v", h.id, err)
    if s.opts.OnExit != nil {
        s.opts.OnExit(h.id, h, err)
    }
}

// RunOnce runs command to completion and reports whether it succeeded.
func (s *Supervisor) RunOnce(ctx context.Context, command string) error {
    if s.opts.RunTimeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
        defer cancel()
    }
    cmd, err := s.command(ctx, command)
    if err != nil {
        obsmetrics.Commands.WithLabelValues("error").Inc()
        return err
    }
    cmd.Cancel = func() error { kill(cmd); return nil }
    cmd.WaitDelay = time.Second
    logutil.Infof(s.opts.Logger, "running %q", command)
    out, err := cmd.CombinedOutput()
    output := strings.TrimSpace(string(out))
    if output != "" {
        logutil.Debugf(s.opts.Logger, "output of %q:\n%s", command, output)
    }
    if err != nil {
        obsmetrics.Commands.WithLabelValues("error").Inc()
        var ee *exec.ExitError
        if errors.As(err, &ee) && ctx.Err() == nil {
            return &ExitError{Command: command, Code: ee.ExitCode(), Output: lastLine(output)}
        }
        if ctx.Err() != nil {
            return fmt.Errorf("process: run %q: %w", command, ctx.Err())
        }
        return fmt.Errorf("process: run %q: %w", command, err)
    }
    obsmetrics.Commands.WithLabelValues("ok").Inc()
    logutil.Infof(s.opts.Logger, "%q finished", command)
    return nil
}

// Stop clears the task's process handle and terminates the process. It is
// a no-op when nothing is running.
func (s *Supervisor) Stop(t *task.Task) error {
    p := t.ClearProcess()
    if p == nil {
        return nil
    }
    logutil.Infof(s.opts.Logger, "stopping %s (pid %d)", t.ID(), p.Pid())
    return p.Terminate(s.opts.StopTimeout)
}

func (s *Supervisor) command(ctx context.Context, line string) (*exec.Cmd, error) {
    line = strings.TrimSpace(line)
    if line == "" { return nil, ErrEmptyCommand }
    var cmd *exec.Cmd
    if s.opts.Direct {
        args, err := shlex.Split(line)
        if err != nil { return nil, fmt.Errorf("process: parse %q: %w", line, err) }
        if len(args) == 0 { return nil, ErrEmptyCommand }
        cmd = exec.CommandContext(ctx, args[0], args[1:]...)
    } else {
        cmd = exec.CommandContext(ctx, s.opts.Shell, "-c", line)
    }
    cmd.Dir = s.opts.Dir
    if len(s.opts.Env) > 0 {
        cmd.Env = append(os.Environ(), s.opts.Env...)
    }
    configureProcess(cmd)
    return cmd, nil
}

func lastLine(s string) string {
    if i := strings.LastIndexByte(s, '\n'); i >= 0 {
        return s[i+1:]
    }
    return s
}

var _ task.Process = (*Handle)(nil)
