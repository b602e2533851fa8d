// Package status defines the task status records sent back to the
// orchestrator and the Reporter contract used to deliver them.
package status

import (
    "context"
    "log"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
)

// State is the orchestrator-visible state of a task.
type State string

const (
    StateRunning State = "TASK_RUNNING"
    StateFailed  State = "TASK_FAILED"
    StateKilled  State = "TASK_KILLED"
)

// Update is one status record.
type Update struct {
    UUID      string    `json:"uuid"`
    TaskID    string    `json:"taskId"`
    State     State     `json:"state"`
    Message   string    `json:"message,omitempty"`
    Timestamp time.Time `json:"timestamp"`
}

// NewUpdate stamps a record with a fresh UUID and the current time.
func NewUpdate(taskID string, state State, message string) Update {
    return Update{UUID: uuid.NewString(), TaskID: taskID, State: state, Message: message, Timestamp: time.Now().UTC()}
}

// Reporter delivers status records to the orchestrator. Every call sends
// exactly one record; implementations must not batch or drop.
type Reporter interface {
    Report(ctx context.Context, u Update) error
}

// LogReporter only logs updates. It is used when no orchestrator endpoint
// is configured.
type LogReporter struct {
    Logger *log.Logger
}

func (r LogReporter) Report(_ context.Context, u Update) error {
    if u.Message != "" {
        logutil.Infof(r.Logger, "status update: task=%s state=%s message=%q", u.TaskID, u.State, u.Message)
    } else {
        logutil.Infof(r.Logger, "status update: task=%s state=%s", u.TaskID, u.State)
    }
    return nil
}

// Recorder keeps every update in memory, in order.
type Recorder struct {
    mu      sync.Mutex
    updates []Update
}

func (r *Recorder) Report(_ context.Context, u Update) error {
    r.mu.Lock()
    r.updates = append(r.updates, u)
    r.mu.Unlock()
    return nil
}

// Updates returns a copy of the recorded updates.
func (r *Recorder) Updates() []Update {
    r.mu.Lock(); defer r.mu.Unlock()
    return append([]Update(nil), r.updates...)
}

// For returns the updates recorded for taskID.
func (r *Recorder) For(taskID string) []Update {
    r.mu.Lock(); defer r.mu.Unlock()
    var out []Update
    for _, u := range r.updates {
        if u.TaskID == taskID { out = append(out, u) }
    }
    return out
}

// Len returns the number of recorded updates.
func (r *Recorder) Len() int {
    r.mu.Lock(); defer r.mu.Unlock()
    return len(r.updates)
}

var (
    _ Reporter = LogReporter{}
    _ Reporter = (*Recorder)(nil)
)
