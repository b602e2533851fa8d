package task

import (
    "encoding/json"
    "fmt"
    "strconv"
    "strings"
    "time"
)

// Role tags a task with the service it runs on the node.
type Role string

const (
    // RoleJournal is a member of the write-ahead log quorum.
    RoleJournal Role = "journalnode"
    // RoleMetadata is the metadata (name) node.
    RoleMetadata Role = "namenode"
    // RoleFailover is the failover controller paired with the metadata node.
    RoleFailover Role = "zkfc"
)

// Roles lists every role in launch order.
var Roles = []Role{RoleJournal, RoleMetadata, RoleFailover}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
    switch r {
    case RoleJournal, RoleMetadata, RoleFailover:
        return true
    }
    return false
}

// Host returns the discovery hostname of the role's index-th instance:
// {role}{index}.{namespace}.{domain}.
func (r Role) Host(index int, namespace, domain string) string {
    return string(r) + strconv.Itoa(index) + "." + namespace + "." + domain
}

// ID is a structured task identifier. Its textual form is
// "<role>.<index>" optionally followed by ".<suffix>" (the orchestrator
// usually appends a timestamp to keep IDs unique across relaunches).
type ID struct {
    Role   Role
    Index  int
    Suffix string
}

// ParseID parses the textual form of a task identifier.
func ParseID(s string) (ID, error) {
    parts := strings.SplitN(strings.TrimSpace(s), ".", 3)
    if len(parts) < 2 || parts[0] == "" {
        return ID{}, fmt.Errorf("%w: %q", ErrMalformedID, s)
    }
    role := Role(parts[0])
    if !role.Valid() {
        return ID{}, fmt.Errorf("%w: %q", ErrUnknownRole, parts[0])
    }
    idx, err := strconv.Atoi(parts[1])
    if err != nil || idx <= 0 {
        return ID{}, fmt.Errorf("%w: bad index in %q", ErrMalformedID, s)
    }
    id := ID{Role: role, Index: idx}
    if len(parts) == 3 {
        if parts[2] == "" { return ID{}, fmt.Errorf("%w: empty suffix in %q", ErrMalformedID, s) }
        id.Suffix = parts[2]
    }
    return id, nil
}

func (id ID) String() string {
    s := string(id.Role) + "." + strconv.Itoa(id.Index)
    if id.Suffix != "" {
        s += "." + id.Suffix
    }
    return s
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == ID{} }

func (id ID) MarshalText() ([]byte, error) {
    if id.IsZero() { return []byte{}, nil }
    return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
    if len(b) == 0 { *id = ID{}; return nil }
    v, err := ParseID(string(b))
    if err != nil { return err }
    *id = v
    return nil
}

// Descriptor is the orchestrator-supplied description of a task.
type Descriptor struct {
    ID        ID                `json:"id"`
    Command   string            `json:"command"`
    Resources map[string]string `json:"resources,omitempty"`
}

// Process is a running OS process owned by a Task.
type Process interface {
    Pid() int
    // Done is closed once the process has exited.
    Done() <-chan struct{}
    // Terminate asks the process to stop and escalates after grace.
    Terminate(grace time.Duration) error
}

// Task is a registered descriptor together with the process running it, if
// any. A Task is not safe for concurrent use; the owner serializes access.
type Task struct {
    Descriptor Descriptor
    LaunchedAt time.Time
    proc       Process
}

// New wraps a descriptor in an unstarted Task.
func New(d Descriptor) *Task { return &Task{Descriptor: d, LaunchedAt: time.Now()} }

func (t *Task) ID() ID     { return t.Descriptor.ID }
func (t *Task) Role() Role { return t.Descriptor.ID.Role }

// Process returns the running process or nil.
func (t *Task) Process() Process { return t.proc }

// Running reports whether a process handle is set.
func (t *Task) Running() bool { return t.proc != nil }

// SetProcess stores p as the task's handle.
func (t *Task) SetProcess(p Process) { t.proc = p }

// ClearProcess removes and returns the handle.
func (t *Task) ClearProcess() Process {
    p := t.proc
    t.proc = nil
    return p
}

// Info is a serializable view of a Task.
type Info struct {
    ID         string    `json:"id"`
    Role       Role      `json:"role"`
    Command    string    `json:"command"`
    Pid        int       `json:"pid,omitempty"`
    Running    bool      `json:"running"`
    LaunchedAt time.Time `json:"launchedAt"`
}

func (t *Task) Info() Info {
    in := Info{ID: t.ID().String(), Role: t.Role(), Command: t.Descriptor.Command, Running: t.Running(), LaunchedAt: t.LaunchedAt}
    if t.proc != nil { in.Pid = t.proc.Pid() }
    return in
}

// Signal is a message from the orchestrator asking the metadata node to
// initialize or bootstrap.
type Signal int

const (
    SignalInit Signal = iota + 1
    SignalBootstrap
)

// Wire literals of the signals, also passed to the one-shot command.
const (
    InitMessage      = "-i"
    BootstrapMessage = "-b"
)

// ParseSignal maps a raw payload to a Signal. Unknown payloads return false.
func ParseSignal(payload []byte) (Signal, bool) {
    switch string(payload) {
    case InitMessage:
        return SignalInit, true
    case BootstrapMessage:
        return SignalBootstrap, true
    }
    return 0, false
}

// Literal returns the wire form of s.
func (s Signal) Literal() string {
    switch s {
    case SignalInit:
        return InitMessage
    case SignalBootstrap:
        return BootstrapMessage
    }
    return ""
}

func (s Signal) String() string {
    switch s {
    case SignalInit:
        return "init"
    case SignalBootstrap:
        return "bootstrap"
    }
    return "unknown"
}

func (s Signal) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }
