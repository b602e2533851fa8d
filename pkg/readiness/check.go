package readiness

import (
    "context"
    "errors"
    "fmt"
    "log"
    "net"
    "strconv"
    "time"

    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
    "github.com/amirimatin/go-nnagent/pkg/task"
)

// Check is one readiness policy: an ordered list of targets that must all
// pass Probe within a single tick.
type Check interface {
    Name() string
    Targets() []string
    Probe(ctx context.Context, target string) error
}

// Dialer is the subset of net.Dialer used by QuorumHealthCheck.
type Dialer interface {
    DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// QuorumHealthCheck verifies that every journal quorum member accepts TCP
// connections on its health port.
type QuorumHealthCheck struct {
    Count     int
    Namespace string
    Domain    string
    Port      int
    Dialer    Dialer
}

func (c QuorumHealthCheck) Name() string { return "quorum-health" }

// Targets lists host:port for index Count down to 1.
func (c QuorumHealthCheck) Targets() []string {
    out := make([]string, 0, c.Count)
    for i := c.Count; i > 0; i-- {
        out = append(out, net.JoinHostPort(task.RoleJournal.Host(i, c.Namespace, c.Domain), strconv.Itoa(c.Port)))
    }
    return out
}

func (c QuorumHealthCheck) Probe(ctx context.Context, target string) error {
    d := c.Dialer
    if d == nil { d = &net.Dialer{} }
    conn, err := d.DialContext(ctx, "tcp", target)
    if err != nil { return err }
    return conn.Close()
}

// Resolver resolves hostnames. *net.Resolver satisfies it.
type Resolver interface {
    LookupHost(ctx context.Context, host string) ([]string, error)
}

// PeerResolutionCheck verifies that every metadata peer hostname resolves.
type PeerResolutionCheck struct {
    Count     int
    Namespace string
    Domain    string
    Resolver  Resolver
}

func (c PeerResolutionCheck) Name() string { return "peer-resolution" }

// Targets lists the peer hostnames for index Count down to 1.
func (c PeerResolutionCheck) Targets() []string {
    out := make([]string, 0, c.Count)
    for i := c.Count; i > 0; i-- {
        out = append(out, task.RoleMetadata.Host(i, c.Namespace, c.Domain))
    }
    return out
}

var errNoAddresses = errors.New("no addresses")

func (c PeerResolutionCheck) Probe(ctx context.Context, target string) error {
    r := c.Resolver
    if r == nil { r = net.DefaultResolver }
    addrs, err := r.LookupHost(ctx, target)
    if err != nil { return err }
    if len(addrs) == 0 { return errNoAddresses }
    return nil
}

// Evaluate probes the targets of c in order, each bounded by timeout, and
// stops at the first failure. It returns whether all targets passed and the
// target that failed otherwise. Probe errors of any kind mean "not ready".
func Evaluate(ctx context.Context, c Check, timeout time.Duration, logger *log.Logger) (ok bool, failed string) {
    for _, target := range c.Targets() {
        logutil.Debugf(logger, "checking for %s", target)
        if err := probe(ctx, c, target, timeout); err != nil {
            logutil.Infof(logger, "%s: %s not ready: %v", c.Name(), target, err)
            return false, target
        }
        logutil.Debugf(logger, "%s: found %s", c.Name(), target)
    }
    return true, ""
}

func probe(ctx context.Context, c Check, target string, timeout time.Duration) (err error) {
    defer func() {
        if r := recover(); r != nil {
            err = fmt.Errorf("probe panicked: %v", r)
        }
    }()
    if timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, timeout)
        defer cancel()
    }
    return c.Probe(ctx, target)
}

var (
    _ Check    = QuorumHealthCheck{}
    _ Check    = PeerResolutionCheck{}
    _ Resolver = (*net.Resolver)(nil)
)
