package bootstrap

import (
    "context"
    "fmt"
    "log"
    "net"

    "github.com/amirimatin/go-nnagent/pkg/agent"
    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
    "github.com/amirimatin/go-nnagent/pkg/process"
    "github.com/amirimatin/go-nnagent/pkg/readiness"
    "github.com/amirimatin/go-nnagent/pkg/status"
    "github.com/amirimatin/go-nnagent/pkg/transport"
    ctlgrpc "github.com/amirimatin/go-nnagent/pkg/transport/grpc"
    "github.com/amirimatin/go-nnagent/pkg/transport/httpjson"
)

// Build assembles an agent.Agent from Config without starting it.
func Build(cfg Config) (*agent.Agent, error) {
    cfg.ApplyDefaults()
    if err := cfg.Validate(); err != nil { return nil, err }
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    if cfg.LogJSON { logutil.SetJSON(true) }
    if cfg.LogDebug { logutil.SetDebug(true) }
    logger := cfg.Logger

    sup := process.New(process.Options{
        Shell:       cfg.Process.Shell,
        Direct:      cfg.Process.Direct,
        Dir:         cfg.Process.WorkDir,
        Env:         cfg.Process.Env,
        StopTimeout: cfg.Process.StopTimeout,
        RunTimeout:  cfg.Process.RunTimeout,
        Logger:      logger,
    })

    reporter, err := buildReporter(cfg)
    if err != nil { return nil, err }

    quorum, peers := Checks(cfg)
    opts := agent.Options{
        Supervisor: sup,
        Reporter:   reporter,
        Roles:      agent.DefaultRoles(),
        Signals:    agent.DefaultSignals(cfg.NameNodeBinary, quorum, peers),
        DataDir:    cfg.DataDir,
        Discovery:  cfg.Discovery.Enabled,
        Logger:     logger,
    }
    if cfg.Discovery.Enabled {
        opts.Poller = readiness.New(readiness.Options{
            Interval:    cfg.Discovery.PollInterval,
            Timeout:     cfg.Discovery.ProbeTimeout,
            MaxAttempts: cfg.Discovery.MaxPollAttempts,
            Logger:      logger,
        })
    }
    if cfg.Control.Addr != "" {
        srv, err := buildControlServer(cfg)
        if err != nil { return nil, err }
        opts.ControlServer = srv
    }
    return agent.New(opts)
}

// Checks returns the quorum health check used for Init and the peer
// resolution check used for Bootstrap.
func Checks(cfg Config) (readiness.Check, readiness.Check) {
    d := cfg.Discovery
    quorum := readiness.QuorumHealthCheck{
        Count:     d.JournalNodes,
        Namespace: cfg.FrameworkName,
        Domain:    cfg.DNSDomain,
        Port:      d.JournalPort,
        Dialer:    &net.Dialer{},
    }
    var resolver readiness.Resolver = net.DefaultResolver
    if len(d.DNSServers) > 0 {
        resolver = readiness.NewDNSResolver(d.DNSServers, d.ProbeTimeout)
    }
    peers := readiness.PeerResolutionCheck{
        Count:     d.NameNodes,
        Namespace: cfg.FrameworkName,
        Domain:    cfg.DNSDomain,
        Resolver:  resolver,
    }
    return quorum, peers
}

func buildReporter(cfg Config) (status.Reporter, error) {
    o := cfg.Orchestrator
    if o.URL == "" {
        return status.LogReporter{Logger: cfg.Logger}, nil
    }
    r := httpjson.NewReporter(o.URL, o.Timeout, cfg.Logger)
    r.MaxElapsed = o.MaxElapsed
    cliTLS, err := o.TLS.Client()
    if err != nil { return nil, fmt.Errorf("orchestrator tls: %w", err) }
    if cliTLS != nil { r.UseTLS(cliTLS) }
    return r, nil
}

func buildControlServer(cfg Config) (transport.ControlServer, error) {
    srvTLS, err := cfg.Control.TLS.Server()
    if err != nil { return nil, fmt.Errorf("control tls: %w", err) }
    switch cfg.Control.Proto {
    case "grpc":
        s := ctlgrpc.NewServer(cfg.Control.Addr)
        if srvTLS != nil { s.UseTLS(srvTLS) }
        return s, nil
    default:
        s := httpjson.NewServer(cfg.Control.Addr, cfg.Logger)
        if srvTLS != nil { s.UseTLS(srvTLS) }
        return s, nil
    }
}

// Run builds and starts the agent, returning the instance for lifecycle
// control. The caller is responsible for calling Stop when finished.
func Run(ctx context.Context, cfg Config) (*agent.Agent, error) {
    a, err := Build(cfg)
    if err != nil { return nil, err }
    if err := a.Start(ctx); err != nil { return nil, err }
    return a, nil
}
