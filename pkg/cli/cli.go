// Package cli provides the cobra commands of the node agent: "run" starts
// an agent, the others drive a running agent through its control endpoint.
package cli

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "github.com/spf13/pflag"

    "github.com/amirimatin/go-nnagent/pkg/bootstrap"
    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
    "github.com/amirimatin/go-nnagent/pkg/observability/tracing"
    tlsx "github.com/amirimatin/go-nnagent/pkg/security/tlsconfig"
    "github.com/amirimatin/go-nnagent/pkg/task"
    "github.com/amirimatin/go-nnagent/pkg/transport"
    ctlgrpc "github.com/amirimatin/go-nnagent/pkg/transport/grpc"
    "github.com/amirimatin/go-nnagent/pkg/transport/httpjson"
)

// AddAll attaches the agent subcommands to the provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewLaunchCmd())
    root.AddCommand(NewKillCmd())
    root.AddCommand(NewSignalCmd())
}

// runFlags are the "run" flags that override the config file when set.
type runFlags struct {
    configPath      string
    framework       string
    domain          string
    dataDir         string
    nameNodeBin     string
    discovery       bool
    journalNodes    int
    journalPort     int
    nameNodes       int
    dnsServers      []string
    pollInterval    time.Duration
    maxPollAttempts int
    controlAddr     string
    controlProto    string
    orchestratorURL string
    logJSON         bool
    debug           bool
    trace           bool
    tls             tlsFlags
}

// config loads the config file, if any, and applies the flags that were
// set explicitly on the command line.
func (f *runFlags) config(fs *pflag.FlagSet) (bootstrap.Config, error) {
    cfg := bootstrap.Defaults()
    if f.configPath != "" {
        var err error
        if cfg, err = bootstrap.LoadFile(f.configPath); err != nil { return cfg, err }
    }
    set := func(name string, apply func()) {
        if fs.Changed(name) { apply() }
    }
    set("framework", func() { cfg.FrameworkName = f.framework })
    set("domain", func() { cfg.DNSDomain = f.domain })
    set("data-dir", func() { cfg.DataDir = f.dataDir })
    set("namenode-bin", func() { cfg.NameNodeBinary = f.nameNodeBin })
    set("discovery", func() { cfg.Discovery.Enabled = f.discovery })
    set("journal-nodes", func() { cfg.Discovery.JournalNodes = f.journalNodes })
    set("journal-port", func() { cfg.Discovery.JournalPort = f.journalPort })
    set("name-nodes", func() { cfg.Discovery.NameNodes = f.nameNodes })
    set("dns-server", func() { cfg.Discovery.DNSServers = f.dnsServers })
    set("poll-interval", func() { cfg.Discovery.PollInterval = f.pollInterval })
    set("max-poll-attempts", func() { cfg.Discovery.MaxPollAttempts = f.maxPollAttempts })
    set("control-addr", func() { cfg.Control.Addr = f.controlAddr })
    set("control-proto", func() { cfg.Control.Proto = f.controlProto })
    set("orchestrator-url", func() { cfg.Orchestrator.URL = f.orchestratorURL })
    set("log-json", func() { cfg.LogJSON = f.logJSON })
    set("debug", func() { cfg.LogDebug = f.debug })
    set("trace", func() { cfg.Tracing = f.trace })
    if f.tls.enable { cfg.Control.TLS = f.tls.options() }
    return cfg, cfg.Validate()
}

// NewRunCmd returns the "run" command used to start the agent.
func NewRunCmd() *cobra.Command { return newRunCmd(&runFlags{}) }

func newRunCmd(f *runFlags) *cobra.Command {
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run the node agent",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, err := f.config(cmd.Flags())
            if err != nil { return err }
            cfg.Logger = log.New(os.Stderr, "[nnagent] ", log.LstdFlags)

            ctx, cancel := signalContext()
            defer cancel()

            if cfg.Tracing {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    logutil.Warnf(cfg.Logger, "tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            a, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            logutil.Infof(cfg.Logger, "agent running (discovery=%t, data dir %s). Press Ctrl+C to exit.", cfg.Discovery.Enabled, cfg.DataDir)
            <-ctx.Done()
            sctx, scancel := context.WithTimeout(context.Background(), 30*time.Second)
            defer scancel()
            return a.Stop(sctx)
        },
    }
    d := bootstrap.Defaults()
    fl := cmd.Flags()
    fl.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
    fl.StringVar(&f.framework, "framework", d.FrameworkName, "framework name, the discovery namespace")
    fl.StringVar(&f.domain, "domain", d.DNSDomain, "discovery DNS domain")
    fl.StringVar(&f.dataDir, "data-dir", d.DataDir, "data directory of the name node")
    fl.StringVar(&f.nameNodeBin, "namenode-bin", d.NameNodeBinary, "binary running the init/bootstrap steps")
    fl.BoolVar(&f.discovery, "discovery", false, "wait for peers to be discoverable before initializing")
    fl.IntVar(&f.journalNodes, "journal-nodes", d.Discovery.JournalNodes, "journal quorum size")
    fl.IntVar(&f.journalPort, "journal-port", d.Discovery.JournalPort, "journal node health port")
    fl.IntVar(&f.nameNodes, "name-nodes", d.Discovery.NameNodes, "number of name nodes")
    fl.StringSliceVar(&f.dnsServers, "dns-server", nil, "DNS server to query for peers (repeatable); default system resolver")
    fl.DurationVar(&f.pollInterval, "poll-interval", d.Discovery.PollInterval, "delay between readiness checks")
    fl.IntVar(&f.maxPollAttempts, "max-poll-attempts", 0, "give up after this many readiness checks (0 = never)")
    fl.StringVar(&f.controlAddr, "control-addr", "", "control endpoint address (host:port); empty disables it")
    fl.StringVar(&f.controlProto, "control-proto", d.Control.Proto, "control protocol: http|grpc")
    fl.StringVar(&f.orchestratorURL, "orchestrator-url", "", "URL receiving status updates; empty only logs them")
    fl.BoolVar(&f.logJSON, "log-json", false, "write JSON log lines")
    fl.BoolVar(&f.debug, "debug", false, "enable debug logging")
    fl.BoolVar(&f.trace, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    f.tls.register(fl, "node")
    return cmd
}

// tlsFlags are the TLS settings shared by every command.
type tlsFlags struct {
    enable, skip                  bool
    ca, cert, key, serverName     string
}

func (t *tlsFlags) register(fl *pflag.FlagSet, who string) {
    fl.BoolVar(&t.enable, "tls-enable", false, "enable TLS for the control endpoint")
    fl.StringVar(&t.ca, "tls-ca", "", "path to CA cert (PEM)")
    fl.StringVar(&t.cert, "tls-cert", "", "path to "+who+" certificate (PEM)")
    fl.StringVar(&t.key, "tls-key", "", "path to "+who+" private key (PEM)")
    fl.BoolVar(&t.skip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    fl.StringVar(&t.serverName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (t *tlsFlags) options() tlsx.Options {
    return tlsx.Options{Enable: t.enable, CAFile: t.ca, CertFile: t.cert, KeyFile: t.key, InsecureSkipVerify: t.skip, ServerName: t.serverName}
}

// clientFlags select and configure the control client.
type clientFlags struct {
    addr    string
    proto   string
    timeout time.Duration
    tls     tlsFlags
}

func (c *clientFlags) register(cmd *cobra.Command) {
    fl := cmd.Flags()
    fl.StringVar(&c.addr, "addr", "127.0.0.1:8475", "control address of an agent (host:port)")
    fl.StringVar(&c.proto, "proto", "http", "control protocol: http|grpc")
    fl.DurationVar(&c.timeout, "timeout", 3*time.Second, "request timeout")
    c.tls.register(fl, "client")
}

func (c *clientFlags) client() (transport.ControlClient, error) {
    cliTLS, err := c.tls.options().Client()
    if err != nil { return nil, fmt.Errorf("tls client config: %w", err) }
    switch c.proto {
    case "grpc":
        cli := ctlgrpc.NewClient(c.timeout)
        if cliTLS != nil { cli.UseTLS(cliTLS) }
        return cli, nil
    case "http", "":
        cli := httpjson.NewClient(c.timeout)
        if cliTLS != nil { cli.UseTLS(cliTLS) }
        return cli, nil
    }
    return nil, fmt.Errorf("unknown protocol %q", c.proto)
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var c clientFlags
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch the agent snapshot as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := c.client()
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
            defer cancel()
            data, err := client.GetStatus(ctx, c.addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            out := cmd.OutOrStdout()
            _, _ = out.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { _, _ = out.Write([]byte("\n")) }
            return nil
        },
    }
    c.register(cmd)
    return cmd
}

// NewLaunchCmd returns the "launch" command.
func NewLaunchCmd() *cobra.Command {
    var (
        c         clientFlags
        id        string
        command   string
        resources map[string]string
    )
    cmd := &cobra.Command{
        Use:   "launch",
        Short: "Launch a task on the agent",
        RunE: func(cmd *cobra.Command, args []string) error {
            if _, err := task.ParseID(id); err != nil { return err }
            client, err := c.client()
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
            defer cancel()
            ack, err := client.Launch(ctx, c.addr, transport.LaunchRequest{ID: id, Command: command, Resources: resources})
            if err != nil { return fmt.Errorf("launch error: %w", err) }
            return printAck(cmd.OutOrStdout(), ack)
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "task id, e.g. journalnode.1 (required)")
    cmd.Flags().StringVar(&command, "command", "", "command running the task's service")
    cmd.Flags().StringToStringVar(&resources, "resource", nil, "task resource key=value (repeatable)")
    _ = cmd.MarkFlagRequired("id")
    c.register(cmd)
    return cmd
}

// NewKillCmd returns the "kill" command.
func NewKillCmd() *cobra.Command {
    var (
        c  clientFlags
        id string
    )
    cmd := &cobra.Command{
        Use:   "kill",
        Short: "Kill a task on the agent",
        RunE: func(cmd *cobra.Command, args []string) error {
            if _, err := task.ParseID(id); err != nil { return err }
            client, err := c.client()
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
            defer cancel()
            ack, err := client.Kill(ctx, c.addr, transport.KillRequest{ID: id})
            if err != nil { return fmt.Errorf("kill error: %w", err) }
            return printAck(cmd.OutOrStdout(), ack)
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "task id (required)")
    _ = cmd.MarkFlagRequired("id")
    c.register(cmd)
    return cmd
}

// NewSignalCmd returns the "signal" command.
func NewSignalCmd() *cobra.Command {
    var c clientFlags
    cmd := &cobra.Command{
        Use:       "signal init|bootstrap",
        Short:     "Send the init or bootstrap message to the metadata node",
        Args:      cobra.ExactArgs(1),
        ValidArgs: []string{"init", "bootstrap"},
        RunE: func(cmd *cobra.Command, args []string) error {
            msg, err := signalMessage(args[0])
            if err != nil { return err }
            client, err := c.client()
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
            defer cancel()
            ack, err := client.Signal(ctx, c.addr, transport.SignalRequest{Message: msg})
            if err != nil { return fmt.Errorf("signal error: %w", err) }
            return printAck(cmd.OutOrStdout(), ack)
        },
    }
    c.register(cmd)
    return cmd
}

func signalMessage(arg string) (string, error) {
    switch arg {
    case "init", task.InitMessage:
        return task.InitMessage, nil
    case "bootstrap", task.BootstrapMessage:
        return task.BootstrapMessage, nil
    }
    return "", fmt.Errorf("unknown signal %q (want init or bootstrap)", arg)
}

// printAck writes ack as JSON and turns a refused request into an error.
func printAck(w io.Writer, ack transport.Ack) error {
    if err := json.NewEncoder(w).Encode(ack); err != nil { return err }
    if !ack.Accepted && !ack.Ignored {
        return fmt.Errorf("request refused: %s", ack.Error)
    }
    return nil
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
