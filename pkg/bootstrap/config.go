package bootstrap

import (
    "bytes"
    "errors"
    "fmt"
    "io"
    "log"
    "os"
    "time"

    "gopkg.in/yaml.v3"

    tlsx "github.com/amirimatin/go-nnagent/pkg/security/tlsconfig"
)

// Config defines the inputs needed to assemble a node agent. It is usually
// loaded from a YAML file and overridden by command-line flags.
type Config struct {
    // FrameworkName is the discovery namespace: hosts are named
    // {role}{index}.{frameworkName}.{dnsDomain}.
    FrameworkName string `yaml:"frameworkName"`
    DNSDomain     string `yaml:"dnsDomain"`
    // DataDir holds the metadata node's "name" directory.
    DataDir string `yaml:"dataDir"`
    // NameNodeBinary runs the one-shot init/bootstrap steps.
    NameNodeBinary string `yaml:"nameNodeBinary"`

    Discovery    DiscoveryConfig    `yaml:"discovery"`
    Process      ProcessConfig      `yaml:"process"`
    Control      ControlConfig      `yaml:"control"`
    Orchestrator OrchestratorConfig `yaml:"orchestrator"`

    LogJSON  bool `yaml:"logJson"`
    LogDebug bool `yaml:"logDebug"`
    Tracing  bool `yaml:"tracing"`

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger `yaml:"-"`
}

// DiscoveryConfig controls the readiness polls gating initialization.
type DiscoveryConfig struct {
    Enabled      bool `yaml:"enabled"`
    JournalNodes int  `yaml:"journalNodes"`
    JournalPort  int  `yaml:"journalPort"`
    NameNodes    int  `yaml:"nameNodes"`
    // DNSServers are queried directly for peer names. Empty uses the
    // system resolver.
    DNSServers      []string      `yaml:"dnsServers"`
    PollInterval    time.Duration `yaml:"pollInterval"`
    ProbeTimeout    time.Duration `yaml:"probeTimeout"`
    MaxPollAttempts int           `yaml:"maxPollAttempts"`
}

// ProcessConfig controls how service processes and one-shot commands run.
type ProcessConfig struct {
    Shell string `yaml:"shell"`
    // Direct splits commands into arguments instead of using the shell.
    Direct      bool          `yaml:"direct"`
    WorkDir     string        `yaml:"workDir"`
    Env         []string      `yaml:"env"`
    StopTimeout time.Duration `yaml:"stopTimeout"`
    RunTimeout  time.Duration `yaml:"runTimeout"`
}

// ControlConfig configures the inbound control endpoint.
type ControlConfig struct {
    // Addr is host:port; empty disables the endpoint.
    Addr  string       `yaml:"addr"`
    Proto string       `yaml:"proto"` // "http" (default) or "grpc"
    TLS   tlsx.Options `yaml:"tls"`
}

// OrchestratorConfig configures where status records are sent. An empty
// URL only logs them.
type OrchestratorConfig struct {
    URL        string        `yaml:"url"`
    Timeout    time.Duration `yaml:"timeout"`
    MaxElapsed time.Duration `yaml:"maxElapsed"`
    TLS        tlsx.Options  `yaml:"tls"`
}

// Defaults returns the configuration of a stock HDFS deployment.
func Defaults() Config {
    c := Config{}
    c.ApplyDefaults()
    return c
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
    if c.FrameworkName == "" { c.FrameworkName = "hdfs" }
    if c.DNSDomain == "" { c.DNSDomain = "mesos" }
    if c.DataDir == "" { c.DataDir = "/var/lib/hdfs/data" }
    if c.NameNodeBinary == "" { c.NameNodeBinary = "bin/hdfs-mesos-namenode" }
    d := &c.Discovery
    if d.JournalNodes == 0 { d.JournalNodes = 3 }
    if d.JournalPort == 0 { d.JournalPort = 8485 }
    if d.NameNodes == 0 { d.NameNodes = 2 }
    if d.PollInterval == 0 { d.PollInterval = 15 * time.Second }
    if d.ProbeTimeout == 0 { d.ProbeTimeout = 5 * time.Second }
    p := &c.Process
    if p.Shell == "" { p.Shell = "/bin/sh" }
    if p.StopTimeout == 0 { p.StopTimeout = 10 * time.Second }
    if c.Control.Proto == "" { c.Control.Proto = "http" }
    o := &c.Orchestrator
    if o.Timeout == 0 { o.Timeout = 5 * time.Second }
    if o.MaxElapsed == 0 { o.MaxElapsed = 30 * time.Second }
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
    if c.FrameworkName == "" || c.DNSDomain == "" {
        return errors.New("config: frameworkName and dnsDomain are required")
    }
    if c.DataDir == "" {
        return errors.New("config: dataDir is required")
    }
    if c.NameNodeBinary == "" {
        return errors.New("config: nameNodeBinary is required")
    }
    d := c.Discovery
    if d.JournalNodes < 1 || d.NameNodes < 1 {
        return fmt.Errorf("config: discovery needs at least one journal node and name node (got %d, %d)", d.JournalNodes, d.NameNodes)
    }
    if d.JournalPort < 1 || d.JournalPort > 65535 {
        return fmt.Errorf("config: invalid journalPort %d", d.JournalPort)
    }
    if d.PollInterval <= 0 || d.ProbeTimeout <= 0 {
        return errors.New("config: pollInterval and probeTimeout must be positive")
    }
    if d.MaxPollAttempts < 0 {
        return errors.New("config: maxPollAttempts must not be negative")
    }
    switch c.Control.Proto {
    case "http", "grpc":
    default:
        return fmt.Errorf("config: unknown control proto %q", c.Control.Proto)
    }
    if err := c.Control.TLS.Validate(); err != nil { return err }
    if err := c.Orchestrator.TLS.Validate(); err != nil { return err }
    return nil
}

// Parse decodes YAML into a Config, rejecting unknown keys, and applies
// defaults.
func Parse(data []byte) (Config, error) {
    var c Config
    dec := yaml.NewDecoder(bytes.NewReader(data))
    dec.KnownFields(true)
    if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
        return Config{}, fmt.Errorf("config: %w", err)
    }
    c.ApplyDefaults()
    return c, nil
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (Config, error) {
    data, err := os.ReadFile(path)
    if err != nil { return Config{}, fmt.Errorf("config: %w", err) }
    return Parse(data)
}
