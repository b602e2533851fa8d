package bootstrap

import (
    "context"
    "encoding/json"
    "io"
    "log"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-nnagent/pkg/readiness"
    "github.com/amirimatin/go-nnagent/pkg/transport/httpjson"
)

func TestDefaults(t *testing.T) {
    c := Defaults()
    require.NoError(t, c.Validate())
    assert.Equal(t, "hdfs", c.FrameworkName)
    assert.Equal(t, "mesos", c.DNSDomain)
    assert.Equal(t, 8485, c.Discovery.JournalPort)
    assert.Equal(t, 2, c.Discovery.NameNodes)
    assert.Equal(t, 15*time.Second, c.Discovery.PollInterval)
    assert.Zero(t, c.Discovery.MaxPollAttempts)
    assert.Equal(t, "bin/hdfs-mesos-namenode", c.NameNodeBinary)
    assert.Equal(t, "http", c.Control.Proto)
}

func TestParseYAML(t *testing.T) {
    c, err := Parse([]byte(`
frameworkName: hdfs-prod
dnsDomain: mesos.internal
dataDir: /data/hdfs
discovery:
  enabled: true
  journalNodes: 5
  dnsServers: [10.0.0.53]
  pollInterval: 30s
  maxPollAttempts: 40
process:
  direct: true
  env: [JAVA_HOME=/usr/lib/jvm]
control:
  addr: 127.0.0.1:8475
  proto: grpc
orchestrator:
  url: http://scheduler:8080/status
  maxElapsed: 1m
logJson: true
`))
    require.NoError(t, err)
    require.NoError(t, c.Validate())
    assert.Equal(t, "hdfs-prod", c.FrameworkName)
    assert.True(t, c.Discovery.Enabled)
    assert.Equal(t, 5, c.Discovery.JournalNodes)
    assert.Equal(t, 8485, c.Discovery.JournalPort)
    assert.Equal(t, 30*time.Second, c.Discovery.PollInterval)
    assert.Equal(t, 40, c.Discovery.MaxPollAttempts)
    assert.Equal(t, []string{"10.0.0.53"}, c.Discovery.DNSServers)
    assert.True(t, c.Process.Direct)
    assert.Equal(t, "/bin/sh", c.Process.Shell)
    assert.Equal(t, "grpc", c.Control.Proto)
    assert.Equal(t, time.Minute, c.Orchestrator.MaxElapsed)
    assert.True(t, c.LogJSON)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
    _, err := Parse([]byte("frameworkName: hdfs\nquorum: 3\n"))
    assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
    c, err := Parse(nil)
    require.NoError(t, err)
    assert.Equal(t, Defaults(), c)
}

func TestLoadFile(t *testing.T) {
    path := filepath.Join(t.TempDir(), "nnagent.yaml")
    require.NoError(t, os.WriteFile(path, []byte("dataDir: /srv/hdfs\n"), 0o600))
    c, err := LoadFile(path)
    require.NoError(t, err)
    assert.Equal(t, "/srv/hdfs", c.DataDir)

    _, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
    assert.Error(t, err)
}

func TestValidate(t *testing.T) {
    cases := map[string]func(*Config){
        "no journal nodes": func(c *Config) { c.Discovery.JournalNodes = -1 },
        "bad port":         func(c *Config) { c.Discovery.JournalPort = 70000 },
        "bad proto":        func(c *Config) { c.Control.Proto = "udp" },
        "negative bound":   func(c *Config) { c.Discovery.MaxPollAttempts = -2 },
        "half tls":         func(c *Config) { c.Control.TLS.Enable = true; c.Control.TLS.CertFile = "a.pem" },
    }
    for name, mutate := range cases {
        t.Run(name, func(t *testing.T) {
            c := Defaults()
            mutate(&c)
            assert.Error(t, c.Validate())
        })
    }
}

func TestChecks(t *testing.T) {
    c := Defaults()
    quorum, peers := Checks(c)
    assert.Equal(t, []string{
        "journalnode3.hdfs.mesos:8485",
        "journalnode2.hdfs.mesos:8485",
        "journalnode1.hdfs.mesos:8485",
    }, quorum.Targets())
    assert.Equal(t, []string{"namenode2.hdfs.mesos", "namenode1.hdfs.mesos"}, peers.Targets())

    c.Discovery.DNSServers = []string{"127.0.0.1"}
    _, peers = Checks(c)
    prc, ok := peers.(readiness.PeerResolutionCheck)
    require.True(t, ok)
    assert.IsType(t, &readiness.DNSResolver{}, prc.Resolver)
}

func TestRunServesControlEndpoint(t *testing.T) {
    c := Defaults()
    c.DataDir = t.TempDir()
    c.Control.Addr = "127.0.0.1:0"
    c.Logger = log.New(io.Discard, "", 0)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    a, err := Run(ctx, c)
    require.NoError(t, err)
    defer a.Stop(context.Background())

    cli := httpjson.NewClient(time.Second)
    addr := a.ControlAddr()
    data, err := cli.GetStatus(ctx, addr)
    require.NoError(t, err)
    var snap map[string]any
    require.NoError(t, json.Unmarshal(data, &snap))
    assert.Equal(t, "idle", snap["state"])
}
