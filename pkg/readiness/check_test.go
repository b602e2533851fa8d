package readiness

import (
    "context"
    "fmt"
    "net"
    "testing"
    "time"

    "github.com/miekg/dns"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// mapDialer routes discovery hostnames to local listeners.
type mapDialer struct {
    routes map[string]string
}

func (m mapDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
    to, ok := m.routes[address]
    if !ok {
        return nil, &net.OpError{Op: "dial", Net: network, Err: fmt.Errorf("no route to %s", address)}
    }
    var d net.Dialer
    return d.DialContext(ctx, network, to)
}

func TestQuorumHealthCheckTargets(t *testing.T) {
    c := QuorumHealthCheck{Count: 3, Namespace: "hdfs", Domain: "mesos", Port: 8485}
    assert.Equal(t, []string{
        "journalnode3.hdfs.mesos:8485",
        "journalnode2.hdfs.mesos:8485",
        "journalnode1.hdfs.mesos:8485",
    }, c.Targets())
}

func TestQuorumHealthCheckProbe(t *testing.T) {
    lis, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    defer lis.Close()
    go func() {
        for {
            conn, err := lis.Accept()
            if err != nil { return }
            conn.Close()
        }
    }()

    c := QuorumHealthCheck{Count: 2, Namespace: "hdfs", Domain: "mesos", Port: 8485, Dialer: mapDialer{routes: map[string]string{
        "journalnode1.hdfs.mesos:8485": lis.Addr().String(),
    }}}
    ctx := context.Background()
    assert.NoError(t, c.Probe(ctx, "journalnode1.hdfs.mesos:8485"))
    assert.Error(t, c.Probe(ctx, "journalnode2.hdfs.mesos:8485"))

    ok, failed := Evaluate(ctx, c, time.Second, quietLogger())
    assert.False(t, ok)
    assert.Equal(t, "journalnode2.hdfs.mesos:8485", failed)
}

func TestPeerResolutionCheckTargets(t *testing.T) {
    c := PeerResolutionCheck{Count: 2, Namespace: "hdfs", Domain: "mesos"}
    assert.Equal(t, []string{"namenode2.hdfs.mesos", "namenode1.hdfs.mesos"}, c.Targets())
}

type staticResolver map[string][]string

func (s staticResolver) LookupHost(_ context.Context, host string) ([]string, error) {
    if addrs, ok := s[host]; ok { return addrs, nil }
    return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func TestPeerResolutionCheckProbe(t *testing.T) {
    c := PeerResolutionCheck{Count: 2, Namespace: "hdfs", Domain: "mesos", Resolver: staticResolver{
        "namenode1.hdfs.mesos": {"10.0.0.1"},
        "namenode2.hdfs.mesos": {},
    }}
    ctx := context.Background()
    assert.NoError(t, c.Probe(ctx, "namenode1.hdfs.mesos"))
    assert.ErrorIs(t, c.Probe(ctx, "namenode2.hdfs.mesos"), errNoAddresses)
    assert.Error(t, c.Probe(ctx, "namenode3.hdfs.mesos"))
}

// startDNS serves A records for the given names on a local UDP port.
func startDNS(t *testing.T, records map[string]string) string {
    t.Helper()
    pc, err := net.ListenPacket("udp", "127.0.0.1:0")
    require.NoError(t, err)

    mux := dns.NewServeMux()
    mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
        m := new(dns.Msg)
        m.SetReply(r)
        q := r.Question[0]
        ip, ok := records[q.Name]
        if !ok {
            m.SetRcode(r, dns.RcodeNameError)
        } else if q.Qtype == dns.TypeA {
            m.Answer = append(m.Answer, &dns.A{
                Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
                A:   net.ParseIP(ip),
            })
        }
        _ = w.WriteMsg(m)
    })

    started := make(chan struct{})
    srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
    go func() { _ = srv.ActivateAndServe() }()
    <-started
    t.Cleanup(func() { _ = srv.Shutdown() })
    return pc.LocalAddr().String()
}

func TestDNSResolver(t *testing.T) {
    addr := startDNS(t, map[string]string{"namenode1.hdfs.mesos.": "10.1.2.3"})
    r := NewDNSResolver([]string{addr}, time.Second)
    ctx := context.Background()

    addrs, err := r.LookupHost(ctx, "namenode1.hdfs.mesos")
    require.NoError(t, err)
    assert.Equal(t, []string{"10.1.2.3"}, addrs)

    _, err = r.LookupHost(ctx, "namenode2.hdfs.mesos")
    var dnsErr *net.DNSError
    require.ErrorAs(t, err, &dnsErr)
    assert.True(t, dnsErr.IsNotFound)

    c := PeerResolutionCheck{Count: 2, Namespace: "hdfs", Domain: "mesos", Resolver: r}
    ok, failed := Evaluate(ctx, c, time.Second, quietLogger())
    assert.False(t, ok)
    assert.Equal(t, "namenode2.hdfs.mesos", failed)
}

func TestNewDNSResolverDefaultsPort(t *testing.T) {
    r := NewDNSResolver([]string{"10.0.0.53", "10.0.0.54:5353", ""}, 0)
    assert.Equal(t, []string{"10.0.0.53:53", "10.0.0.54:5353"}, r.Servers)
    assert.Equal(t, 2*time.Second, r.Timeout)

    _, err := (&DNSResolver{}).LookupHost(context.Background(), "x")
    assert.Error(t, err)
}
