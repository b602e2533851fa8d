package readiness

import (
    "context"
    "fmt"
    "net"
    "time"

    "github.com/miekg/dns"
)

// DNSResolver resolves names against explicit DNS servers instead of the
// system resolver. Discovery services such as Mesos-DNS publish task
// records that the host's resolver may cache negatively; asking the
// discovery server directly sees new records as soon as they exist.
type DNSResolver struct {
    Servers []string
    Timeout time.Duration
    // Net is "udp" (default) or "tcp".
    Net string
}

// NewDNSResolver returns a resolver for servers given as host or host:port
// (port 53 is assumed when missing).
func NewDNSResolver(servers []string, timeout time.Duration) *DNSResolver {
    if timeout <= 0 { timeout = 2 * time.Second }
    out := make([]string, 0, len(servers))
    for _, s := range servers {
        if s == "" { continue }
        if _, _, err := net.SplitHostPort(s); err != nil {
            s = net.JoinHostPort(s, "53")
        }
        out = append(out, s)
    }
    return &DNSResolver{Servers: out, Timeout: timeout}
}

// LookupHost returns the A and AAAA addresses of host from the first server
// that answers.
func (r *DNSResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
    if len(r.Servers) == 0 {
        return nil, fmt.Errorf("dns: no servers configured")
    }
    fqdn := dns.Fqdn(host)
    var lastErr error
    for _, server := range r.Servers {
        addrs, err := r.query(ctx, server, fqdn)
        if err == nil {
            return addrs, nil
        }
        lastErr = err
        if dnsErr, ok := err.(*net.DNSError); ok && dnsErr.IsNotFound {
            // authoritative answer, no point asking the next server
            return nil, err
        }
    }
    return nil, lastErr
}

func (r *DNSResolver) query(ctx context.Context, server, fqdn string) ([]string, error) {
    c := &dns.Client{Net: r.Net, Timeout: r.Timeout}
    var addrs []string
    for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
        m := new(dns.Msg)
        m.SetQuestion(fqdn, qtype)
        m.RecursionDesired = true
        in, _, err := c.ExchangeContext(ctx, m, server)
        if err != nil {
            return nil, &net.DNSError{Err: err.Error(), Name: fqdn, Server: server, IsTimeout: isTimeout(err)}
        }
        switch in.Rcode {
        case dns.RcodeSuccess:
        case dns.RcodeNameError:
            return nil, &net.DNSError{Err: "no such host", Name: fqdn, Server: server, IsNotFound: true}
        default:
            return nil, &net.DNSError{Err: dns.RcodeToString[in.Rcode], Name: fqdn, Server: server, IsTemporary: true}
        }
        for _, rr := range in.Answer {
            switch v := rr.(type) {
            case *dns.A:
                addrs = append(addrs, v.A.String())
            case *dns.AAAA:
                addrs = append(addrs, v.AAAA.String())
            }
        }
    }
    if len(addrs) == 0 {
        return nil, &net.DNSError{Err: "no such host", Name: fqdn, Server: server, IsNotFound: true}
    }
    return addrs, nil
}

func isTimeout(err error) bool {
    ne, ok := err.(net.Error)
    return ok && ne.Timeout()
}

var _ Resolver = (*DNSResolver)(nil)
