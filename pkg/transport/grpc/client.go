package grpc

import (
    "context"
    "crypto/tls"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"

    "github.com/amirimatin/go-nnagent/pkg/transport"
)

// Client calls the control service of a remote agent. Each call dials a
// fresh connection; control calls are rare and short.
type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &Client{timeout: timeout}
}

// UseTLS sets TLS config for the client.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

func (c *Client) dial(target string) (*grpc.ClientConn, error) {
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.NewClient(target, opts...)
}

func (c *Client) invoke(ctx context.Context, addr, method string, in, out any) error {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := c.dial(addr)
    if err != nil { return err }
    defer cc.Close()
    return cc.Invoke(cctx, "/"+serviceName+"/"+method, in, out, grpc.WaitForReady(true))
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    out := new(statusBlob)
    if err := c.invoke(ctx, addr, "GetStatus", &empty{}, out); err != nil { return nil, err }
    return out.Data, nil
}

func (c *Client) Launch(ctx context.Context, addr string, req transport.LaunchRequest) (transport.Ack, error) {
    return c.ack(ctx, addr, "Launch", &req)
}

func (c *Client) Kill(ctx context.Context, addr string, req transport.KillRequest) (transport.Ack, error) {
    return c.ack(ctx, addr, "Kill", &req)
}

func (c *Client) Signal(ctx context.Context, addr string, req transport.SignalRequest) (transport.Ack, error) {
    return c.ack(ctx, addr, "Signal", &req)
}

func (c *Client) ack(ctx context.Context, addr, method string, in any) (transport.Ack, error) {
    var out transport.Ack
    err := c.invoke(ctx, addr, method, in, &out)
    return out, err
}

// Healthy asks the standard health service whether the control service is
// serving.
func (c *Client) Healthy(ctx context.Context, addr string) (bool, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := c.dial(addr)
    if err != nil { return false, err }
    defer cc.Close()
    resp, err := healthpb.NewHealthClient(cc).Check(cctx, &healthpb.HealthCheckRequest{Service: serviceName}, grpc.WaitForReady(true))
    if err != nil { return false, err }
    return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

var _ transport.ControlClient = (*Client)(nil)
