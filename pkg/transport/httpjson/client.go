package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/cenkalti/backoff/v4"

    "github.com/amirimatin/go-nnagent/pkg/transport"
)

// Client is a thin HTTP client for the control API. Requests that fail at
// the connection level are retried a few times with exponential backoff.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
    retries   uint64
}

// NewClient constructs a new Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr, retries: 2}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    c.isTLS = cfg != nil
    return c
}

func (c *Client) url(addr, path string) string {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    return fmt.Sprintf("%s://%s%s", scheme, addr, path)
}

// do sends one request built by newReq, retrying transport errors. HTTP
// error statuses are not retried.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error)) (int, []byte, error) {
    var (
        code int
        body []byte
    )
    op := func() error {
        req, err := newReq()
        if err != nil { return backoff.Permanent(err) }
        resp, err := c.httpc.Do(req)
        if err != nil { return err }
        defer resp.Body.Close()
        body, err = io.ReadAll(resp.Body)
        if err != nil { return err }
        code = resp.StatusCode
        return nil
    }
    b := backoff.NewExponentialBackOff()
    b.InitialInterval = 100 * time.Millisecond
    err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx))
    return code, body, err
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    code, body, err := c.do(ctx, func() (*http.Request, error) {
        return http.NewRequestWithContext(ctx, http.MethodGet, c.url(addr, "/status"), nil)
    })
    if err != nil { return nil, err }
    if code != http.StatusOK {
        return nil, fmt.Errorf("status %d: %s", code, bytes.TrimSpace(body))
    }
    return body, nil
}

func (c *Client) Launch(ctx context.Context, addr string, req transport.LaunchRequest) (transport.Ack, error) {
    return c.post(ctx, addr, "/launch", req)
}

func (c *Client) Kill(ctx context.Context, addr string, req transport.KillRequest) (transport.Ack, error) {
    return c.post(ctx, addr, "/kill", req)
}

func (c *Client) Signal(ctx context.Context, addr string, req transport.SignalRequest) (transport.Ack, error) {
    return c.post(ctx, addr, "/signal", req)
}

func (c *Client) post(ctx context.Context, addr, path string, in any) (transport.Ack, error) {
    var out transport.Ack
    payload, err := json.Marshal(in)
    if err != nil { return out, err }
    code, body, err := c.do(ctx, func() (*http.Request, error) {
        r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(addr, path), bytes.NewReader(payload))
        if err != nil { return nil, err }
        r.Header.Set("Content-Type", "application/json")
        return r, nil
    })
    if err != nil { return out, err }
    if jerr := json.Unmarshal(body, &out); jerr != nil && code == http.StatusOK {
        return out, fmt.Errorf("decode %s response: %w", path, jerr)
    }
    if code != http.StatusOK {
        if out.Error != "" { return out, errors.New(out.Error) }
        return out, fmt.Errorf("%s status %d: %s", path, code, bytes.TrimSpace(body))
    }
    return out, nil
}

var _ transport.ControlClient = (*Client)(nil)
