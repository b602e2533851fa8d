package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "io"
    "log"
    "net/http"
    "time"

    "github.com/cenkalti/backoff/v4"

    "github.com/amirimatin/go-nnagent/pkg/internal/logutil"
    "github.com/amirimatin/go-nnagent/pkg/status"
)

// Reporter delivers status records to the orchestrator by POSTing each one
// as JSON to URL. Connection errors and 5xx answers are retried until
// MaxElapsed; 4xx answers are final.
type Reporter struct {
    URL        string
    MaxElapsed time.Duration
    Logger     *log.Logger

    httpc *http.Client
}

// NewReporter returns a Reporter posting to url with the given per-request
// timeout.
func NewReporter(url string, timeout time.Duration, logger *log.Logger) *Reporter {
    if timeout <= 0 { timeout = 5 * time.Second }
    if logger == nil { logger = log.Default() }
    return &Reporter{URL: url, MaxElapsed: 30 * time.Second, Logger: logger, httpc: &http.Client{Timeout: timeout, Transport: &http.Transport{}}}
}

// UseTLS sets the TLS config used to reach the orchestrator.
func (r *Reporter) UseTLS(cfg *tls.Config) *Reporter {
    if tr, ok := r.httpc.Transport.(*http.Transport); ok { tr.TLSClientConfig = cfg }
    return r
}

func (r *Reporter) Report(ctx context.Context, u status.Update) error {
    payload, err := json.Marshal(u)
    if err != nil { return err }
    attempt := 0
    op := func() error {
        attempt++
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(payload))
        if err != nil { return backoff.Permanent(err) }
        req.Header.Set("Content-Type", "application/json")
        resp, err := r.httpc.Do(req)
        if err != nil { return err }
        defer resp.Body.Close()
        body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
        switch {
        case resp.StatusCode >= 200 && resp.StatusCode < 300:
            return nil
        case resp.StatusCode >= 500:
            return fmt.Errorf("orchestrator status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
        default:
            return backoff.Permanent(fmt.Errorf("orchestrator rejected update: status %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
        }
    }
    b := backoff.NewExponentialBackOff()
    b.InitialInterval = 200 * time.Millisecond
    b.MaxElapsedTime = r.MaxElapsed
    notify := func(err error, next time.Duration) {
        logutil.Warnf(r.Logger, "report %s %s (attempt %d): %v, retrying in %s", u.TaskID, u.State, attempt, err, next.Round(time.Millisecond))
    }
    if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
        return fmt.Errorf("httpjson: report %s: %w", u.TaskID, err)
    }
    logutil.Debugf(r.Logger, "reported %s %s", u.TaskID, u.State)
    return nil
}

var _ status.Reporter = (*Reporter)(nil)
