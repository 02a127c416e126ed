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

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
)

// Client is a thin HTTP client for the management API. It supports optional
// TLS configuration and simple retry with backoff for robustness.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr}
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

// postJSON POSTs in to addr+path and decodes the response into out, retrying
// up to three times with backoff. errText reads the decoded error field so
// server-side rejections surface as errors. A fresh request is built per
// attempt since a consumed body cannot be resent.
func (c *Client) postJSON(ctx context.Context, addr, path string, in, out any, errText func() string) error {
    body, err := json.Marshal(in)
    if err != nil { return err }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(addr, path), bytes.NewReader(body))
        if err != nil { return err }
        httpReq.Header.Set("Content-Type", "application/json")
        resp, err := c.httpc.Do(httpReq)
        if err != nil {
            lastErr = err
        } else {
            func() {
                defer resp.Body.Close()
                b, _ := io.ReadAll(resp.Body)
                _ = json.Unmarshal(b, out)
                if resp.StatusCode != http.StatusOK {
                    if msg := errText(); msg != "" {
                        lastErr = errors.New(msg)
                    } else {
                        lastErr = fmt.Errorf("%s status %d: %s", path, resp.StatusCode, string(b))
                    }
                } else {
                    lastErr = nil
                }
            }()
            if lastErr == nil { return nil }
        }
        // backoff unless context is done
        select {
        case <-ctx.Done():
            if lastErr == nil { lastErr = ctx.Err() }
            return lastErr
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return lastErr
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(addr, "/status"), nil)
        if err != nil { return nil, err }
        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            var data []byte
            func() {
                defer resp.Body.Close()
                if resp.StatusCode != http.StatusOK {
                    b, _ := io.ReadAll(resp.Body)
                    lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
                    return
                }
                data, lastErr = io.ReadAll(resp.Body)
            }()
            if lastErr == nil { return data, nil }
        }
        // backoff unless context is done
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return nil, lastErr
}

func (c *Client) PostSubmit(ctx context.Context, addr string, req transport.SubmitRequest) (transport.SubmitResponse, error) {
    var out transport.SubmitResponse
    err := c.postJSON(ctx, addr, "/submit", req, &out, func() string { return out.Error })
    return out, err
}

func (c *Client) PostJoin(ctx context.Context, addr string, req transport.JoinRequest) (transport.JoinResponse, error) {
    var out transport.JoinResponse
    err := c.postJSON(ctx, addr, "/peers/join", req, &out, func() string { return out.Error })
    return out, err
}

func (c *Client) PostLeave(ctx context.Context, addr string, req transport.LeaveRequest) (transport.LeaveResponse, error) {
    var out transport.LeaveResponse
    err := c.postJSON(ctx, addr, "/peers/leave", req, &out, func() string { return out.Error })
    return out, err
}

var _ transport.RPCClient = (*Client)(nil)
