package grpc

import (
    "context"
    "crypto/tls"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/election"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/replication"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
)

// Client performs consensus RPCs against peers over gRPC with a JSON codec.
// Connections are cached per peer address and evicted when idle.
type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config
    cache   *connCache
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    c := &Client{timeout: timeout}
    // The dialer closure reads tlsCfg at dial time, so UseTLS may still be
    // called after construction (before the first call).
    c.cache = newConnCache(30*time.Second, c.dialCtx)
    return c
}

// UseTLS sets TLS config for the client.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
    // Use JSON codec and set content subtype accordingly.
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.NewClient(target, opts...)
}

func (c *Client) RequestVote(ctx context.Context, peer consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    var resp consensus.VoteResponse
    cc, rel, err := c.cache.Get(cctx, peer.Addr)
    if err != nil { return resp, err }
    defer rel()
    if err := cc.Invoke(cctx, "/ledger.v1.Consensus/RequestVote", &req, &resp); err != nil { return resp, err }
    return resp, nil
}

func (c *Client) AppendEntries(ctx context.Context, peer consensus.Peer, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    var resp consensus.AppendEntriesResponse
    cc, rel, err := c.cache.Get(cctx, peer.Addr)
    if err != nil { return resp, err }
    defer rel()
    if err := cc.Invoke(cctx, "/ledger.v1.Consensus/AppendEntries", &req, &resp); err != nil { return resp, err }
    return resp, nil
}

// Evict drops the cached connection for addr, if any. Callers should evict
// when a peer leaves the cluster.
func (c *Client) Evict(addr string) { c.cache.Evict(addr) }

// Close releases all cached connections.
func (c *Client) Close() error {
    c.cache.Close()
    return nil
}

var (
    _ transport.PeerClient   = (*Client)(nil)
    _ election.Transport     = (*Client)(nil)
    _ replication.Transport  = (*Client)(nil)
)
