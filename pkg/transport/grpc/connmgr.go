package grpc

import (
    "context"
    "sync"
    "time"

    "google.golang.org/grpc"

    obsmetrics "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/metrics"
)

type dialFunc func(ctx context.Context, target string) (*grpc.ClientConn, error)

// connCache keeps one client connection per peer address and sweeps idle
// ones. Consensus traffic keeps leader-to-follower links warm, so in steady
// state the cache holds exactly one entry per live peer.
type connCache struct {
    mu      sync.Mutex
    entries map[string]*cacheEntry
    ttl     time.Duration
    dial    dialFunc
    done    chan struct{}
}

type cacheEntry struct {
    cc      *grpc.ClientConn
    refs    int
    touched time.Time
}

func newConnCache(ttl time.Duration, dial dialFunc) *connCache {
    if ttl <= 0 { ttl = 30 * time.Second }
    c := &connCache{ttl: ttl, dial: dial, entries: make(map[string]*cacheEntry), done: make(chan struct{})}
    go c.sweep()
    return c
}

// Get returns the cached connection for target, dialing on first use, plus
// a release func the caller invokes when its RPC finishes. grpc.NewClient
// does not block on the network, so creation happens under the lock and at
// most one connection per target ever exists.
func (c *connCache) Get(ctx context.Context, target string) (*grpc.ClientConn, func(), error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if e, ok := c.entries[target]; ok {
        e.refs++
        e.touched = time.Now()
        obsmetrics.GRPCConnReuse.Inc()
        return e.cc, c.releaser(target), nil
    }
    cc, err := c.dial(ctx, target)
    if err != nil { return nil, func() {}, err }
    c.entries[target] = &cacheEntry{cc: cc, refs: 1, touched: time.Now()}
    obsmetrics.GRPCConnDials.Inc()
    obsmetrics.GRPCConnActive.Inc()
    return cc, c.releaser(target), nil
}

func (c *connCache) releaser(target string) func() {
    return func() {
        c.mu.Lock()
        if e, ok := c.entries[target]; ok {
            if e.refs > 0 { e.refs-- }
            e.touched = time.Now()
        }
        c.mu.Unlock()
    }
}

// Evict closes and removes the connection for target immediately. In-flight
// calls on it fail; callers evict only after the peer left the cluster.
func (c *connCache) Evict(target string) {
    c.mu.Lock()
    e, ok := c.entries[target]
    if ok { delete(c.entries, target) }
    c.mu.Unlock()
    if ok {
        _ = e.cc.Close()
        obsmetrics.GRPCConnEvictions.Inc()
        obsmetrics.GRPCConnActive.Dec()
    }
}

// Close closes every cached connection and stops the sweeper.
func (c *connCache) Close() {
    close(c.done)
    c.mu.Lock()
    drained := c.entries
    c.entries = make(map[string]*cacheEntry)
    c.mu.Unlock()
    for _, e := range drained {
        _ = e.cc.Close()
    }
}

func (c *connCache) size() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    return len(c.entries)
}

func (c *connCache) sweep() {
    ticker := time.NewTicker(c.ttl / 2)
    defer ticker.Stop()
    for {
        select {
        case <-c.done:
            return
        case <-ticker.C:
            c.evictIdle(time.Now().Add(-c.ttl))
        }
    }
}

func (c *connCache) evictIdle(cutoff time.Time) {
    var victims []*cacheEntry
    c.mu.Lock()
    for target, e := range c.entries {
        if e.refs == 0 && e.touched.Before(cutoff) {
            delete(c.entries, target)
            victims = append(victims, e)
        }
    }
    c.mu.Unlock()
    for _, e := range victims {
        _ = e.cc.Close()
        obsmetrics.GRPCConnEvictions.Inc()
        obsmetrics.GRPCConnActive.Dec()
    }
}
