// Package memberlist backs the membership contract with HashiCorp
// memberlist gossip. Endpoint metadata rides along as a small JSON map, so
// any node discovered here can be dialed on both the consensus and the
// management plane.
package memberlist

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net"
    "strconv"
    "sync"
    "time"

    base "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/membership"
    "github.com/hashicorp/memberlist"
)

const defaultEventBuffer = 64

// Options configures the gossip layer.
type Options struct {
    NodeID    string // unique node name, required
    Bind      string // gossip bind host:port, required
    Advertise string // optional reach-me address; derived from Bind when empty

    // Meta is advertised with the node; see the membership Meta* keys.
    Meta map[string]string

    Logger *log.Logger

    // Failure detector tuning; zero keeps the memberlist LAN defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int

    // EventBuffer bounds pending change events. Consumers that fall behind
    // miss events and reconcile against Members() instead.
    EventBuffer int
}

func (o *Options) validate() error {
    if o.NodeID == "" { return fmt.Errorf("memberlist: empty NodeID") }
    if o.Bind == "" { return fmt.Errorf("memberlist: empty Bind address") }
    if o.Logger == nil { o.Logger = log.Default() }
    if o.EventBuffer <= 0 { o.EventBuffer = defaultEventBuffer }
    return nil
}

// Gossip is the memberlist-backed Membership implementation.
type Gossip struct {
    opts Options

    mu      sync.RWMutex
    list    *memberlist.Memberlist
    stopped bool

    events chan base.Event
}

func New(opts Options) (*Gossip, error) {
    if err := opts.validate(); err != nil {
        return nil, err
    }
    return &Gossip{opts: opts, events: make(chan base.Event, opts.EventBuffer)}, nil
}

// Start launches the gossip instance. It shuts down when ctx ends.
func (g *Gossip) Start(ctx context.Context) error {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.list != nil { return nil }

    cfg, err := g.gossipConfig()
    if err != nil { return err }
    list, err := memberlist.Create(cfg)
    if err != nil { return err }
    g.list = list

    go func() {
        <-ctx.Done()
        _ = g.Stop()
    }()
    return nil
}

func (g *Gossip) gossipConfig() (*memberlist.Config, error) {
    cfg := memberlist.DefaultLANConfig()
    cfg.Name = g.opts.NodeID

    var err error
    if cfg.BindAddr, cfg.BindPort, err = splitHostPort(g.opts.Bind); err != nil {
        return nil, fmt.Errorf("memberlist: bind address %q: %w", g.opts.Bind, err)
    }
    if g.opts.Advertise != "" {
        if cfg.AdvertiseAddr, cfg.AdvertisePort, err = splitHostPort(g.opts.Advertise); err != nil {
            return nil, fmt.Errorf("memberlist: advertise address %q: %w", g.opts.Advertise, err)
        }
    }
    if g.opts.ProbeInterval > 0 { cfg.ProbeInterval = g.opts.ProbeInterval }
    if g.opts.ProbeTimeout > 0 { cfg.ProbeTimeout = g.opts.ProbeTimeout }
    if g.opts.SuspicionMult > 0 { cfg.SuspicionMult = g.opts.SuspicionMult }

    cfg.Events = &notifier{publish: g.publish}
    // Meta is static for the node's lifetime; encode it once.
    metaJSON, _ := json.Marshal(g.opts.Meta)
    cfg.Delegate = &metaDelegate{meta: metaJSON}
    return cfg, nil
}

func (g *Gossip) Join(seeds []string) error {
    g.mu.RLock()
    list := g.list
    g.mu.RUnlock()
    if list == nil { return fmt.Errorf("memberlist: not started") }
    if len(seeds) == 0 { return nil }
    _, err := list.Join(seeds)
    return err
}

func (g *Gossip) Local() base.Member {
    g.mu.RLock()
    defer g.mu.RUnlock()
    if g.list == nil { return base.Member{} }
    me := asMember(g.list.LocalNode())
    if len(me.Meta) == 0 && g.opts.Meta != nil { me.Meta = g.opts.Meta }
    return me
}

func (g *Gossip) Members() []base.Member {
    g.mu.RLock()
    defer g.mu.RUnlock()
    if g.list == nil { return nil }
    nodes := g.list.Members()
    out := make([]base.Member, 0, len(nodes))
    for _, n := range nodes {
        out = append(out, asMember(n))
    }
    return out
}

func (g *Gossip) Events() <-chan base.Event { return g.events }

// Leave announces departure and waits briefly for the broadcast.
func (g *Gossip) Leave() error {
    g.mu.RLock()
    list := g.list
    g.mu.RUnlock()
    if list == nil { return nil }
    return list.Leave(time.Second)
}

func (g *Gossip) Stop() error {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.stopped { return nil }
    g.stopped = true
    if g.list != nil {
        _ = g.list.Shutdown()
        g.list = nil
    }
    close(g.events)
    return nil
}

// HealthScore surfaces the failure detector's local awareness score.
func (g *Gossip) HealthScore() int {
    g.mu.RLock()
    defer g.mu.RUnlock()
    if g.list == nil { return -1 }
    return g.list.GetHealthScore()
}

func (g *Gossip) publish(e base.Event) {
    // A late delegate callback can race Stop closing the channel.
    defer func() { recover() }()
    select {
    case g.events <- e:
    default:
        g.opts.Logger.Printf("memberlist: event buffer full, dropped %s for %s", e.Kind, e.Member.ID)
    }
}

// notifier adapts memberlist callbacks into membership events.
type notifier struct {
    publish func(base.Event)
}

func (nf *notifier) NotifyJoin(n *memberlist.Node) { nf.send(base.KindJoin, n) }

func (nf *notifier) NotifyLeave(n *memberlist.Node) {
    // StateLeft is an announced leave; a dead node flunked its probes.
    kind := base.KindLeave
    if n != nil && n.State == memberlist.StateDead { kind = base.KindFailed }
    nf.send(kind, n)
}

// Meta updates re-announce the member so consumers refresh endpoints.
func (nf *notifier) NotifyUpdate(n *memberlist.Node) { nf.send(base.KindJoin, n) }

func (nf *notifier) send(kind base.EventKind, n *memberlist.Node) {
    if nf.publish == nil || n == nil { return }
    nf.publish(base.Event{Kind: kind, Member: asMember(n), At: time.Now()})
}

func asMember(n *memberlist.Node) base.Member {
    meta := map[string]string{}
    if len(n.Meta) > 0 {
        _ = json.Unmarshal(n.Meta, &meta)
    }
    return base.Member{
        ID:   n.Name,
        Addr: net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port))),
        Meta: meta,
    }
}

func splitHostPort(s string) (string, int, error) {
    host, portStr, err := net.SplitHostPort(s)
    if err != nil { return "", 0, err }
    port, err := strconv.Atoi(portStr)
    if err != nil || port < 0 || port > 65535 {
        return "", 0, fmt.Errorf("invalid port %q", portStr)
    }
    return host, port, nil
}

// metaDelegate broadcasts the node's static metadata in alive messages.
type metaDelegate struct{ meta []byte }

// NodeMeta returns the broadcast metadata, truncated to limit.
func (d *metaDelegate) NodeMeta(limit int) []byte {
    if len(d.meta) <= limit { return d.meta }
    if limit <= 0 { return nil }
    return d.meta[:limit]
}

// Remaining Delegate hooks are unused here.
func (d *metaDelegate) NotifyMsg([]byte)                {}
func (d *metaDelegate) GetBroadcasts(int, int) [][]byte { return nil }
func (d *metaDelegate) LocalState(bool) []byte          { return nil }
func (d *metaDelegate) MergeRemoteState([]byte, bool)   {}

var (
    _ base.Membership     = (*Gossip)(nil)
    _ base.HealthReporter = (*Gossip)(nil)
)
