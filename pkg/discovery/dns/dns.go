// Package dns resolves gossip seeds from DNS. Names of the form
// `_service._proto.domain` are looked up as SRV records; anything else is
// resolved as A/AAAA with a configured port. Literal host:port entries
// pass through untouched, so mixed static/DNS seed lists work.
package dns

import (
    "context"
    "log"
    "net"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/discovery"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/internal/logutil"
)

// DefaultGossipPort is assumed for A/AAAA answers, which carry no port.
const DefaultGossipPort = 17946

// Options configures DNS-based discovery.
type Options struct {
    // Names are SRV records, hostnames, or literal host:port entries.
    // Examples: "_ledger._tcp.example.com", "node1.example.com",
    // "10.0.0.5:17946".
    Names []string

    // Port used for A/AAAA answers. Zero means DefaultGossipPort.
    Port int

    // Refresh bounds cache staleness. Zero means 5s.
    Refresh time.Duration

    // Resolver optionally overrides the DNS resolver used.
    Resolver *net.Resolver

    // Logger optional.
    Logger *log.Logger
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    cache []string
}

// New returns a DNS-backed discovery caching answers for Refresh.
func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    if opts.Port == 0 { opts.Port = DefaultGossipPort }
    return &impl{opts: opts}
}

func (d *impl) Seeds() []string {
    d.mu.Lock()
    defer d.mu.Unlock()
    if time.Since(d.last) < d.opts.Refresh && len(d.cache) > 0 {
        return append([]string(nil), d.cache...)
    }
    d.cache = d.resolveAll(context.Background())
    d.last = time.Now()
    return append([]string(nil), d.cache...)
}

func (d *impl) resolveAll(ctx context.Context) []string {
    seen := make(map[string]struct{})
    var out []string
    add := func(hp string) {
        if _, ok := seen[hp]; ok { return }
        seen[hp] = struct{}{}
        out = append(out, hp)
    }
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        if name == "" { continue }
        // Literal host:port passes through.
        if strings.Contains(name, ":") && !strings.HasPrefix(name, "_") {
            add(name)
            continue
        }
        if svc, proto, domain, ok := splitSRVName(name); ok {
            if recs := d.lookupSRV(ctx, svc, proto, domain); len(recs) > 0 {
                for _, hp := range recs { add(hp) }
                continue
            }
            logutil.Warnf(d.opts.Logger, "dns: SRV lookup for %s returned nothing, falling back to host lookup", name)
        }
        for _, hp := range d.lookupHost(ctx, name, d.opts.Port) {
            add(hp)
        }
    }
    sort.Strings(out)
    return out
}

func (d *impl) lookupSRV(ctx context.Context, svc, proto, domain string) []string {
    res := d.resolver()
    _, addrs, err := res.LookupSRV(ctx, svc, proto, domain)
    if err != nil { return nil }
    out := make([]string, 0, len(addrs))
    for _, a := range addrs {
        host := strings.TrimSuffix(a.Target, ".")
        out = append(out, net.JoinHostPort(host, strconv.Itoa(int(a.Port))))
    }
    return out
}

func (d *impl) lookupHost(ctx context.Context, host string, port int) []string {
    res := d.resolver()
    ips, err := res.LookupHost(ctx, host)
    if err != nil { return nil }
    out := make([]string, 0, len(ips))
    for _, ip := range ips {
        out = append(out, net.JoinHostPort(ip, strconv.Itoa(port)))
    }
    return out
}

func (d *impl) resolver() *net.Resolver {
    if d.opts.Resolver != nil { return d.opts.Resolver }
    return net.DefaultResolver
}

// splitSRVName recognizes the RFC 2782 `_service._proto.name` shape.
func splitSRVName(fqdn string) (service, proto, name string, ok bool) {
    if !strings.HasPrefix(fqdn, "_") { return "", "", "", false }
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 || !strings.HasPrefix(parts[1], "_") { return "", "", "", false }
    return strings.TrimPrefix(parts[0], "_"), strings.TrimPrefix(parts[1], "_"), parts[2], true
}
