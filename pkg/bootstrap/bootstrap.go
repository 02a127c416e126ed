// Package bootstrap assembles a ledger node from flat configuration. It is
// the single place where transports, membership, discovery, signing and the
// executor are chosen and wired; both the CLI and embedding applications go
// through it.
package bootstrap

import (
    "context"
    "crypto/tls"
    "fmt"
    "log"
    "strings"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/cluster"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/discovery"
    dDNS "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/discovery/dns"
    dFile "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/discovery/file"
    dStatic "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/discovery/static"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/executor"
    ml "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/membership"
    mlimpl "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/membership/memberlist"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/security/signature"
    tlsx "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/security/tlsconfig"
    consgrpc "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport/grpc"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport/httpjson"
)

// Default listen addresses. Gossip, consensus and management each get a
// dedicated port.
const (
    DefaultGossipAddr = ":17946"
    DefaultConsAddr   = ":17947"
    DefaultMgmtAddr   = ":17948"

    defaultRPCTimeout = 3 * time.Second
)

// Config defines high-level inputs to assemble a ledger node with sensible
// defaults. Applications embed the node by providing this structure and
// calling Build or Run.
type Config struct {
    // Identity and addresses
    NodeID   string
    ConsAddr string // consensus gRPC bind, e.g. ":17947"
    ConsAdv  string // optional advertised consensus host:port
    MemBind  string // gossip bind host:port
    MemAdv   string // optional gossip advertise host:port
    MgmtAddr string // management API bind host:port
    MgmtAdv  string // optional advertised management host:port

    // PeersCSV lists static replication peers as "id@host:port" entries.
    PeersCSV string

    // Discovery settings
    DiscoveryKind string        // "static" (default), "dns", or "file"
    SeedsCSV      string        // used when DiscoveryKind=static
    DNSNamesCSV   string        // used when kind=dns
    DNSPort       int           // used when kind=dns (A/AAAA)
    DiscRefresh   time.Duration // cache/refresh duration for discovery
    FilePath      string        // used when kind=file
    FileEnv       string        // used when kind=file

    // Consensus timing (zero means engine defaults)
    ElectionTimeoutMin time.Duration
    ElectionTimeoutMax time.Duration
    HeartbeatInterval  time.Duration
    RPCTimeout         time.Duration

    // Execution tuning
    ExecWorkers   int           // parallel task bodies; zero means GOMAXPROCS
    ApplyTimeout  time.Duration // whole-batch deadline
    ApplyBatchMax int           // committed entries drained per batch

    // SigningKey, when set, HMAC-signs replication traffic. All nodes of a
    // cluster must share the same key.
    SigningKey string

    // TLS (optional) for the consensus and management endpoints
    TLSEnable     bool
    TLSCA         string
    TLSCert       string
    TLSKey        string
    TLSServerName string
    TLSSkipVerify bool

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger

    // Application consumes committed commands. Optional; without it the
    // node replicates but applies nothing.
    Application cluster.Application

    // Optional callbacks
    OnLeaderChange  func(info consensus.LeaderInfo)
    OnElectionStart func()
}

// ParsePeers converts a comma-separated "id@host:port" list into peers.
func ParsePeers(csv string) ([]consensus.Peer, error) {
    var out []consensus.Peer
    for _, item := range strings.Split(csv, ",") {
        item = strings.TrimSpace(item)
        if item == "" { continue }
        id, addr, ok := strings.Cut(item, "@")
        if !ok || id == "" || addr == "" {
            return nil, fmt.Errorf("bootstrap: bad peer %q, want id@host:port", item)
        }
        out = append(out, consensus.Peer{ID: consensus.NodeID(id), Addr: addr})
    }
    return out, nil
}

func (c *Config) defaults() {
    if c.Logger == nil { c.Logger = log.Default() }
    if c.ConsAddr == "" { c.ConsAddr = DefaultConsAddr }
    if c.MemBind == "" { c.MemBind = DefaultGossipAddr }
    if c.MgmtAddr == "" { c.MgmtAddr = DefaultMgmtAddr }
    if c.RPCTimeout <= 0 { c.RPCTimeout = defaultRPCTimeout }
}

// advertised returns adv when set, otherwise bind. Bind addresses of the
// ":port" form are advertised as-is; gossip metadata consumers fall back to
// the member's gossip IP in that case.
func advertised(adv, bind string) string {
    if adv != "" { return adv }
    return bind
}

// Build assembles a cluster.Node from Config without starting it.
func Build(cfg Config) (*cluster.Node, error) {
    if cfg.NodeID == "" {
        return nil, fmt.Errorf("bootstrap: NodeID is required")
    }
    cfg.defaults()

    peers, err := ParsePeers(cfg.PeersCSV)
    if err != nil { return nil, err }

    disc := buildDiscovery(cfg)

    // Membership metadata tells peers where to reach this node.
    memMeta := map[string]string{
        ml.MetaConsAddr: advertised(cfg.ConsAdv, cfg.ConsAddr),
        ml.MetaMgmtAddr: advertised(cfg.MgmtAdv, cfg.MgmtAddr),
    }
    mem, err := mlimpl.New(mlimpl.Options{
        NodeID:    cfg.NodeID,
        Bind:      cfg.MemBind,
        Advertise: cfg.MemAdv,
        Logger:    cfg.Logger,
        Meta:      memMeta,
    })
    if err != nil { return nil, err }

    var srvTLS, cliTLS *tls.Config
    if cfg.TLSEnable {
        topts := tlsx.Options{
            Enable:             true,
            CAFile:             cfg.TLSCA,
            CertFile:           cfg.TLSCert,
            KeyFile:            cfg.TLSKey,
            InsecureSkipVerify: cfg.TLSSkipVerify,
            ServerName:         cfg.TLSServerName,
        }
        // Hot-reload configs allow rotation by replacing the files.
        if srvTLS, err = topts.ServerHotReload(); err != nil { return nil, err }
        if cliTLS, err = topts.ClientHotReload(); err != nil { return nil, err }
    }

    peerSrv := consgrpc.NewServer(cfg.ConsAddr)
    peerCli := consgrpc.NewClient(cfg.RPCTimeout)
    mgmtSrv := httpjson.NewServer(cfg.MgmtAddr, cfg.Logger)
    mgmtCli := httpjson.NewClient(cfg.RPCTimeout)
    if srvTLS != nil {
        peerSrv.UseTLS(srvTLS)
        mgmtSrv.UseTLS(srvTLS)
    }
    if cliTLS != nil {
        peerCli.UseTLS(cliTLS)
        mgmtCli.UseTLS(cliTLS)
    }

    var signer consensus.Signer
    if cfg.SigningKey != "" {
        signer = signature.NewHMAC([]byte(cfg.SigningKey))
    }

    var exec *executor.Executor
    if cfg.ExecWorkers > 0 || cfg.ApplyTimeout > 0 {
        exec, err = executor.New(executor.Options{
            MaxWorkers:   cfg.ExecWorkers,
            BatchTimeout: cfg.ApplyTimeout,
            Logger:       cfg.Logger,
        })
        if err != nil { return nil, err }
    }

    opts := cluster.Options{
        NodeID:             consensus.NodeID(cfg.NodeID),
        Advertise:          advertised(cfg.ConsAdv, cfg.ConsAddr),
        Peers:              peers,
        Logger:             cfg.Logger,
        PeerClient:         peerCli,
        PeerServer:         peerSrv,
        Application:        cfg.Application,
        Executor:           exec,
        Membership:         mem,
        Discovery:          disc,
        Signer:             signer,
        RPCServer:          mgmtSrv,
        RPCClient:          mgmtCli,
        ElectionTimeoutMin: cfg.ElectionTimeoutMin,
        ElectionTimeoutMax: cfg.ElectionTimeoutMax,
        HeartbeatInterval:  cfg.HeartbeatInterval,
        RPCTimeout:         cfg.RPCTimeout,
        ApplyBatchMax:      cfg.ApplyBatchMax,
        ApplyTimeout:       cfg.ApplyTimeout,
        OnLeaderChange:     cfg.OnLeaderChange,
        OnElectionStart:    cfg.OnElectionStart,
    }
    return cluster.New(context.Background(), opts)
}

func buildDiscovery(cfg Config) discovery.Discovery {
    switch cfg.DiscoveryKind {
    case "dns":
        opts := dDNS.Options{Names: dStatic.Parse(cfg.DNSNamesCSV), Port: cfg.DNSPort, Logger: cfg.Logger}
        if cfg.DiscRefresh > 0 { opts.Refresh = cfg.DiscRefresh }
        return dDNS.New(opts)
    case "file":
        opts := dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv}
        if cfg.DiscRefresh > 0 { opts.Refresh = cfg.DiscRefresh }
        return dFile.New(opts)
    default:
        return dStatic.New(dStatic.Parse(cfg.SeedsCSV)...)
    }
}

// Run builds and starts the node. The caller owns the returned instance and
// must Close it when finished.
func Run(ctx context.Context, cfg Config) (*cluster.Node, error) {
    n, err := Build(cfg)
    if err != nil { return nil, err }
    if err := n.Start(ctx); err != nil {
        _ = n.Close()
        return nil, err
    }
    return n, nil
}
