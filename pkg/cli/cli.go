// Package cli provides the cobra commands for running and managing ledger
// nodes. Binaries assemble them via AddAll or NewLedgerCommand; embedding
// applications can pick individual commands.
package cli

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "log"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/bootstrap"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/internal/logutil"
    tracing "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/tracing"
    tlsx "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/security/tlsconfig"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
    httpjson "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport/httpjson"
)

// AddAll attaches the node subcommands to the provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewSubmitCmd())
    root.AddCommand(NewPeerAddCmd())
    root.AddCommand(NewPeerRemoveCmd())
}

// NewLedgerCommand returns a parent "ledger" command with all subcommands,
// for embedding into a larger CLI.
func NewLedgerCommand() *cobra.Command {
    parent := &cobra.Command{Use: "ledger", Short: "ledger node management commands"}
    AddAll(parent)
    return parent
}

// mgmtFlags is the flag set shared by every command that talks to a node's
// management endpoint.
type mgmtFlags struct {
    addr    string
    timeout time.Duration

    tlsEnable, tlsSkip                    bool
    tlsCA, tlsCert, tlsKey, tlsServerName string
}

func (m *mgmtFlags) attach(cmd *cobra.Command) {
    cmd.Flags().StringVar(&m.addr, "addr", "127.0.0.1:17948", "management address of a node (host:port)")
    cmd.Flags().DurationVar(&m.timeout, "timeout", 3*time.Second, "request timeout")
    cmd.Flags().BoolVar(&m.tlsEnable, "tls-enable", false, "enable TLS for the management call")
    cmd.Flags().StringVar(&m.tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&m.tlsCert, "tls-cert", "", "path to client certificate (PEM)")
    cmd.Flags().StringVar(&m.tlsKey, "tls-key", "", "path to client private key (PEM)")
    cmd.Flags().BoolVar(&m.tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&m.tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (m *mgmtFlags) client() (*httpjson.Client, error) {
    cli := httpjson.NewClient(m.timeout)
    if m.tlsEnable {
        topts := tlsx.Options{
            Enable:             true,
            CAFile:             m.tlsCA,
            CertFile:           m.tlsCert,
            KeyFile:            m.tlsKey,
            InsecureSkipVerify: m.tlsSkip,
            ServerName:         m.tlsServerName,
        }
        cfg, err := topts.Client()
        if err != nil { return nil, fmt.Errorf("tls client config: %w", err) }
        if cfg != nil { cli.UseTLS(cfg) }
    }
    return cli, nil
}

func (m *mgmtFlags) ctx() (context.Context, context.CancelFunc) {
    return context.WithTimeout(context.Background(), m.timeout)
}

// NewRunCmd returns the "run" command used to start a ledger node.
func NewRunCmd() *cobra.Command {
    var (
        id, consAddr, consAdv, memBind, memAdv, mgmtAddr, mgmtAdv string
        peersCSV, joinCSV, discoveryKind                          string
        dnsNames, filePath, fileEnv                               string
        dnsPort                                                   int
        discRefresh                                               time.Duration
        electionMin, electionMax, heartbeat, rpcTimeout           time.Duration
        execWorkers, applyBatch                                   int
        applyTimeout                                              time.Duration
        signingKey, signingKeyFile                                string
        tlsEnable, tlsSkip, traceEnable, logJSON                  bool
        tlsCA, tlsCert, tlsKey, tlsServerName                     string
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a ledger node",
        RunE: func(cmd *cobra.Command, args []string) error {
            if id == "" { return fmt.Errorf("missing --id") }
            if logJSON { logutil.SetJSON(true) }
            ctx, cancel := signalContext()
            defer cancel()

            if traceEnable {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Printf("tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            key := signingKey
            if key == "" && signingKeyFile != "" {
                raw, err := os.ReadFile(signingKeyFile)
                if err != nil { return fmt.Errorf("signing key file: %w", err) }
                key = strings.TrimSpace(string(raw))
            }

            cfg := bootstrap.Config{
                NodeID:             id,
                ConsAddr:           consAddr,
                ConsAdv:            consAdv,
                MemBind:            memBind,
                MemAdv:             memAdv,
                MgmtAddr:           mgmtAddr,
                MgmtAdv:            mgmtAdv,
                PeersCSV:           peersCSV,
                DiscoveryKind:      discoveryKind,
                SeedsCSV:           joinCSV,
                DNSNamesCSV:        dnsNames,
                DNSPort:            dnsPort,
                DiscRefresh:        discRefresh,
                FilePath:           filePath,
                FileEnv:            fileEnv,
                ElectionTimeoutMin: electionMin,
                ElectionTimeoutMax: electionMax,
                HeartbeatInterval:  heartbeat,
                RPCTimeout:         rpcTimeout,
                ExecWorkers:        execWorkers,
                ApplyTimeout:       applyTimeout,
                ApplyBatchMax:      applyBatch,
                SigningKey:         key,
                TLSEnable:          tlsEnable,
                TLSCA:              tlsCA,
                TLSCert:            tlsCert,
                TLSKey:             tlsKey,
                TLSServerName:      tlsServerName,
                TLSSkipVerify:      tlsSkip,
                Logger:             log.Default(),
            }
            node, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            defer node.Close()

            fmt.Println("ledger node running. Press Ctrl+C to exit.")
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "node id (required)")
    cmd.Flags().StringVar(&consAddr, "cons-addr", bootstrap.DefaultConsAddr, "consensus gRPC bind addr (host:port)")
    cmd.Flags().StringVar(&consAdv, "cons-adv", "", "consensus advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&memBind, "mem-bind", bootstrap.DefaultGossipAddr, "gossip bind addr (host:port)")
    cmd.Flags().StringVar(&memAdv, "mem-adv", "", "gossip advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&mgmtAddr, "mgmt-addr", bootstrap.DefaultMgmtAddr, "management API bind addr (host:port)")
    cmd.Flags().StringVar(&mgmtAdv, "mgmt-adv", "", "management advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&peersCSV, "peers", "", "static replication peers as id@host:port, comma-separated")
    cmd.Flags().StringVar(&joinCSV, "join", "", "comma-separated gossip seeds (host:port) for discovery=static")
    cmd.Flags().StringVar(&discoveryKind, "discovery", "static", "discovery backend: static|dns|file")
    cmd.Flags().StringVar(&dnsNames, "dns-names", "", "comma-separated DNS names or SRV records (e.g., _ledger._tcp.example.com)")
    cmd.Flags().IntVar(&dnsPort, "dns-port", 17946, "port used for A/AAAA lookups")
    cmd.Flags().DurationVar(&discRefresh, "disc-refresh", 5*time.Second, "discovery refresh/cache duration")
    cmd.Flags().StringVar(&filePath, "file-path", "", "path or glob to a file with seeds (one per line or CSV)")
    cmd.Flags().StringVar(&fileEnv, "file-env", "", "ENV var name containing CSV seeds; overrides file when set")
    cmd.Flags().DurationVar(&electionMin, "election-min", 0, "election timeout lower bound (0 = engine default)")
    cmd.Flags().DurationVar(&electionMax, "election-max", 0, "election timeout upper bound (0 = engine default)")
    cmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "leader heartbeat interval (0 = engine default)")
    cmd.Flags().DurationVar(&rpcTimeout, "rpc-timeout", 3*time.Second, "per-RPC timeout for consensus and management calls")
    cmd.Flags().IntVar(&execWorkers, "exec-workers", 0, "parallel execution workers (0 = GOMAXPROCS)")
    cmd.Flags().DurationVar(&applyTimeout, "apply-timeout", 0, "batch execution deadline (0 = executor default)")
    cmd.Flags().IntVar(&applyBatch, "apply-batch", 0, "max committed entries drained per batch (0 = default)")
    cmd.Flags().StringVar(&signingKey, "signing-key", "", "shared HMAC key for replication signing")
    cmd.Flags().StringVar(&signingKeyFile, "signing-key-file", "", "file containing the shared HMAC key")
    cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable mTLS for consensus and management endpoints")
    cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to node certificate (PEM)")
    cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to node private key (PEM)")
    cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
    cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    cmd.Flags().BoolVar(&logJSON, "log-json", false, "emit log lines as JSON objects")
    return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var mf mgmtFlags
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch node status as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := mf.client()
            if err != nil { return err }
            ctx, cancel := mf.ctx()
            defer cancel()
            data, err := client.GetStatus(ctx, mf.addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            os.Stdout.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { os.Stdout.Write([]byte("\n")) }
            return nil
        },
    }
    mf.attach(cmd)
    return cmd
}

// NewSubmitCmd returns the "submit" command. The command payload is taken
// from the first argument, or from stdin when the argument is "-".
func NewSubmitCmd() *cobra.Command {
    var mf mgmtFlags
    cmd := &cobra.Command{
        Use:   "submit [command-json]",
        Short: "Submit a command to the replicated log",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            payload := []byte(args[0])
            if args[0] == "-" {
                data, err := io.ReadAll(os.Stdin)
                if err != nil { return fmt.Errorf("read stdin: %w", err) }
                payload = data
            }
            if !json.Valid(payload) {
                return fmt.Errorf("command payload must be valid JSON")
            }
            client, err := mf.client()
            if err != nil { return err }
            ctx, cancel := mf.ctx()
            defer cancel()
            resp, err := client.PostSubmit(ctx, mf.addr, transport.SubmitRequest{Command: payload})
            if err != nil { return fmt.Errorf("submit error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    mf.attach(cmd)
    return cmd
}

// NewPeerAddCmd returns the "peer-add" command.
func NewPeerAddCmd() *cobra.Command {
    var (
        mf           mgmtFlags
        id, consAddr string
    )
    cmd := &cobra.Command{
        Use:   "peer-add",
        Short: "Add a node to the replication set",
        RunE: func(cmd *cobra.Command, args []string) error {
            if id == "" || consAddr == "" {
                return fmt.Errorf("missing required flags: --id and --cons-addr")
            }
            client, err := mf.client()
            if err != nil { return err }
            ctx, cancel := mf.ctx()
            defer cancel()
            resp, err := client.PostJoin(ctx, mf.addr, transport.JoinRequest{ID: id, Addr: consAddr})
            if err != nil { return fmt.Errorf("peer-add error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "node id to add (required)")
    cmd.Flags().StringVar(&consAddr, "cons-addr", "", "consensus address of the new node (host:port, required)")
    mf.attach(cmd)
    return cmd
}

// NewPeerRemoveCmd returns the "peer-remove" command.
func NewPeerRemoveCmd() *cobra.Command {
    var (
        mf mgmtFlags
        id string
    )
    cmd := &cobra.Command{
        Use:   "peer-remove",
        Short: "Remove a node from the replication set",
        RunE: func(cmd *cobra.Command, args []string) error {
            if id == "" { return fmt.Errorf("missing required flag: --id") }
            client, err := mf.client()
            if err != nil { return err }
            ctx, cancel := mf.ctx()
            defer cancel()
            resp, err := client.PostLeave(ctx, mf.addr, transport.LeaveRequest{ID: id})
            if err != nil { return fmt.Errorf("peer-remove error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "node id to remove (required)")
    mf.attach(cmd)
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
