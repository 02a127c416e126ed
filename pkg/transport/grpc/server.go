package grpc

import (
    "context"
    "crypto/tls"
    "net"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/tracing"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
)

// Server implements transport.PeerServer over gRPC using a JSON codec.
// It exposes the consensus RPCs (vote and append) to peers.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *grpc.Server
    tlsCfg *tls.Config
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// consensusServer defines the methods we expose.
type consensusServer interface {
    RequestVote(ctx context.Context, in *consensus.VoteRequest) (*consensus.VoteResponse, error)
    AppendEntries(ctx context.Context, in *consensus.AppendEntriesRequest) (*consensus.AppendEntriesResponse, error)
}

type consensusImpl struct{ h consensus.Handler }

func (c *consensusImpl) RequestVote(ctx context.Context, in *consensus.VoteRequest) (*consensus.VoteResponse, error) {
    if in == nil { in = &consensus.VoteRequest{} }
    ctx, end := tracing.StartSpan(ctx, "grpc.request_vote")
    defer end()
    out := c.h.HandleVoteRequest(ctx, *in)
    return &out, nil
}

func (c *consensusImpl) AppendEntries(ctx context.Context, in *consensus.AppendEntriesRequest) (*consensus.AppendEntriesResponse, error) {
    if in == nil { in = &consensus.AppendEntriesRequest{} }
    ctx, end := tracing.StartSpan(ctx, "grpc.append_entries")
    defer end()
    out := c.h.HandleAppendEntries(ctx, *in)
    return &out, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Consensus_serviceDesc = grpc.ServiceDesc{
    ServiceName: "ledger.v1.Consensus",
    HandlerType: (*consensusServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "RequestVote", Handler: _Consensus_RequestVote_Handler},
        {MethodName: "AppendEntries", Handler: _Consensus_AppendEntries_Handler},
    },
}

func _Consensus_RequestVote_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(consensus.VoteRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(consensusServer).RequestVote(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ledger.v1.Consensus/RequestVote"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(consensusServer).RequestVote(ctx, req.(*consensus.VoteRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Consensus_AppendEntries_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(consensus.AppendEntriesRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(consensusServer).AppendEntries(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ledger.v1.Consensus/AppendEntries"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(consensusServer).AppendEntries(ctx, req.(*consensus.AppendEntriesRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, h consensus.Handler) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    // Force JSON codec to avoid requiring protobuf types
    var opts []grpc.ServerOption
    opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
    // keepalive settings tuned for the steady heartbeat traffic
    opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
    opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    s.srv = srv
    // Health service (always serving for now)
    healthSrv := health.NewServer()
    healthpb.RegisterHealthServer(srv, healthSrv)
    srv.RegisterService(&_Consensus_serviceDesc, &consensusImpl{h: h})

    go func() {
        <-ctx.Done()
        // Graceful stop with a small timeout fallback
        ch := make(chan struct{})
        go func() { srv.GracefulStop(); close(ch) }()
        select {
        case <-ch:
        case <-time.After(2 * time.Second):
            srv.Stop()
        }
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

// Addr returns the actual listen address once started, else the configured bind.
func (s *Server) Addr() string {
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    ch := make(chan struct{})
    go func() { s.srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        s.srv.Stop()
    }
    s.srv = nil
    if s.lis != nil { _ = s.lis.Close(); s.lis = nil }
    return nil
}

var _ transport.PeerServer = (*Server)(nil)
