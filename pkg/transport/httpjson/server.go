package httpjson

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "log"
    "net"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/tracing"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
)

// Server exposes the management API over HTTP/JSON: node status, command
// submission, membership changes and Prometheus metrics. It is intended for
// operator tooling and client-side leader redirect, not for the consensus
// hot path.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *http.Server
    logger *log.Logger
    tlsCfg *tls.Config
}

// NewServer binds to the given TCP address (e.g., ":17946").
func NewServer(bind string, logger *log.Logger) *Server {
    if logger == nil { logger = log.Default() }
    return &Server{bind: bind, logger: logger}
}

// UseTLS enables TLS for the HTTP server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
    if err := json.NewDecoder(r.Body).Decode(v); err != nil {
        http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
        return false
    }
    return true
}

func reply(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

// Start launches the HTTP server and registers handlers backed by the provided
// functions. The server is shut down when the context is canceled.
func (s *Server) Start(ctx context.Context, status transport.StatusFunc, submit transport.SubmitFunc, join transport.JoinFunc, leave transport.LeaveFunc) error {
    r := chi.NewRouter()
    r.Use(middleware.Recoverer)

    r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
        ctx, end := tracing.StartSpan(req.Context(), "http.status")
        defer end()
        data, err := status(ctx)
        if err != nil { http.Error(w, fmt.Sprintf("status error: %v", err), http.StatusInternalServerError); return }
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write(data)
    })
    r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    // Prometheus metrics
    r.Handle("/metrics", promhttp.Handler())

    r.Post("/submit", func(w http.ResponseWriter, req *http.Request) {
        if submit == nil { http.Error(w, "submit not supported", http.StatusNotImplemented); return }
        var in transport.SubmitRequest
        if !decode(w, req, &in) { return }
        ctx, end := tracing.StartSpan(req.Context(), "http.submit")
        defer end()
        resp, err := submit(ctx, in)
        if err != nil {
            if resp.Error == "" { resp.Error = err.Error() }
            reply(w, http.StatusInternalServerError, resp)
            return
        }
        // Rejections carry a leader hint; clients retry against resp.Leader.
        reply(w, http.StatusOK, resp)
    })

    r.Route("/peers", func(r chi.Router) {
        r.Post("/join", func(w http.ResponseWriter, req *http.Request) {
            if join == nil { http.Error(w, "join not supported", http.StatusNotImplemented); return }
            var in transport.JoinRequest
            if !decode(w, req, &in) { return }
            ctx, end := tracing.StartSpan(req.Context(), "http.join")
            defer end()
            resp, err := join(ctx, in)
            if err != nil {
                if resp.Error == "" { resp.Error = err.Error() }
                reply(w, http.StatusInternalServerError, resp)
                return
            }
            reply(w, http.StatusOK, resp)
        })
        r.Post("/leave", func(w http.ResponseWriter, req *http.Request) {
            if leave == nil { http.Error(w, "leave not supported", http.StatusNotImplemented); return }
            var in transport.LeaveRequest
            if !decode(w, req, &in) { return }
            ctx, end := tracing.StartSpan(req.Context(), "http.leave")
            defer end()
            resp, err := leave(ctx, in)
            if err != nil {
                if resp.Error == "" { resp.Error = err.Error() }
                reply(w, http.StatusInternalServerError, resp)
                return
            }
            reply(w, http.StatusOK, resp)
        })
    })

    s.srv = &http.Server{Addr: s.bind, Handler: r}

    ln, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    if s.tlsCfg != nil {
        ln = tls.NewListener(ln, s.tlsCfg)
    }
    s.lis = ln

    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() {
        if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
            s.logger.Printf("httpjson: server error: %v", err)
        }
    }()
    return nil
}

// Addr returns the actual listen address once started, else the configured bind.
func (s *Server) Addr() string {
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

// Stop attempts a graceful shutdown with a short timeout.
func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    c, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    err := s.srv.Shutdown(c)
    s.srv = nil
    s.lis = nil
    return err
}

var _ transport.RPCServer = (*Server)(nil)
