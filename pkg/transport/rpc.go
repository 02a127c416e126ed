package transport

import (
    "context"
    "encoding/json"
)

// StatusFunc returns a JSON-encoded status payload for management /status.
// Using []byte avoids import cycles on cluster types.
type StatusFunc func(ctx context.Context) ([]byte, error)

// SubmitRequest carries one client command to be appended to the replicated
// log. The command bytes are opaque to the node.
type SubmitRequest struct {
    Command json.RawMessage `json:"command"`
}

// SubmitResponse reports the assigned log position, or rejection with an
// optional leader hint for client-side redirect.
type SubmitResponse struct {
    Accepted bool   `json:"accepted"`
    Index    uint64 `json:"index,omitempty"`
    Term     uint64 `json:"term,omitempty"`
    Leader   string `json:"leader,omitempty"`
    Error    string `json:"error,omitempty"`
}

// SubmitFunc handles command submissions (leader-only).
type SubmitFunc func(ctx context.Context, req SubmitRequest) (SubmitResponse, error)

// JoinRequest describes a join intent from a node and carries the consensus
// address that should be added as a replication target.
type JoinRequest struct {
    ID   string `json:"id"`
    Addr string `json:"addr"`
}

// JoinResponse indicates acceptance and optionally leader address or error.
type JoinResponse struct {
    Accepted bool   `json:"accepted"`
    Leader   string `json:"leader,omitempty"`
    Error    string `json:"error,omitempty"`
}

// JoinFunc handles node join requests (leader-only).
type JoinFunc func(ctx context.Context, req JoinRequest) (JoinResponse, error)

// LeaveRequest requests removal of a node from the cluster.
type LeaveRequest struct {
    ID string `json:"id"`
}

// LeaveResponse indicates whether the leave/remove was accepted.
type LeaveResponse struct {
    Accepted bool   `json:"accepted"`
    Error    string `json:"error,omitempty"`
}

// LeaveFunc handles node leave requests (leader-only).
type LeaveFunc func(ctx context.Context, req LeaveRequest) (LeaveResponse, error)

// RPCServer exposes management endpoints (/status, /submit, /peers/...) for
// operator tooling and intra-cluster forwarding.
type RPCServer interface {
    Start(ctx context.Context, status StatusFunc, submit SubmitFunc, join JoinFunc, leave LeaveFunc) error
    Addr() string
    Stop(ctx context.Context) error
}

// RPCClient performs management calls against other nodes.
type RPCClient interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
    PostSubmit(ctx context.Context, addr string, req SubmitRequest) (SubmitResponse, error)
    PostJoin(ctx context.Context, addr string, req JoinRequest) (JoinResponse, error)
    PostLeave(ctx context.Context, addr string, req LeaveRequest) (LeaveResponse, error)
}
