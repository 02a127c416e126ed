package transport

import (
    "context"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
)

// PeerServer serves the peer-facing consensus RPCs (vote and append) and
// forwards them to the node's handler.
type PeerServer interface {
    Start(ctx context.Context, h consensus.Handler) error
    // Addr returns the local bind/advertise address if applicable.
    Addr() string
    Stop(ctx context.Context) error
}

// PeerClient performs consensus RPCs against remote peers. One client is
// shared across all peers; implementations cache connections per address.
type PeerClient interface {
    RequestVote(ctx context.Context, peer consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error)
    AppendEntries(ctx context.Context, peer consensus.Peer, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error)
    Close() error
}
