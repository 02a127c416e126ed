package cluster

import (
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/executor"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/membership"
)

// Status is a high-level, JSON-serializable snapshot of one node suitable
// for external status endpoints and tooling.
type Status struct {
    // ID is this node's identifier.
    ID string
    // Role is the node's consensus role (FOLLOWER, CANDIDATE or LEADER).
    Role string
    // Healthy indicates whether a leader is known for the current term.
    Healthy bool
    // Term is the current consensus term as observed by this node.
    Term uint64
    // LeaderID is the identifier of the current leader, if any.
    LeaderID string
    // LeaderAddr is the management address of the current leader, if known.
    LeaderAddr string
    // LastIndex, CommitIndex and LastApplied describe local log progress.
    LastIndex   uint64
    CommitIndex uint64
    LastApplied uint64
    // Peers lists the replication set (consensus peers, excluding self).
    Peers []consensus.Peer
    // Members lists the membership view (gossip), when gossip is enabled.
    Members []membership.Member
    // Executor carries cumulative batch execution counters.
    Executor executor.Stats
    // Warnings contains any non-fatal observations (e.g., degraded states).
    Warnings []string
}
