// Package consensus defines the wire types and shared contracts of the
// HyperRAFT++ replication protocol: vote and append-entries messages, the
// replicated log entry, peer bookkeeping and quorum arithmetic. The engine
// itself lives in the state, election and replication subpackages.
package consensus

import (
    "context"
    "time"
)

// NodeID uniquely identifies a node within the cluster.
type NodeID string

// Peer is a remote cluster member as seen by the consensus engine. Addr is
// the peer's consensus RPC endpoint.
type Peer struct {
    ID   NodeID `json:"id"`
    Addr string `json:"addr"`
}

// LeaderInfo identifies the leader of a term, as observed locally.
type LeaderInfo struct {
    ID   NodeID `json:"id"`
    Term uint64 `json:"term"`
}

// LogEntry is one replicated command. Entries are immutable once appended;
// a conflicting suffix may only be replaced wholesale by a request from a
// leader with an equal or higher term. Index 0 is reserved for the sentinel.
type LogEntry struct {
    Index     uint64    `json:"index"`
    Term      uint64    `json:"term"`
    Command   []byte    `json:"command,omitempty"`
    Timestamp time.Time `json:"timestamp"`
}

// Sentinel returns the reserved entry at index 0. It anchors consistency
// checks so that the first real entry (index 1) has a valid predecessor; it
// is never shipped to the executor.
func Sentinel() LogEntry {
    return LogEntry{Index: 0, Term: 0}
}

// VoteRequest solicits a vote for candidateId at term. LastLogIndex and
// LastLogTerm let voters enforce the up-to-date-log rule.
type VoteRequest struct {
    Term         uint64 `json:"term"`
    CandidateID  NodeID `json:"candidateId"`
    LastLogIndex uint64 `json:"lastLogIndex"`
    LastLogTerm  uint64 `json:"lastLogTerm"`
}

// VoteResponse is the voter's decision. Term carries the voter's current
// term so a stale candidate can step down.
type VoteResponse struct {
    Term        uint64 `json:"term"`
    VoterID     NodeID `json:"voterId"`
    VoteGranted bool   `json:"voteGranted"`
}

// AppendEntriesRequest replicates entries and doubles as the leader
// heartbeat when Entries is empty. Signature is an opaque leader signature
// over the request digest; empty when signing is not configured.
type AppendEntriesRequest struct {
    Term         uint64     `json:"term"`
    LeaderID     NodeID     `json:"leaderId"`
    PrevLogIndex uint64     `json:"prevLogIndex"`
    PrevLogTerm  uint64     `json:"prevLogTerm"`
    Entries      []LogEntry `json:"entries,omitempty"`
    LeaderCommit uint64     `json:"leaderCommit"`
    Signature    []byte     `json:"signature,omitempty"`
}

// Heartbeat reports whether the request carries no entries.
func (r AppendEntriesRequest) Heartbeat() bool { return len(r.Entries) == 0 }

// AppendEntriesResponse reports the follower's verdict. On failure the
// Conflict fields hint where the leader should back its cursor up to:
// ConflictTerm is the term of the conflicting entry (0 when the follower's
// log is simply too short) and ConflictIndex the first index of that term.
type AppendEntriesResponse struct {
    Term          uint64 `json:"term"`
    Success       bool   `json:"success"`
    MatchIndex    uint64 `json:"matchIndex,omitempty"`
    ConflictIndex uint64 `json:"conflictIndex,omitempty"`
    ConflictTerm  uint64 `json:"conflictTerm,omitempty"`
}

// Handler is implemented by the node core and invoked by transport servers
// for incoming peer RPCs. Implementations never return an error: protocol
// rejections travel inside the response (stale terms, log conflicts and
// denied votes are expected outcomes, not failures).
type Handler interface {
    HandleVoteRequest(ctx context.Context, req VoteRequest) VoteResponse
    HandleAppendEntries(ctx context.Context, req AppendEntriesRequest) AppendEntriesResponse
}

// Quorum returns the strict majority for a cluster of n members.
func Quorum(n int) int { return n/2 + 1 }
