// Package state holds the per-node replicated state machine variables of
// the consensus protocol: current term, role, vote bookkeeping, commit and
// apply watermarks and the election deadline. One State instance is the
// node's single mutual-exclusion domain for these variables; every exported
// method is atomic with respect to the others.
package state

import (
    "errors"
    "math/rand"
    "sync"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
)

// Role is the node's position in the leadership protocol.
type Role int32

const (
    Follower Role = iota
    Candidate
    Leader
)

func (r Role) String() string {
    switch r {
    case Follower:
        return "FOLLOWER"
    case Candidate:
        return "CANDIDATE"
    case Leader:
        return "LEADER"
    default:
        return "UNKNOWN"
    }
}

const (
    DefaultElectionTimeoutMin = 150 * time.Millisecond
    DefaultElectionTimeoutMax = 300 * time.Millisecond
)

// Options configures a State. The timeout window bounds the randomized
// election timeout draws; spreading candidates across the window is the
// protocol's split-vote defense.
type Options struct {
    ElectionTimeoutMin time.Duration
    ElectionTimeoutMax time.Duration
    // Rand supplies the timeout draws. Defaults to a time-seeded source;
    // tests inject a fixed seed for reproducibility.
    Rand *rand.Rand
}

func (o *Options) Validate() error {
    if o.ElectionTimeoutMin == 0 { o.ElectionTimeoutMin = DefaultElectionTimeoutMin }
    if o.ElectionTimeoutMax == 0 { o.ElectionTimeoutMax = DefaultElectionTimeoutMax }
    if o.ElectionTimeoutMin <= 0 { return errors.New("state: election timeout min must be positive") }
    if o.ElectionTimeoutMax <= o.ElectionTimeoutMin {
        return errors.New("state: election timeout max must exceed min")
    }
    return nil
}

// State owns the node's protocol variables. The zero value is not usable;
// construct with New.
type State struct {
    mu sync.Mutex

    id            consensus.NodeID
    currentTerm   uint64
    role          Role
    votedFor      consensus.NodeID
    votesReceived int
    leaderID      consensus.NodeID

    commitIndex uint64
    lastApplied uint64

    lastHeartbeat    time.Time
    electionDeadline time.Time

    timeoutMin time.Duration
    timeoutMax time.Duration
    rng        *rand.Rand
}

func New(id consensus.NodeID, opts Options) (*State, error) {
    if id == "" { return nil, errors.New("state: empty node id") }
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    rng := opts.Rand
    if rng == nil { rng = rand.New(rand.NewSource(time.Now().UnixNano())) }
    return &State{
        id:         id,
        role:       Follower,
        timeoutMin: opts.ElectionTimeoutMin,
        timeoutMax: opts.ElectionTimeoutMax,
        rng:        rng,
    }, nil
}

func (s *State) ID() consensus.NodeID { return s.id }

func (s *State) CurrentTerm() uint64 {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.currentTerm
}

func (s *State) Role() Role {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.role
}

func (s *State) VotedFor() consensus.NodeID {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.votedFor
}

func (s *State) VotesReceived() int {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.votesReceived
}

func (s *State) LeaderID() consensus.NodeID {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.leaderID
}

func (s *State) CommitIndex() uint64 {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.commitIndex
}

func (s *State) LastApplied() uint64 {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.lastApplied
}

func (s *State) LastHeartbeat() time.Time {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.lastHeartbeat
}

func (s *State) ElectionDeadline() time.Time {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.electionDeadline
}

// TransitionTo applies the legal role transitions: follower to candidate,
// candidate to leader, and any role back to follower. Everything else
// (notably FOLLOWER -> LEADER) is rejected with the state unchanged.
func (s *State) TransitionTo(to Role) bool {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.transitionLocked(to)
}

func (s *State) transitionLocked(to Role) bool {
    switch {
    case to == Follower:
        // Always legal, including self-transition.
    case to == Candidate && s.role == Follower:
    case to == Leader && s.role == Candidate:
    default:
        return false
    }
    if to != s.role && s.role == Leader { s.leaderID = "" }
    if to != Candidate && to != Leader { s.votesReceived = 0 }
    s.role = to
    return true
}

// SetTermIfHigher adopts a strictly higher term: the vote is cleared, a
// candidate or leader falls back to follower. Lower or equal terms are
// no-ops, keeping currentTerm monotonic.
func (s *State) SetTermIfHigher(term uint64) bool {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.adoptTermLocked(term)
}

func (s *State) adoptTermLocked(term uint64) bool {
    if term <= s.currentTerm { return false }
    s.currentTerm = term
    s.votedFor = ""
    s.leaderID = ""
    s.transitionLocked(Follower)
    return true
}

// StartElection moves the node into a new election round: term increments,
// the role becomes candidate (when legal), the node votes for itself and
// the deadline is armed at now+timeout. Returns the election term, or 0 if
// the node is a leader and may not stand.
func (s *State) StartElection(timeout time.Duration) uint64 {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.role == Follower && !s.transitionLocked(Candidate) { return 0 }
    if s.role != Candidate { return 0 }
    s.currentTerm++
    s.votedFor = s.id
    s.votesReceived = 1
    s.leaderID = ""
    s.electionDeadline = time.Now().Add(timeout)
    return s.currentTerm
}

// ElectionTimeout draws a fresh randomized timeout from the configured
// window. Consecutive draws differ with overwhelming probability, which is
// what keeps simultaneous candidates from colliding forever.
func (s *State) ElectionTimeout() time.Duration {
    s.mu.Lock(); defer s.mu.Unlock()
    spread := int64(s.timeoutMax - s.timeoutMin)
    return s.timeoutMin + time.Duration(s.rng.Int63n(spread))
}

// ResetDeadline arms the election deadline at now+timeout.
func (s *State) ResetDeadline(timeout time.Duration) {
    s.mu.Lock(); defer s.mu.Unlock()
    s.electionDeadline = time.Now().Add(timeout)
}

// DeadlineExpired reports whether the armed election deadline has passed.
// An unarmed (zero) deadline counts as expired so a fresh follower can
// stand without waiting for a heartbeat that may never come.
func (s *State) DeadlineExpired() bool {
    s.mu.Lock(); defer s.mu.Unlock()
    return !time.Now().Before(s.electionDeadline)
}

// TryGrantVote records a vote for the candidate iff no conflicting vote was
// cast this term. The check and the write are one atomic step, so two
// candidates racing for the same voter can never both succeed.
func (s *State) TryGrantVote(candidate consensus.NodeID) bool {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.votedFor != "" && s.votedFor != candidate { return false }
    s.votedFor = candidate
    return true
}

// RecordVote tallies a granted vote for the current candidacy and returns
// the running total. Non-candidates ignore late grants.
func (s *State) RecordVote(granted bool) int {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.role != Candidate { return s.votesReceived }
    if granted { s.votesReceived++ }
    return s.votesReceived
}

// WonElection promotes the node to leader iff it is still the candidate of
// exactly that term. A win arriving after the round moved on is discarded.
func (s *State) WonElection(term uint64) bool {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.role != Candidate || s.currentTerm != term { return false }
    if !s.transitionLocked(Leader) { return false }
    s.leaderID = s.id
    return true
}

// ObserveLeader processes an authority claim carried by an append-entries
// request. A term below ours is rejected untouched. Otherwise the term is
// adopted if higher, a candidate (or deposed leader) falls back to
// follower, the leader is recorded and the deadline pushed out by extend.
func (s *State) ObserveLeader(term uint64, leader consensus.NodeID, extend time.Duration) bool {
    s.mu.Lock(); defer s.mu.Unlock()
    if term < s.currentTerm { return false }
    s.adoptTermLocked(term)
    if s.role != Follower { s.transitionLocked(Follower) }
    s.leaderID = leader
    now := time.Now()
    s.lastHeartbeat = now
    s.electionDeadline = now.Add(extend)
    return true
}

// LeaderTerm returns the current term and whether this node leads it.
// Replication gates its append path on this single atomic read.
func (s *State) LeaderTerm() (uint64, bool) {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.currentTerm, s.role == Leader
}

// SetCommitIndex advances the commit watermark; regressions are ignored.
// Returns true when the watermark moved.
func (s *State) SetCommitIndex(idx uint64) bool {
    s.mu.Lock(); defer s.mu.Unlock()
    if idx <= s.commitIndex { return false }
    s.commitIndex = idx
    return true
}

// SetLastApplied advances the apply watermark, clamped so that
// lastApplied never overtakes commitIndex.
func (s *State) SetLastApplied(idx uint64) uint64 {
    s.mu.Lock(); defer s.mu.Unlock()
    if idx > s.commitIndex { idx = s.commitIndex }
    if idx > s.lastApplied { s.lastApplied = idx }
    return s.lastApplied
}

// Snapshot is a consistent point-in-time copy of the protocol variables.
type Snapshot struct {
    ID            consensus.NodeID `json:"id"`
    Term          uint64           `json:"term"`
    Role          string           `json:"role"`
    VotedFor      consensus.NodeID `json:"votedFor,omitempty"`
    LeaderID      consensus.NodeID `json:"leaderId,omitempty"`
    CommitIndex   uint64           `json:"commitIndex"`
    LastApplied   uint64           `json:"lastApplied"`
    LastHeartbeat time.Time        `json:"lastHeartbeat,omitempty"`
}

func (s *State) Snapshot() Snapshot {
    s.mu.Lock(); defer s.mu.Unlock()
    return Snapshot{
        ID:            s.id,
        Term:          s.currentTerm,
        Role:          s.role.String(),
        VotedFor:      s.votedFor,
        LeaderID:      s.leaderID,
        CommitIndex:   s.commitIndex,
        LastApplied:   s.lastApplied,
        LastHeartbeat: s.lastHeartbeat,
    }
}
