// Package election runs the leader election side of the consensus
// protocol: candidacy rounds, vote solicitation and granting, and the
// leader heartbeat ticker. It mutates protocol variables only through
// state.State, so all role/term decisions stay inside one lock domain.
package election

import (
    "context"
    "errors"
    "log"
    "sync"
    "sync/atomic"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/state"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/internal/logutil"
    obsmetrics "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/metrics"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/tracing"
)

// RoundState tracks the lifecycle of the most recent election round.
type RoundState int32

const (
    RoundIdle RoundState = iota
    RoundSoliciting
    RoundWon
    RoundLost
    RoundTimedOut
)

func (r RoundState) String() string {
    switch r {
    case RoundIdle:
        return "IDLE"
    case RoundSoliciting:
        return "SOLICITING"
    case RoundWon:
        return "WON"
    case RoundLost:
        return "LOST"
    case RoundTimedOut:
        return "TIMED_OUT"
    default:
        return "UNKNOWN"
    }
}

// Transport issues consensus RPCs to a single peer. Call errors and
// timeouts are treated as absent responses; a slow peer is never fatal.
type Transport interface {
    RequestVote(ctx context.Context, peer consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error)
    AppendEntries(ctx context.Context, peer consensus.Peer, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error)
}

// LogPosition exposes the log tail for the up-to-date-log voting rule and
// for heartbeat consistency fields.
type LogPosition interface {
    LastIndex() uint64
    LastTerm() uint64
}

// Broadcaster is the replication fan-out hooked in by the node: Reset
// seeds fresh per-follower cursors on a win, Broadcast ships cursor-aware
// append-entries (empty ones double as heartbeats).
type Broadcaster interface {
    Reset()
    Broadcast(ctx context.Context)
}

const (
    DefaultHeartbeatInterval = 50 * time.Millisecond

    // How often the monitor loop re-checks the election deadline.
    deadlineTick = 15 * time.Millisecond
)

type Options struct {
    State     *state.State
    Peers     *consensus.PeerSet
    Transport Transport
    Log       LogPosition
    // HeartbeatInterval is the leader's append-entries cadence. Must stay
    // well under the election timeout window or followers will keep
    // standing for election.
    HeartbeatInterval time.Duration
    Logger            *log.Logger
}

func (o *Options) Validate() error {
    if o.State == nil { return errors.New("election: nil state") }
    if o.Peers == nil { return errors.New("election: nil peer set") }
    if o.Transport == nil { return errors.New("election: nil transport") }
    if o.Log == nil { return errors.New("election: nil log position") }
    if o.HeartbeatInterval == 0 { o.HeartbeatInterval = DefaultHeartbeatInterval }
    if o.HeartbeatInterval < 0 { return errors.New("election: negative heartbeat interval") }
    return nil
}

// Coordinator drives election rounds for one node.
type Coordinator struct {
    st     *state.State
    peers  *consensus.PeerSet
    tr     Transport
    logpos LogPosition
    hbIval time.Duration
    logger *log.Logger

    mu          sync.Mutex
    round       RoundState
    broadcaster Broadcaster
    hbActive    atomic.Bool

    started atomic.Uint64
    won     atomic.Uint64
    durNS   atomic.Int64
}

func New(opts Options) (*Coordinator, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    return &Coordinator{
        st:     opts.State,
        peers:  opts.Peers,
        tr:     opts.Transport,
        logpos: opts.Log,
        hbIval: opts.HeartbeatInterval,
        logger: opts.Logger,
    }, nil
}

// UseBroadcaster wires the replication fan-out. Without one the
// coordinator falls back to bare empty append-entries heartbeats.
func (c *Coordinator) UseBroadcaster(b Broadcaster) {
    c.mu.Lock(); defer c.mu.Unlock()
    c.broadcaster = b
}

func (c *Coordinator) Round() RoundState {
    c.mu.Lock(); defer c.mu.Unlock()
    return c.round
}

func (c *Coordinator) setRound(r RoundState) {
    c.mu.Lock(); defer c.mu.Unlock()
    c.round = r
}

// Run monitors the election deadline until ctx is cancelled. Followers and
// candidates whose deadline expires stand for election; leaders only keep
// their heartbeat ticker going.
func (c *Coordinator) Run(ctx context.Context) {
    c.st.ResetDeadline(c.st.ElectionTimeout())
    t := time.NewTicker(deadlineTick)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
            if c.st.Role() == state.Leader { continue }
            if !c.st.DeadlineExpired() { continue }
            c.StartElection(ctx)
        }
    }
}

// StartElection runs one candidacy round and reports whether this node won
// leadership. Only one round runs at a time; a second caller loses fast.
func (c *Coordinator) StartElection(ctx context.Context) bool {
    c.mu.Lock()
    if c.round == RoundSoliciting { c.mu.Unlock(); return false }
    c.round = RoundSoliciting
    c.mu.Unlock()

    ctx, end := tracing.StartSpan(ctx, "consensus.election")
    defer end()

    start := time.Now()
    timeout := c.st.ElectionTimeout()
    term := c.st.StartElection(timeout)
    if term == 0 {
        // Leaders do not stand.
        c.setRound(RoundIdle)
        return false
    }
    c.started.Add(1)
    obsmetrics.ElectionsStarted.Inc()
    obsmetrics.CurrentTerm.Set(float64(term))

    peers := c.peers.Others()
    need := c.peers.QuorumSize()
    logutil.Infof(c.logger, "election: candidacy term=%d peers=%d need=%d timeout=%s", term, len(peers), need, timeout)

    if c.st.VotesReceived() >= need {
        // Single-node cluster: the self-vote is already a majority.
        return c.finishWin(ctx, term, start)
    }

    req := consensus.VoteRequest{
        Term:         term,
        CandidateID:  c.st.ID(),
        LastLogIndex: c.logpos.LastIndex(),
        LastLogTerm:  c.logpos.LastTerm(),
    }
    rctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    responses := make(chan consensus.VoteResponse, len(peers))
    for _, p := range peers {
        go func(p consensus.Peer) {
            resp, err := c.tr.RequestVote(rctx, p, req)
            if err != nil { return }
            select {
            case responses <- resp:
            case <-rctx.Done():
            }
        }(p)
    }

    pending := len(peers)
    for pending > 0 {
        select {
        case resp := <-responses:
            pending--
            if resp.Term > term {
                c.st.SetTermIfHigher(resp.Term)
                c.finishRound(RoundLost, start)
                logutil.Infof(c.logger, "election: lost term=%d to higher term=%d from %s", term, resp.Term, resp.VoterID)
                return false
            }
            if resp.VoteGranted && resp.Term == term {
                if c.st.RecordVote(true) >= need {
                    return c.finishWin(ctx, term, start)
                }
            }
        case <-rctx.Done():
            c.st.TransitionTo(state.Follower)
            c.finishRound(RoundTimedOut, start)
            logutil.Warnf(c.logger, "election: timed out term=%d votes=%d/%d", term, c.st.VotesReceived(), need)
            return false
        }
    }

    // Every peer answered and the majority never materialized.
    c.st.TransitionTo(state.Follower)
    c.finishRound(RoundLost, start)
    logutil.Infof(c.logger, "election: split term=%d votes=%d/%d", term, c.st.VotesReceived(), need)
    return false
}

func (c *Coordinator) finishWin(ctx context.Context, term uint64, start time.Time) bool {
    if !c.st.WonElection(term) {
        // The round moved on underneath us (higher term observed).
        c.finishRound(RoundLost, start)
        return false
    }
    c.finishRound(RoundWon, start)
    c.won.Add(1)
    obsmetrics.ElectionsWon.Inc()
    logutil.Infof(c.logger, "election: won term=%d votes=%d", term, c.st.VotesReceived())

    c.mu.Lock()
    b := c.broadcaster
    c.mu.Unlock()
    if b != nil { b.Reset() }
    c.startHeartbeats(ctx)
    return true
}

func (c *Coordinator) finishRound(r RoundState, start time.Time) {
    d := time.Since(start)
    c.durNS.Add(int64(d))
    obsmetrics.ElectionDuration.Observe(d.Seconds())
    c.setRound(r)
}

// startHeartbeats launches the leader's append-entries ticker. The loop
// stops itself as soon as leadership is lost, so a deposed leader goes
// quiet within one interval.
func (c *Coordinator) startHeartbeats(ctx context.Context) {
    if !c.hbActive.CompareAndSwap(false, true) { return }
    c.beat(ctx)
    go func() {
        defer c.hbActive.Store(false)
        t := time.NewTicker(c.hbIval)
        defer t.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-t.C:
                if c.st.Role() != state.Leader { return }
                c.beat(ctx)
            }
        }
    }()
}

func (c *Coordinator) beat(ctx context.Context) {
    c.mu.Lock()
    b := c.broadcaster
    c.mu.Unlock()
    if b != nil {
        b.Broadcast(ctx)
        return
    }
    term, ok := c.st.LeaderTerm()
    if !ok { return }
    req := consensus.AppendEntriesRequest{
        Term:         term,
        LeaderID:     c.st.ID(),
        PrevLogIndex: c.logpos.LastIndex(),
        PrevLogTerm:  c.logpos.LastTerm(),
        LeaderCommit: c.st.CommitIndex(),
    }
    for _, p := range c.peers.Others() {
        go func(p consensus.Peer) {
            hctx, cancel := context.WithTimeout(ctx, c.hbIval)
            defer cancel()
            resp, err := c.tr.AppendEntries(hctx, p, req)
            if err != nil { return }
            if resp.Term > term { c.st.SetTermIfHigher(resp.Term) }
        }(p)
    }
}

// HandleVoteRequest is the voter side: grant iff the candidate's term is
// current (a higher one is adopted first), no conflicting vote was cast
// this term, and the candidate's log is at least as up-to-date as ours.
// Stale candidates are rejected with no side effects.
func (c *Coordinator) HandleVoteRequest(ctx context.Context, req consensus.VoteRequest) consensus.VoteResponse {
    resp := consensus.VoteResponse{VoterID: c.st.ID()}
    cur := c.st.CurrentTerm()
    if req.Term < cur {
        resp.Term = cur
        return resp
    }
    c.st.SetTermIfHigher(req.Term)
    resp.Term = c.st.CurrentTerm()

    lastIdx, lastTerm := c.logpos.LastIndex(), c.logpos.LastTerm()
    upToDate := req.LastLogTerm > lastTerm ||
        (req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIdx)
    if upToDate && c.st.TryGrantVote(req.CandidateID) {
        resp.VoteGranted = true
        c.st.ResetDeadline(c.st.ElectionTimeout())
        logutil.Infof(c.logger, "election: vote granted term=%d candidate=%s", req.Term, req.CandidateID)
    }
    return resp
}

// Metrics is a point-in-time snapshot of round accounting.
type Metrics struct {
    Started     uint64
    Won         uint64
    AvgDuration time.Duration
    WinRate     float64
}

func (c *Coordinator) Metrics() Metrics {
    m := Metrics{Started: c.started.Load(), Won: c.won.Load()}
    if m.Started > 0 {
        m.AvgDuration = time.Duration(c.durNS.Load() / int64(m.Started))
        m.WinRate = float64(m.Won) / float64(m.Started)
    }
    return m
}
