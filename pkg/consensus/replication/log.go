// Package replication owns the replicated log: the leader append and
// fan-out path, the follower consistency check, per-follower cursors and
// the majority commit rule. The log is in-memory; durability beneath it is
// the embedding application's concern.
package replication

import (
    "context"
    "encoding/json"
    "errors"
    "log"
    "sync"
    "sync/atomic"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/election"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/state"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/internal/logutil"
    obsmetrics "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/metrics"
)

// Transport ships one append-entries round-trip to a peer. Errors and
// timeouts count as absent responses; the periodic broadcast retries.
type Transport interface {
    AppendEntries(ctx context.Context, peer consensus.Peer, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error)
}

const (
    DefaultRPCTimeout = 250 * time.Millisecond

    // Upper bound on immediate re-sends while backtracking a follower's
    // cursor; beyond this the periodic broadcast takes over.
    maxBacktrackRounds = 8
)

type Options struct {
    State     *state.State
    Peers     *consensus.PeerSet
    Transport Transport
    // Signer, when set, signs every outgoing request digest; followers
    // configured with a signer reject requests that fail verification.
    Signer     consensus.Signer
    RPCTimeout time.Duration
    Logger     *log.Logger
}

func (o *Options) Validate() error {
    if o.State == nil { return errors.New("replication: nil state") }
    if o.Peers == nil { return errors.New("replication: nil peer set") }
    if o.Transport == nil { return errors.New("replication: nil transport") }
    if o.RPCTimeout == 0 { o.RPCTimeout = DefaultRPCTimeout }
    if o.RPCTimeout < 0 { return errors.New("replication: negative rpc timeout") }
    return nil
}

// Cursor is the leader's view of one follower: NextIndex is the first
// entry to send, MatchIndex the highest entry known replicated there.
// Cursors live for one leadership session and are discarded on role change.
type Cursor struct {
    NextIndex  uint64 `json:"nextIndex"`
    MatchIndex uint64 `json:"matchIndex"`
}

type cursor struct {
    next     uint64
    match    uint64
    inflight bool
}

// Log is the in-memory replicated log. Index 0 holds the sentinel entry,
// so lastIndex == len(entries)-1 and index 1 is the first real command.
type Log struct {
    st     *state.State
    peers  *consensus.PeerSet
    tr     Transport
    signer consensus.Signer
    logger *log.Logger
    rpcTO  time.Duration

    mu      sync.Mutex
    entries []consensus.LogEntry
    cursors map[consensus.NodeID]*cursor

    commitCh chan struct{}

    appended  atomic.Uint64
    committed atomic.Uint64
    latNS     atomic.Int64
    latN      atomic.Uint64
}

func New(opts Options) (*Log, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    return &Log{
        st:       opts.State,
        peers:    opts.Peers,
        tr:       opts.Transport,
        signer:   opts.Signer,
        logger:   opts.Logger,
        rpcTO:    opts.RPCTimeout,
        entries:  []consensus.LogEntry{consensus.Sentinel()},
        cursors:  make(map[consensus.NodeID]*cursor),
        commitCh: make(chan struct{}, 1),
    }, nil
}

func (l *Log) lastIndexLocked() uint64 { return uint64(len(l.entries) - 1) }

// LastIndex is the index of the newest entry (0 when only the sentinel).
func (l *Log) LastIndex() uint64 {
    l.mu.Lock(); defer l.mu.Unlock()
    return l.lastIndexLocked()
}

// LastTerm is the term of the newest entry.
func (l *Log) LastTerm() uint64 {
    l.mu.Lock(); defer l.mu.Unlock()
    return l.entries[len(l.entries)-1].Term
}

// Len counts all entries including the sentinel.
func (l *Log) Len() int {
    l.mu.Lock(); defer l.mu.Unlock()
    return len(l.entries)
}

func (l *Log) Entry(index uint64) (consensus.LogEntry, bool) {
    l.mu.Lock(); defer l.mu.Unlock()
    if index > l.lastIndexLocked() { return consensus.LogEntry{}, false }
    return l.entries[index], true
}

// Range copies entries in [lo, hi], clamped to the log bounds. The
// sentinel is excluded even when lo is 0.
func (l *Log) Range(lo, hi uint64) []consensus.LogEntry {
    l.mu.Lock(); defer l.mu.Unlock()
    if lo == 0 { lo = 1 }
    if hi > l.lastIndexLocked() { hi = l.lastIndexLocked() }
    if lo > hi { return nil }
    out := make([]consensus.LogEntry, hi-lo+1)
    copy(out, l.entries[lo:hi+1])
    return out
}

// AppendAsLeader turns commands into entries at the leader's current term
// and fans them out. Rejected with no side effects unless this node is
// leader at call time.
func (l *Log) AppendAsLeader(ctx context.Context, commands [][]byte) ([]consensus.LogEntry, bool) {
    l.mu.Lock()
    term, isLeader := l.st.LeaderTerm()
    if !isLeader {
        l.mu.Unlock()
        return nil, false
    }
    now := time.Now()
    base := l.lastIndexLocked()
    out := make([]consensus.LogEntry, 0, len(commands))
    for i, cmd := range commands {
        e := consensus.LogEntry{Index: base + 1 + uint64(i), Term: term, Command: cmd, Timestamp: now}
        l.entries = append(l.entries, e)
        out = append(out, e)
    }
    l.appended.Add(uint64(len(out)))
    advanced := l.maybeAdvanceCommitLocked(term)
    l.mu.Unlock()

    obsmetrics.EntriesAppended.Add(float64(len(out)))
    if advanced { l.signalCommit() }
    if len(out) > 0 {
        logutil.Infof(l.logger, "replication: appended n=%d term=%d last=%d", len(out), term, out[len(out)-1].Index)
        l.Broadcast(ctx)
    }
    return out, true
}

// Broadcast ships cursor-aware append-entries to every peer, one goroutine
// each; a caught-up follower receives an empty request, which is the
// heartbeat. Implements the election broadcaster contract.
func (l *Log) Broadcast(ctx context.Context) {
    if _, isLeader := l.st.LeaderTerm(); !isLeader { return }
    for _, p := range l.peers.Others() {
        go l.replicate(ctx, p)
    }
}

// Reset discards all cursors and seeds fresh ones for current peers, each
// optimistic at lastIndex+1. Called on every leadership win.
func (l *Log) Reset() {
    l.mu.Lock(); defer l.mu.Unlock()
    next := l.lastIndexLocked() + 1
    l.cursors = make(map[consensus.NodeID]*cursor)
    for _, p := range l.peers.Others() {
        l.cursors[p.ID] = &cursor{next: next}
    }
}

// DropCursors discards the leadership-session cursors outright.
func (l *Log) DropCursors() {
    l.mu.Lock(); defer l.mu.Unlock()
    l.dropCursorsLocked()
}

// DropCursor discards one peer's cursor, for peers leaving the cluster.
func (l *Log) DropCursor(id consensus.NodeID) {
    l.mu.Lock(); defer l.mu.Unlock()
    delete(l.cursors, id)
}

func (l *Log) dropCursorsLocked() {
    if len(l.cursors) > 0 { l.cursors = make(map[consensus.NodeID]*cursor) }
}

// CursorFor reports the replication cursor for a follower, if one exists
// in the current leadership session.
func (l *Log) CursorFor(id consensus.NodeID) (Cursor, bool) {
    l.mu.Lock(); defer l.mu.Unlock()
    c, ok := l.cursors[id]
    if !ok { return Cursor{}, false }
    return Cursor{NextIndex: c.next, MatchIndex: c.match}, true
}

func (l *Log) ensureCursorLocked(id consensus.NodeID) *cursor {
    c, ok := l.cursors[id]
    if !ok {
        // Follower became known mid-session; start optimistic.
        c = &cursor{next: l.lastIndexLocked() + 1}
        l.cursors[id] = c
    }
    return c
}

// replicate runs up to maxBacktrackRounds append round-trips against one
// peer, backing the cursor up on conflict hints. One loop per peer at a
// time; overlapping broadcasts skip a peer that is already in flight.
func (l *Log) replicate(ctx context.Context, p consensus.Peer) {
    l.mu.Lock()
    term, isLeader := l.st.LeaderTerm()
    if !isLeader {
        l.mu.Unlock()
        return
    }
    c := l.ensureCursorLocked(p.ID)
    if c.inflight {
        l.mu.Unlock()
        return
    }
    c.inflight = true
    l.mu.Unlock()
    defer func() {
        l.mu.Lock()
        if c, ok := l.cursors[p.ID]; ok { c.inflight = false }
        l.mu.Unlock()
    }()

    for attempt := 0; attempt < maxBacktrackRounds; attempt++ {
        l.mu.Lock()
        if tcur, still := l.st.LeaderTerm(); !still || tcur != term {
            l.mu.Unlock()
            return
        }
        req := l.buildRequestLocked(term, l.ensureCursorLocked(p.ID).next)
        l.mu.Unlock()

        if l.signer != nil {
            sig, err := l.signer.Sign(requestDigest(req))
            if err != nil {
                logutil.Errorf(l.logger, "replication: sign for %s: %v", p.ID, err)
                return
            }
            req.Signature = sig
        }

        start := time.Now()
        rctx, cancel := context.WithTimeout(ctx, l.rpcTO)
        resp, err := l.tr.AppendEntries(rctx, p, req)
        cancel()
        if err != nil { return }

        retry := l.handleResponse(p, req, resp, time.Since(start))
        if !retry { return }
    }
}

func (l *Log) buildRequestLocked(term, next uint64) consensus.AppendEntriesRequest {
    last := l.lastIndexLocked()
    if next < 1 { next = 1 }
    if next > last+1 { next = last + 1 }
    prev := next - 1
    req := consensus.AppendEntriesRequest{
        Term:         term,
        LeaderID:     l.st.ID(),
        PrevLogIndex: prev,
        PrevLogTerm:  l.entries[prev].Term,
        LeaderCommit: l.st.CommitIndex(),
    }
    if next <= last {
        req.Entries = append([]consensus.LogEntry(nil), l.entries[next:]...)
    }
    return req
}

// handleResponse folds one follower verdict into the cursor and the commit
// watermark. Returns true when the cursor moved back and an immediate
// re-send is worthwhile.
func (l *Log) handleResponse(p consensus.Peer, req consensus.AppendEntriesRequest, resp consensus.AppendEntriesResponse, rtt time.Duration) bool {
    if resp.Term > req.Term {
        if l.st.SetTermIfHigher(resp.Term) {
            logutil.Warnf(l.logger, "replication: stepped down, term=%d from %s", resp.Term, p.ID)
        }
        l.DropCursors()
        return false
    }
    l.mu.Lock()
    term, isLeader := l.st.LeaderTerm()
    if !isLeader || term != req.Term {
        l.mu.Unlock()
        return false
    }
    c := l.ensureCursorLocked(p.ID)
    if resp.Success {
        m := req.PrevLogIndex + uint64(len(req.Entries))
        if m > c.match { c.match = m }
        if c.match+1 > c.next { c.next = c.match + 1 }
        advanced := l.maybeAdvanceCommitLocked(term)
        l.mu.Unlock()

        l.latNS.Add(int64(rtt))
        l.latN.Add(1)
        obsmetrics.ReplicationLatency.Observe(rtt.Seconds())
        if advanced { l.signalCommit() }
        return false
    }

    // Fast backtrack: jump behind the follower's conflicting term. When
    // our log has entries of ConflictTerm we resume right after them,
    // otherwise at the follower's first index of that term.
    next := resp.ConflictIndex
    if resp.ConflictTerm != 0 {
        if idx, ok := l.lastIndexOfTermLocked(resp.ConflictTerm); ok { next = idx + 1 }
    }
    switch {
    case next >= 1 && next < c.next:
        c.next = next
    case c.next > 1:
        c.next--
    }
    l.mu.Unlock()
    return true
}

func (l *Log) lastIndexOfTermLocked(term uint64) (uint64, bool) {
    for i := len(l.entries) - 1; i >= 1; i-- {
        if l.entries[i].Term == term { return uint64(i), true }
        if l.entries[i].Term < term { break }
    }
    return 0, false
}

// maybeAdvanceCommitLocked applies the majority rule: commit the highest
// index replicated on a strict majority whose term equals the leader's
// current term. Prior-term entries commit only transitively.
func (l *Log) maybeAdvanceCommitLocked(term uint64) bool {
    prev := l.st.CommitIndex()
    need := l.peers.QuorumSize()
    best := prev
    for n := prev + 1; n <= l.lastIndexLocked(); n++ {
        if l.entries[n].Term != term { continue }
        count := 1
        for _, c := range l.cursors {
            if c.match >= n { count++ }
        }
        if count < need { break }
        best = n
    }
    if best == prev || !l.st.SetCommitIndex(best) { return false }
    l.committed.Add(best - prev)
    obsmetrics.EntriesCommitted.Add(float64(best - prev))
    obsmetrics.CommitIndex.Set(float64(best))
    return true
}

// HandleAppendEntries is the follower path: verify authority, check log
// consistency at PrevLogIndex, append idempotently (truncating a
// conflicting suffix) and advance the commit watermark. A stale term is
// rejected with no side effects; an empty request is the heartbeat.
func (l *Log) HandleAppendEntries(ctx context.Context, req consensus.AppendEntriesRequest) consensus.AppendEntriesResponse {
    resp := consensus.AppendEntriesResponse{Term: l.st.CurrentTerm()}
    if req.Term < resp.Term {
        obsmetrics.AppendRejects.WithLabelValues("stale_term").Inc()
        return resp
    }
    if l.signer != nil && !l.signer.Verify(requestDigest(req), req.Signature) {
        obsmetrics.AppendRejects.WithLabelValues("bad_signature").Inc()
        logutil.Warnf(l.logger, "replication: bad signature from %s term=%d", req.LeaderID, req.Term)
        return resp
    }

    l.mu.Lock()
    defer l.mu.Unlock()

    extend := l.st.ElectionTimeout()
    l.st.ObserveLeader(req.Term, req.LeaderID, extend)
    l.dropCursorsLocked()
    resp.Term = l.st.CurrentTerm()

    last := l.lastIndexLocked()
    if req.PrevLogIndex > last {
        // Log too short: leader should resume at our tail.
        resp.ConflictIndex = last + 1
        obsmetrics.AppendRejects.WithLabelValues("missing_prev").Inc()
        return resp
    }
    if pt := l.entries[req.PrevLogIndex].Term; pt != req.PrevLogTerm {
        resp.ConflictTerm = pt
        ci := req.PrevLogIndex
        for ci > 1 && l.entries[ci-1].Term == pt { ci-- }
        resp.ConflictIndex = ci
        obsmetrics.AppendRejects.WithLabelValues("term_mismatch").Inc()
        return resp
    }

    for i, e := range req.Entries {
        idx := req.PrevLogIndex + 1 + uint64(i)
        e.Index = idx
        if idx <= last {
            if l.entries[idx].Term == e.Term { continue }
            l.entries = l.entries[:idx]
            last = idx - 1
        }
        l.entries = append(l.entries, e)
        last = idx
    }

    lastNew := req.PrevLogIndex + uint64(len(req.Entries))
    if nc := min(req.LeaderCommit, lastNew); l.st.SetCommitIndex(nc) {
        obsmetrics.CommitIndex.Set(float64(nc))
        l.signalCommit()
    }
    resp.Success = true
    resp.MatchIndex = lastNew
    return resp
}

func requestDigest(req consensus.AppendEntriesRequest) []byte {
    req.Signature = nil
    b, _ := json.Marshal(req)
    return b
}

func (l *Log) signalCommit() {
    select {
    case l.commitCh <- struct{}{}:
    default:
    }
}

// CommitSignal pulses after the commit watermark advances; the applier
// drains it and reads State.CommitIndex for the actual range.
func (l *Log) CommitSignal() <-chan struct{} { return l.commitCh }

// Metrics is a point-in-time snapshot of replication accounting.
type Metrics struct {
    EntriesAppended  uint64
    EntriesCommitted uint64
    CommitRate       float64
    AvgLatency       time.Duration
}

func (l *Log) Metrics() Metrics {
    m := Metrics{EntriesAppended: l.appended.Load(), EntriesCommitted: l.committed.Load()}
    if m.EntriesAppended > 0 { m.CommitRate = float64(m.EntriesCommitted) / float64(m.EntriesAppended) }
    if n := l.latN.Load(); n > 0 { m.AvgLatency = time.Duration(l.latNS.Load() / int64(n)) }
    return m
}

// Compile-time wiring checks against the election-side contracts.
var (
    _ election.Broadcaster = (*Log)(nil)
    _ election.LogPosition = (*Log)(nil)
)
