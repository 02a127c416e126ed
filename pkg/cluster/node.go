// Package cluster assembles the consensus engine, the parallel executor and
// the supporting planes (membership, transports, management API) into a
// single embeddable ledger node.
package cluster

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/election"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/replication"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/state"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/executor"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/internal/logutil"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/membership"
    obsmetrics "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/metrics"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/observability/tracing"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
)

// Facade exposes the high-level API for consumers.
type Facade interface {
    Start(ctx context.Context) error
    Submit(ctx context.Context, command []byte) (index, term uint64, err error)
    Status(ctx context.Context) (*Status, error)
    AddPeer(ctx context.Context, p consensus.Peer) error
    RemovePeer(ctx context.Context, id consensus.NodeID) error
    Stop(ctx context.Context) error
    LeaderCh() <-chan consensus.LeaderInfo
}

// Node is the concrete implementation of the Facade. It owns the engine
// trio (state, election coordinator, replicated log) and feeds committed
// entries through the executor. A background reconciler keeps the
// replication set aligned with the gossip membership view.
type Node struct {
    opts Options
    mu   sync.Mutex
    run  struct {
        started bool
        closed  bool
    }
    cancel context.CancelFunc

    st    *state.State
    peers *consensus.PeerSet
    log   *replication.Log
    coord *election.Coordinator
    exec  *executor.Executor

    eb       eventBus
    leaderCh chan consensus.LeaderInfo
}

// New assembles a node from validated options. It performs no network
// activity; call Start to launch the node.
func New(ctx context.Context, opts Options) (*Node, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    st, err := state.New(opts.NodeID, state.Options{
        ElectionTimeoutMin: opts.ElectionTimeoutMin,
        ElectionTimeoutMax: opts.ElectionTimeoutMax,
    })
    if err != nil { return nil, err }

    peers := consensus.NewPeerSet(opts.NodeID)
    for _, p := range opts.Peers {
        if err := peers.Add(p); err != nil {
            return nil, fmt.Errorf("cluster: bad static peer %s: %w", p.ID, err)
        }
    }

    lg, err := replication.New(replication.Options{
        State:      st,
        Peers:      peers,
        Transport:  opts.PeerClient,
        Signer:     opts.Signer,
        RPCTimeout: opts.RPCTimeout,
        Logger:     opts.Logger,
    })
    if err != nil { return nil, err }

    coord, err := election.New(election.Options{
        State:             st,
        Peers:             peers,
        Transport:         opts.PeerClient,
        Log:               lg,
        HeartbeatInterval: opts.HeartbeatInterval,
        Logger:            opts.Logger,
    })
    if err != nil { return nil, err }
    coord.UseBroadcaster(lg)

    exec := opts.Executor
    if exec == nil {
        exec, err = executor.New(executor.Options{BatchTimeout: opts.ApplyTimeout, Logger: opts.Logger})
        if err != nil { return nil, err }
    }

    n := &Node{
        opts:     opts,
        st:       st,
        peers:    peers,
        log:      lg,
        coord:    coord,
        exec:     exec,
        leaderCh: make(chan consensus.LeaderInfo, 8),
    }
    return n, nil
}

// Close is a convenience alias for Stop with a background context.
func (n *Node) Close() error { return n.Stop(context.Background()) }

// ID returns this node's identifier.
func (n *Node) ID() consensus.NodeID { return n.opts.NodeID }

// IsLeader reports whether this node currently leads its term.
func (n *Node) IsLeader() bool {
    _, ok := n.st.LeaderTerm()
    return ok
}

// Leader returns the current leader as observed locally.
func (n *Node) Leader() (consensus.LeaderInfo, bool) {
    snap := n.st.Snapshot()
    if snap.LeaderID == "" { return consensus.LeaderInfo{}, false }
    return consensus.LeaderInfo{ID: snap.LeaderID, Term: snap.Term}, true
}

// Handler exposes the consensus RPC surface for transports that register
// handlers directly (in-process networks, embedded setups).
func (n *Node) Handler() consensus.Handler { return n }

func (n *Node) HandleVoteRequest(ctx context.Context, req consensus.VoteRequest) consensus.VoteResponse {
    return n.coord.HandleVoteRequest(ctx, req)
}

func (n *Node) HandleAppendEntries(ctx context.Context, req consensus.AppendEntriesRequest) consensus.AppendEntriesResponse {
    return n.log.HandleAppendEntries(ctx, req)
}

var _ consensus.Handler = (*Node)(nil)
var _ Facade = (*Node)(nil)

// Start launches the consensus loops, membership, and the configured
// transport endpoints, then begins applying committed entries.
func (n *Node) Start(ctx context.Context) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.run.closed { return ErrStopped }
    if n.run.started { return nil }
    n.run.started = true
    // Register metrics once
    obsmetrics.Register()

    rctx, cancel := context.WithCancel(ctx)
    n.cancel = cancel

    if n.opts.PeerServer != nil {
        if err := n.opts.PeerServer.Start(rctx, n); err != nil { return err }
        logutil.Infof(n.opts.Logger, "consensus endpoint listening at %s", n.opts.PeerServer.Addr())
    }

    if n.opts.Membership != nil {
        if err := n.opts.Membership.Start(rctx); err != nil { return err }
        if n.opts.Discovery != nil {
            if seeds := n.opts.Discovery.Seeds(); len(seeds) > 0 {
                logutil.Infof(n.opts.Logger, "joining membership seeds: %v", seeds)
                _ = n.opts.Membership.Join(seeds)
            }
        }
        go n.membershipEventsLoop(rctx)
        go n.reconcilePeersLoop(rctx)
    }

    go n.coord.Run(rctx)
    go n.applyLoop(rctx)
    go n.leaderWatchLoop(rctx)

    if n.opts.RPCServer != nil {
        statusFn := func(ctx context.Context) ([]byte, error) { return n.statusLocalJSON(ctx) }
        submitFn := func(ctx context.Context, req transport.SubmitRequest) (transport.SubmitResponse, error) { return n.handleSubmit(ctx, req) }
        joinFn := func(ctx context.Context, req transport.JoinRequest) (transport.JoinResponse, error) { return n.handleJoin(ctx, req) }
        leaveFn := func(ctx context.Context, req transport.LeaveRequest) (transport.LeaveResponse, error) { return n.handleLeave(ctx, req) }
        if err := n.opts.RPCServer.Start(rctx, statusFn, submitFn, joinFn, leaveFn); err != nil { return err }
        logutil.Infof(n.opts.Logger, "management endpoint listening at %s (status/submit/metrics/healthz)", n.opts.RPCServer.Addr())
    }
    logutil.Infof(n.opts.Logger, "node started: id=%s advertise=%s peers=%d", n.opts.NodeID, n.opts.Advertise, n.peers.ClusterSize()-1)
    return nil
}

// Stop gracefully shuts down loops, transports and membership.
func (n *Node) Stop(ctx context.Context) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.run.closed { return nil }
    n.run.closed = true
    if n.cancel != nil { n.cancel() }
    if n.opts.RPCServer != nil { _ = n.opts.RPCServer.Stop(ctx) }
    if n.opts.PeerServer != nil { _ = n.opts.PeerServer.Stop(ctx) }
    if n.opts.Membership != nil {
        _ = n.opts.Membership.Leave()
        _ = n.opts.Membership.Stop()
    }
    _ = n.opts.PeerClient.Close()
    return nil
}

// Submit appends one command to the replicated log. On a follower the call
// is forwarded to the leader's management endpoint when an RPC client is
// configured; otherwise ErrNotLeader is returned. The returned index and
// term identify the entry; commitment happens asynchronously.
func (n *Node) Submit(ctx context.Context, command []byte) (uint64, uint64, error) {
    n.mu.Lock()
    closed := n.run.closed
    n.mu.Unlock()
    if closed { return 0, 0, ErrStopped }

    ctx, end := tracing.StartSpan(ctx, "cluster.submit")
    defer end()

    if entries, ok := n.log.AppendAsLeader(ctx, [][]byte{encodeCommand(command)}); ok {
        obsmetrics.SubmitRequests.WithLabelValues("accepted").Inc()
        return entries[0].Index, entries[0].Term, nil
    }
    if n.opts.RPCClient == nil {
        obsmetrics.SubmitRequests.WithLabelValues("rejected").Inc()
        return 0, 0, ErrNotLeader
    }
    addr := n.leaderMgmtAddr()
    if addr == "" {
        obsmetrics.SubmitRequests.WithLabelValues("rejected").Inc()
        return 0, 0, ErrNoLeader
    }
    resp, err := n.opts.RPCClient.PostSubmit(ctx, addr, transport.SubmitRequest{Command: command})
    if err != nil {
        obsmetrics.SubmitRequests.WithLabelValues("rejected").Inc()
        return 0, 0, fmt.Errorf("%w: %v", ErrUnreachable, err)
    }
    if !resp.Accepted {
        obsmetrics.SubmitRequests.WithLabelValues("rejected").Inc()
        if resp.Error != "" { return 0, 0, errors.New(resp.Error) }
        return 0, 0, ErrNotLeader
    }
    obsmetrics.SubmitRequests.WithLabelValues("forwarded").Inc()
    return resp.Index, resp.Term, nil
}

// AddPeer adds p to the replication set. Leader only. The change is applied
// locally at once so replication to the new peer starts immediately, and a
// control record is appended so followers apply it at the same log position.
func (n *Node) AddPeer(ctx context.Context, p consensus.Peer) error {
    if p.ID == "" || p.Addr == "" {
        return errors.New("cluster: peer needs id and addr")
    }
    if !n.IsLeader() { return ErrNotLeader }
    n.peers.Update(p)
    if _, ok := n.log.AppendAsLeader(ctx, [][]byte{encodePeerJoin(p)}); !ok {
        return ErrNotLeader
    }
    logutil.Infof(n.opts.Logger, "peer added: id=%s addr=%s", p.ID, p.Addr)
    return nil
}

// RemovePeer removes id from the replication set. Leader only; a leader
// cannot remove itself.
func (n *Node) RemovePeer(ctx context.Context, id consensus.NodeID) error {
    if id == n.opts.NodeID {
        return errors.New("cluster: cannot remove self")
    }
    if !n.IsLeader() { return ErrNotLeader }
    if _, ok := n.log.AppendAsLeader(ctx, [][]byte{encodePeerLeave(id)}); !ok {
        return ErrNotLeader
    }
    if err := n.peers.Remove(id); err == nil {
        n.log.DropCursor(id)
        n.evictPeerConn(id)
    }
    logutil.Infof(n.opts.Logger, "peer removed: id=%s", id)
    return nil
}

// Status returns a snapshot of consensus, log and executor progress.
func (n *Node) Status(ctx context.Context) (*Status, error) {
    snap := n.st.Snapshot()
    s := &Status{
        ID:          string(n.opts.NodeID),
        Role:        snap.Role,
        Term:        snap.Term,
        LeaderID:    string(snap.LeaderID),
        LeaderAddr:  n.leaderMgmtAddr(),
        LastIndex:   n.log.LastIndex(),
        CommitIndex: snap.CommitIndex,
        LastApplied: snap.LastApplied,
        Peers:       n.peers.Others(),
        Executor:    n.exec.Stats(),
        Healthy:     snap.LeaderID != "",
    }
    if !s.Healthy {
        s.Warnings = append(s.Warnings, "no leader for current term")
    }
    if n.opts.Membership != nil {
        s.Members = n.opts.Membership.Members()
        obsmetrics.ClusterMembers.Set(float64(len(s.Members)))
        if hr, ok := n.opts.Membership.(membership.HealthReporter); ok {
            if score := hr.HealthScore(); score > 0 {
                s.Warnings = append(s.Warnings, fmt.Sprintf("gossip health degraded, score %d", score))
            }
        }
    }
    return s, nil
}

func (n *Node) statusLocalJSON(ctx context.Context) ([]byte, error) {
    st, err := n.Status(ctx)
    if err != nil { return nil, err }
    return json.Marshal(st)
}

// LeaderCh exposes leadership change notifications. Best-effort: events are
// dropped when the consumer lags.
func (n *Node) LeaderCh() <-chan consensus.LeaderInfo { return n.leaderCh }

// leaderMgmtAddr resolves the current leader's management address. Prefers
// membership Meta["mgmt"]; local leadership short-circuits to our own
// management endpoint.
func (n *Node) leaderMgmtAddr() string {
    snap := n.st.Snapshot()
    if snap.LeaderID == "" { return "" }
    if snap.LeaderID == n.opts.NodeID {
        if n.opts.RPCServer != nil { return n.opts.RPCServer.Addr() }
        return ""
    }
    if n.opts.Membership == nil { return "" }
    for _, m := range n.opts.Membership.Members() {
        if m.ID == string(snap.LeaderID) {
            if mgmt := m.ManagementAddr(); mgmt != "" { return mgmt }
            return m.Addr
        }
    }
    return ""
}

func (n *Node) evictPeerConn(id consensus.NodeID) {
    p, ok := n.peers.Lookup(id)
    if !ok { return }
    if ev, ok := n.opts.PeerClient.(interface{ Evict(string) }); ok {
        ev.Evict(p.Addr)
    }
}

// --- management RPC handlers ---

func (n *Node) handleSubmit(ctx context.Context, req transport.SubmitRequest) (transport.SubmitResponse, error) {
    ctx, end := tracing.StartSpan(ctx, "cluster.handleSubmit")
    defer end()
    // Never forward here: forwarding is client-side (Submit) to keep one hop.
    entries, ok := n.log.AppendAsLeader(ctx, [][]byte{encodeCommand(req.Command)})
    if !ok {
        obsmetrics.SubmitRequests.WithLabelValues("redirected").Inc()
        return transport.SubmitResponse{Accepted: false, Leader: n.leaderMgmtAddr(), Error: "not leader"}, nil
    }
    obsmetrics.SubmitRequests.WithLabelValues("accepted").Inc()
    return transport.SubmitResponse{Accepted: true, Index: entries[0].Index, Term: entries[0].Term}, nil
}

func (n *Node) handleJoin(ctx context.Context, req transport.JoinRequest) (transport.JoinResponse, error) {
    ctx, end := tracing.StartSpan(ctx, "cluster.handleJoin")
    defer end()
    if !n.IsLeader() {
        obsmetrics.JoinRequests.WithLabelValues("rejected").Inc()
        logutil.Warnf(n.opts.Logger, "join rejected (not leader): id=%s", req.ID)
        return transport.JoinResponse{Accepted: false, Leader: n.leaderMgmtAddr(), Error: "not leader"}, nil
    }
    if err := n.AddPeer(ctx, consensus.Peer{ID: consensus.NodeID(req.ID), Addr: req.Addr}); err != nil {
        obsmetrics.JoinRequests.WithLabelValues("rejected").Inc()
        logutil.Errorf(n.opts.Logger, "join failed: id=%s addr=%s err=%v", req.ID, req.Addr, err)
        return transport.JoinResponse{Accepted: false, Error: err.Error()}, nil
    }
    obsmetrics.JoinRequests.WithLabelValues("accepted").Inc()
    logutil.Infof(n.opts.Logger, "join accepted: id=%s addr=%s", req.ID, req.Addr)
    return transport.JoinResponse{Accepted: true}, nil
}

func (n *Node) handleLeave(ctx context.Context, req transport.LeaveRequest) (transport.LeaveResponse, error) {
    ctx, end := tracing.StartSpan(ctx, "cluster.handleLeave")
    defer end()
    if !n.IsLeader() {
        logutil.Warnf(n.opts.Logger, "leave rejected (not leader): id=%s", req.ID)
        return transport.LeaveResponse{Accepted: false, Error: "not leader"}, nil
    }
    if err := n.RemovePeer(ctx, consensus.NodeID(req.ID)); err != nil {
        return transport.LeaveResponse{Accepted: false, Error: err.Error()}, nil
    }
    logutil.Infof(n.opts.Logger, "leave accepted: id=%s", req.ID)
    return transport.LeaveResponse{Accepted: true}, nil
}

// --- background loops ---

// applyLoop drains committed entries into the executor whenever the log
// signals commit progress.
func (n *Node) applyLoop(ctx context.Context) {
    for {
        select {
        case <-ctx.Done():
            return
        case <-n.log.CommitSignal():
            n.applyCommitted(ctx)
        }
    }
}

func (n *Node) applyCommitted(ctx context.Context) {
    batchMax := n.opts.ApplyBatchMax
    if batchMax == 0 { batchMax = DefaultApplyBatchMax }
    for {
        if ctx.Err() != nil { return }
        snap := n.st.Snapshot()
        lo := snap.LastApplied + 1
        hi := snap.CommitIndex
        if lo > hi { return }
        if hi-lo+1 > uint64(batchMax) { hi = lo + uint64(batchMax) - 1 }

        var tasks []executor.Task
        for _, e := range n.log.Range(lo, hi) {
            rec, err := decodeRecord(e.Command)
            if err != nil {
                logutil.Warnf(n.opts.Logger, "apply: skipping entry %d: %v", e.Index, err)
                continue
            }
            switch rec.Kind {
            case recordPeerJoin:
                n.applyPeerJoin(*rec.Peer)
            case recordPeerLeave:
                n.applyPeerLeave(rec.Peer.ID)
            case recordCommand:
                if n.opts.Application == nil { continue }
                entry := e
                entry.Command = rec.Data
                task, err := n.opts.Application.Task(ctx, entry)
                if err != nil {
                    logutil.Warnf(n.opts.Logger, "apply: entry %d produced no task: %v", e.Index, err)
                    continue
                }
                if task.ID == "" { task.ID = fmt.Sprintf("entry-%d", e.Index) }
                tasks = append(tasks, task)
            }
        }

        if len(tasks) > 0 {
            res := n.exec.ExecuteParallel(ctx, tasks)
            n.eb.publish(Event{Type: EventEntriesApplied, At: time.Now(), Details: map[string]string{
                "batch":   res.BatchID,
                "success": fmt.Sprintf("%d", res.SuccessCount),
                "failed":  fmt.Sprintf("%d", res.FailedCount),
            }})
        }
        n.st.SetLastApplied(hi)
    }
}

// applyPeerJoin applies a committed membership change. Idempotent: the
// leader already updated its set when accepting the join.
func (n *Node) applyPeerJoin(p consensus.Peer) {
    if p.ID == n.opts.NodeID { return }
    n.peers.Update(p)
    n.eb.publish(Event{Type: EventPeerAdded, At: time.Now(), Peer: &p})
    logutil.Infof(n.opts.Logger, "replication set: added %s (%s)", p.ID, p.Addr)
}

func (n *Node) applyPeerLeave(id consensus.NodeID) {
    if id == n.opts.NodeID {
        logutil.Warnf(n.opts.Logger, "replication set: this node was removed from the cluster")
        return
    }
    if err := n.peers.Remove(id); err != nil { return }
    n.log.DropCursor(id)
    n.evictPeerConn(id)
    p := consensus.Peer{ID: id}
    n.eb.publish(Event{Type: EventPeerRemoved, At: time.Now(), Peer: &p})
    logutil.Infof(n.opts.Logger, "replication set: removed %s", id)
}

// leaderWatchLoop mirrors consensus state into metrics, events and the
// leader channel.
func (n *Node) leaderWatchLoop(ctx context.Context) {
    ticker := time.NewTicker(100 * time.Millisecond)
    defer ticker.Stop()
    var last consensus.LeaderInfo
    var prevRole string
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            snap := n.st.Snapshot()
            obsmetrics.CurrentTerm.Set(float64(snap.Term))
            if snap.Role == state.Leader.String() {
                obsmetrics.IsLeader.Set(1)
            } else {
                obsmetrics.IsLeader.Set(0)
            }
            if snap.Role == state.Candidate.String() && prevRole != state.Candidate.String() {
                n.eb.publish(Event{Type: EventElectionStart, At: time.Now(), Term: snap.Term})
                if n.opts.OnElectionStart != nil { n.opts.OnElectionStart() }
            }
            prevRole = snap.Role
            if snap.LeaderID == "" { continue }
            li := consensus.LeaderInfo{ID: snap.LeaderID, Term: snap.Term}
            if li == last { continue }
            last = li
            obsmetrics.LeaderChanges.Inc()
            logutil.Infof(n.opts.Logger, "leader change observed: id=%s term=%d", li.ID, li.Term)
            n.eb.publish(Event{Type: EventLeaderChanged, At: time.Now(), Leader: &li, Term: li.Term})
            if n.opts.OnLeaderChange != nil { n.opts.OnLeaderChange(li) }
            select {
            case n.leaderCh <- li:
            default:
            }
        }
    }
}

// membershipEventsLoop reacts to gossip: joins of nodes that advertise a
// consensus address are added to the replication set by the leader; leaves
// and failures are removed.
func (n *Node) membershipEventsLoop(ctx context.Context) {
    evch := n.opts.Membership.Events()
    for {
        select {
        case <-ctx.Done():
            return
        case e, ok := <-evch:
            if !ok { return }
            switch e.Kind {
            case membership.KindJoin:
                m := e.Member
                n.eb.publish(Event{Type: EventMemberJoin, At: e.At, Member: &m})
                obsmetrics.ClusterMembers.Set(float64(len(n.opts.Membership.Members())))
                if n.IsLeader() {
                    if p, ok := peerFromMember(m); ok && p.ID != n.opts.NodeID {
                        _ = n.AddPeer(ctx, p)
                    }
                }
            case membership.KindLeave, membership.KindFailed:
                et := EventMemberLeave
                if e.Kind == membership.KindFailed { et = EventMemberFailed }
                m := e.Member
                n.eb.publish(Event{Type: et, At: e.At, Member: &m})
                obsmetrics.ClusterMembers.Set(float64(len(n.opts.Membership.Members())))
                if n.IsLeader() && m.ID != string(n.opts.NodeID) {
                    _ = n.RemovePeer(ctx, consensus.NodeID(m.ID))
                }
            }
        }
    }
}

// reconcilePeersLoop periodically folds the gossip view into the
// replication set while leading, catching members whose join event raced a
// leadership change.
func (n *Node) reconcilePeersLoop(ctx context.Context) {
    ticker := time.NewTicker(2 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if !n.IsLeader() { continue }
            for _, m := range n.opts.Membership.Members() {
                p, ok := peerFromMember(m)
                if !ok || p.ID == n.opts.NodeID { continue }
                if _, known := n.peers.Lookup(p.ID); known { continue }
                _ = n.AddPeer(ctx, p)
            }
        }
    }
}

// peerFromMember extracts the consensus endpoint a member advertises in its
// gossip metadata. Members without one (observers, tooling) are skipped.
func peerFromMember(m membership.Member) (consensus.Peer, bool) {
    addr := m.ConsensusAddr()
    if addr == "" { return consensus.Peer{}, false }
    return consensus.Peer{ID: consensus.NodeID(m.ID), Addr: addr}, true
}
