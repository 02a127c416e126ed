package cluster

import (
    "context"
    "errors"
    "fmt"
    "io"
    "log"
    "sync"
    "testing"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/executor"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/membership"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport/inproc"
)

// recordingApp turns committed commands into single-writer tasks and keeps
// the applied payloads in order.
type recordingApp struct {
    mu      sync.Mutex
    applied []string
    failOn  string
}

func (a *recordingApp) Task(ctx context.Context, entry consensus.LogEntry) (executor.Task, error) {
    cmd := string(entry.Command)
    if a.failOn != "" && cmd == a.failOn {
        return executor.Task{}, errors.New("rejected by application")
    }
    return executor.Task{
        ID:       fmt.Sprintf("entry-%d", entry.Index),
        WriteSet: []string{"ledger"},
        Body: func(ctx context.Context) error {
            a.mu.Lock()
            a.applied = append(a.applied, cmd)
            a.mu.Unlock()
            return nil
        },
    }, nil
}

func (a *recordingApp) snapshot() []string {
    a.mu.Lock()
    defer a.mu.Unlock()
    return append([]string(nil), a.applied...)
}

type testCluster struct {
    net   *inproc.Network
    nodes map[consensus.NodeID]*Node
    apps  map[consensus.NodeID]*recordingApp
}

func newTestCluster(t *testing.T, ctx context.Context, ids ...string) *testCluster {
    t.Helper()
    tc := &testCluster{
        net:   inproc.NewNetwork(),
        nodes: make(map[consensus.NodeID]*Node),
        apps:  make(map[consensus.NodeID]*recordingApp),
    }
    peers := make([]consensus.Peer, 0, len(ids))
    for _, id := range ids {
        peers = append(peers, consensus.Peer{ID: consensus.NodeID(id), Addr: id})
    }
    for _, id := range ids {
        nid := consensus.NodeID(id)
        app := &recordingApp{}
        n, err := New(ctx, Options{
            NodeID:             nid,
            Peers:              peers,
            Logger:             log.New(io.Discard, "", 0),
            PeerClient:         tc.net.Client(nid),
            Application:        app,
            ElectionTimeoutMin: 60 * time.Millisecond,
            ElectionTimeoutMax: 120 * time.Millisecond,
            HeartbeatInterval:  20 * time.Millisecond,
            RPCTimeout:         250 * time.Millisecond,
        })
        if err != nil { t.Fatalf("new node %s: %v", id, err) }
        tc.net.Register(nid, n.Handler())
        tc.nodes[nid] = n
        tc.apps[nid] = app
    }
    for id, n := range tc.nodes {
        if err := n.Start(ctx); err != nil { t.Fatalf("start %s: %v", id, err) }
    }
    t.Cleanup(func() {
        for _, n := range tc.nodes { _ = n.Close() }
    })
    return tc
}

// leader returns the unique node currently leading, if any.
func (tc *testCluster) leader() (*Node, bool) {
    var found *Node
    for _, n := range tc.nodes {
        if n.IsLeader() {
            if found != nil { return nil, false }
            found = n
        }
    }
    return found, found != nil
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
    t.Helper()
    deadline := time.Now().Add(d)
    for time.Now().Before(deadline) {
        if cond() { return }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatalf("timeout waiting for %s", msg)
}

func awaitLeader(t *testing.T, tc *testCluster) *Node {
    t.Helper()
    var ld *Node
    waitFor(t, 5*time.Second, func() bool {
        n, ok := tc.leader()
        if ok { ld = n }
        return ok
    }, "a single leader")
    return ld
}

func TestNode_ElectsSingleLeader(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")

    ld := awaitLeader(t, tc)
    // Every node converges on the same leader identity.
    waitFor(t, 5*time.Second, func() bool {
        for _, n := range tc.nodes {
            li, ok := n.Leader()
            if !ok || li.ID != ld.ID() { return false }
        }
        return true
    }, "all nodes agreeing on the leader")
}

func TestNode_SubmitReplicatesToAllApplications(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")
    ld := awaitLeader(t, tc)

    idx1, term1, err := ld.Submit(ctx, []byte(`{"op":"mint","amount":100}`))
    if err != nil { t.Fatalf("submit 1: %v", err) }
    if idx1 == 0 || term1 == 0 { t.Fatalf("submit 1 returned zero position (%d,%d)", idx1, term1) }
    idx2, _, err := ld.Submit(ctx, []byte(`{"op":"transfer","amount":25}`))
    if err != nil { t.Fatalf("submit 2: %v", err) }
    if idx2 != idx1+1 { t.Fatalf("submit 2 index = %d, want %d", idx2, idx1+1) }

    waitFor(t, 5*time.Second, func() bool {
        for _, app := range tc.apps {
            got := app.snapshot()
            if len(got) != 2 { return false }
            if got[0] != `{"op":"mint","amount":100}` || got[1] != `{"op":"transfer","amount":25}` {
                return false
            }
        }
        return true
    }, "both commands applied on every node in order")
}

func TestNode_SubmitOnFollowerWithoutForwarding(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")
    ld := awaitLeader(t, tc)

    for id, n := range tc.nodes {
        if id == ld.ID() { continue }
        if _, _, err := n.Submit(ctx, []byte(`{"op":"noop"}`)); !errors.Is(err, ErrNotLeader) {
            t.Fatalf("follower %s submit err = %v, want ErrNotLeader", id, err)
        }
        break
    }
}

func TestNode_LeaderPartitionFailover(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")
    old := awaitLeader(t, tc)
    oldID := old.ID()

    if _, _, err := old.Submit(ctx, []byte(`{"op":"before"}`)); err != nil {
        t.Fatalf("submit before partition: %v", err)
    }
    waitFor(t, 5*time.Second, func() bool {
        for _, app := range tc.apps {
            if len(app.snapshot()) != 1 { return false }
        }
        return true
    }, "pre-partition command applied everywhere")

    oldTerm := old.st.CurrentTerm()
    tc.net.SetDown(oldID, true)

    // The majority side elects a fresh leader at a higher term.
    var next *Node
    waitFor(t, 5*time.Second, func() bool {
        for id, n := range tc.nodes {
            if id == oldID { continue }
            if n.IsLeader() && n.st.CurrentTerm() > oldTerm {
                next = n
                return true
            }
        }
        return false
    }, "a new leader on the majority side")

    if _, _, err := next.Submit(ctx, []byte(`{"op":"during"}`)); err != nil {
        t.Fatalf("submit during partition: %v", err)
    }

    tc.net.SetDown(oldID, false)

    // The deposed leader adopts the new term and catches up.
    waitFor(t, 5*time.Second, func() bool {
        if old.IsLeader() { return false }
        got := tc.apps[oldID].snapshot()
        return len(got) == 2 && got[1] == `{"op":"during"}`
    }, "old leader stepping down and converging")
}

func TestNode_RemovePeerPropagatesThroughLog(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")
    ld := awaitLeader(t, tc)

    // Pick the follower that will survive.
    var victim, survivor consensus.NodeID
    for id := range tc.nodes {
        if id == ld.ID() { continue }
        if victim == "" { victim = id } else { survivor = id }
    }

    if err := ld.RemovePeer(ctx, victim); err != nil {
        t.Fatalf("remove peer: %v", err)
    }

    waitFor(t, 5*time.Second, func() bool {
        for _, n := range []*Node{ld, tc.nodes[survivor]} {
            st, err := n.Status(ctx)
            if err != nil { return false }
            if len(st.Peers) != 1 { return false }
            if st.Peers[0].ID != otherOf(n.ID(), ld.ID(), survivor) { return false }
        }
        return true
    }, "both remaining nodes dropping the removed peer")

    // Removal is leader-only.
    if err := tc.nodes[survivor].RemovePeer(ctx, ld.ID()); !errors.Is(err, ErrNotLeader) {
        t.Fatalf("follower remove err = %v, want ErrNotLeader", err)
    }
}

// otherOf returns whichever of a, b differs from self.
func otherOf(self, a, b consensus.NodeID) consensus.NodeID {
    if a != self { return a }
    return b
}

func TestNode_AddPeerCatchesUpNewNode(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b")
    ld := awaitLeader(t, tc)

    if _, _, err := ld.Submit(ctx, []byte(`{"op":"early"}`)); err != nil {
        t.Fatalf("submit: %v", err)
    }
    waitFor(t, 5*time.Second, func() bool {
        for _, app := range tc.apps {
            if len(app.snapshot()) != 1 { return false }
        }
        return true
    }, "command applied on the original pair")

    // Bring up a third node that knows the existing pair.
    app := &recordingApp{}
    peers := []consensus.Peer{
        {ID: "a", Addr: "a"}, {ID: "b", Addr: "b"}, {ID: "c", Addr: "c"},
    }
    fresh, err := New(ctx, Options{
        NodeID:             "c",
        Peers:              peers,
        Logger:             log.New(io.Discard, "", 0),
        PeerClient:         tc.net.Client("c"),
        Application:        app,
        ElectionTimeoutMin: 60 * time.Millisecond,
        ElectionTimeoutMax: 120 * time.Millisecond,
        HeartbeatInterval:  20 * time.Millisecond,
        RPCTimeout:         250 * time.Millisecond,
    })
    if err != nil { t.Fatalf("new node c: %v", err) }
    tc.net.Register("c", fresh.Handler())
    if err := fresh.Start(ctx); err != nil { t.Fatalf("start c: %v", err) }
    defer fresh.Close()

    // The outsider's election timer may depose the current leader before
    // it is admitted, so retry the add against whoever leads now.
    waitFor(t, 5*time.Second, func() bool {
        n, ok := tc.leader()
        if !ok { return false }
        return n.AddPeer(ctx, consensus.Peer{ID: "c", Addr: "c"}) == nil
    }, "a leader admitting the new peer")

    // The new node receives the whole log: the early command plus nothing
    // else application-visible (the join record is control traffic).
    waitFor(t, 5*time.Second, func() bool {
        got := app.snapshot()
        return len(got) == 1 && got[0] == `{"op":"early"}`
    }, "new node replaying the existing log")

    waitFor(t, 5*time.Second, func() bool {
        st, err := tc.nodes["a"].Status(ctx)
        if err != nil { return false }
        return len(st.Peers) == 2
    }, "existing nodes tracking both peers")
}

func TestNode_ApplicationErrorDoesNotStallPipeline(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")
    ld := awaitLeader(t, tc)
    for _, app := range tc.apps { app.failOn = `{"op":"bad"}` }

    if _, _, err := ld.Submit(ctx, []byte(`{"op":"bad"}`)); err != nil {
        t.Fatalf("submit bad: %v", err)
    }
    if _, _, err := ld.Submit(ctx, []byte(`{"op":"good"}`)); err != nil {
        t.Fatalf("submit good: %v", err)
    }

    waitFor(t, 5*time.Second, func() bool {
        for _, app := range tc.apps {
            got := app.snapshot()
            if len(got) != 1 || got[0] != `{"op":"good"}` { return false }
        }
        return true
    }, "pipeline advancing past the rejected command")
}

func TestNode_LeaderEventsDelivered(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")
    old := awaitLeader(t, tc)

    // The initial election predates any subscription, but LeaderCh buffers
    // it per node.
    for id, n := range tc.nodes {
        if id == old.ID() { continue }
        select {
        case li := <-n.LeaderCh():
            if li.ID != old.ID() {
                t.Fatalf("LeaderCh reported %s, want %s", li.ID, old.ID())
            }
        case <-time.After(5 * time.Second):
            t.Fatalf("no leadership notification on %s", id)
        }
        break
    }

    // Subscribe everywhere, then force a leadership change and expect the
    // survivors to publish it.
    sub, cancelSub := context.WithCancel(ctx)
    defer cancelSub()
    chans := make(map[consensus.NodeID]<-chan Event)
    for id, n := range tc.nodes {
        chans[id] = n.Subscribe(sub)
    }

    tc.net.SetDown(old.ID(), true)
    defer tc.net.SetDown(old.ID(), false)

    sawNewLeader := func(ch <-chan Event) bool {
        for {
            select {
            case e := <-ch:
                if e.Type == EventLeaderChanged && e.Leader != nil && e.Leader.ID != old.ID() {
                    return true
                }
            default:
                return false
            }
        }
    }
    waitFor(t, 5*time.Second, func() bool {
        for id, ch := range chans {
            if id == old.ID() { continue }
            if sawNewLeader(ch) { return true }
        }
        return false
    }, "a leader_changed event for the new leader")
}

// fakeMembership serves a fixed member list with management metadata.
type fakeMembership struct {
    self    membership.Member
    members []membership.Member
    evts    chan membership.Event
}

func newFakeMembership(self string, all ...string) *fakeMembership {
    fm := &fakeMembership{evts: make(chan membership.Event)}
    for _, id := range all {
        mi := membership.Member{ID: id, Addr: id, Meta: map[string]string{
            membership.MetaConsAddr: id,
            membership.MetaMgmtAddr: "mgmt-" + id,
        }}
        if id == self { fm.self = mi }
        fm.members = append(fm.members, mi)
    }
    return fm
}

func (f *fakeMembership) Start(ctx context.Context) error  { return nil }
func (f *fakeMembership) Join(seeds []string) error        { return nil }
func (f *fakeMembership) Local() membership.Member         { return f.self }
func (f *fakeMembership) Members() []membership.Member     { return f.members }
func (f *fakeMembership) Events() <-chan membership.Event  { return f.evts }
func (f *fakeMembership) Leave() error                     { return nil }
func (f *fakeMembership) Stop() error                      { return nil }

// fakeRPC records forwarded submissions and answers as the leader would.
type fakeRPC struct {
    mu       sync.Mutex
    lastAddr string
}

func (f *fakeRPC) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    return []byte(`{}`), nil
}

func (f *fakeRPC) PostSubmit(ctx context.Context, addr string, req transport.SubmitRequest) (transport.SubmitResponse, error) {
    f.mu.Lock()
    f.lastAddr = addr
    f.mu.Unlock()
    return transport.SubmitResponse{Accepted: true, Index: 42, Term: 7}, nil
}

func (f *fakeRPC) PostJoin(ctx context.Context, addr string, req transport.JoinRequest) (transport.JoinResponse, error) {
    return transport.JoinResponse{Accepted: true}, nil
}

func (f *fakeRPC) PostLeave(ctx context.Context, addr string, req transport.LeaveRequest) (transport.LeaveResponse, error) {
    return transport.LeaveResponse{Accepted: true}, nil
}

func (f *fakeRPC) addr() string {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.lastAddr
}

func TestNode_SubmitForwardsToLeaderManagementAddr(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    net := inproc.NewNetwork()
    ids := []string{"a", "b", "c"}
    peers := make([]consensus.Peer, 0, len(ids))
    for _, id := range ids {
        peers = append(peers, consensus.Peer{ID: consensus.NodeID(id), Addr: id})
    }
    nodes := make(map[consensus.NodeID]*Node)
    rpcs := make(map[consensus.NodeID]*fakeRPC)
    for _, id := range ids {
        nid := consensus.NodeID(id)
        rpc := &fakeRPC{}
        n, err := New(ctx, Options{
            NodeID:             nid,
            Peers:              peers,
            Logger:             log.New(io.Discard, "", 0),
            PeerClient:         net.Client(nid),
            Membership:         newFakeMembership(id, ids...),
            RPCClient:          rpc,
            ElectionTimeoutMin: 60 * time.Millisecond,
            ElectionTimeoutMax: 120 * time.Millisecond,
            HeartbeatInterval:  20 * time.Millisecond,
            RPCTimeout:         250 * time.Millisecond,
        })
        if err != nil { t.Fatalf("new node %s: %v", id, err) }
        net.Register(nid, n.Handler())
        nodes[nid] = n
        rpcs[nid] = rpc
    }
    for id, n := range nodes {
        if err := n.Start(ctx); err != nil { t.Fatalf("start %s: %v", id, err) }
    }
    defer func() {
        for _, n := range nodes { _ = n.Close() }
    }()

    var ld *Node
    waitFor(t, 5*time.Second, func() bool {
        for _, n := range nodes {
            if n.IsLeader() { ld = n; return true }
        }
        return false
    }, "a leader")

    for id, n := range nodes {
        if id == ld.ID() { continue }
        idx, term, err := n.Submit(ctx, []byte(`{"op":"forwarded"}`))
        if err != nil { t.Fatalf("forwarded submit: %v", err) }
        if idx != 42 || term != 7 {
            t.Fatalf("forwarded submit = (%d,%d), want (42,7)", idx, term)
        }
        want := "mgmt-" + string(ld.ID())
        if got := rpcs[id].addr(); got != want {
            t.Fatalf("forwarded to %q, want %q", got, want)
        }
        break
    }
}

func TestNode_StatusReflectsProgress(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")
    ld := awaitLeader(t, tc)

    if _, _, err := ld.Submit(ctx, []byte(`{"op":"x"}`)); err != nil {
        t.Fatalf("submit: %v", err)
    }
    waitFor(t, 5*time.Second, func() bool {
        st, err := ld.Status(ctx)
        if err != nil { return false }
        return st.Role == "LEADER" && st.CommitIndex >= 1 && st.LastApplied == st.CommitIndex &&
            len(st.Peers) == 2 && st.Healthy
    }, "leader status reflecting commit and apply progress")

    st, err := ld.Status(ctx)
    if err != nil { t.Fatalf("status: %v", err) }
    if st.LeaderID != string(ld.ID()) {
        t.Fatalf("status leader = %q, want %q", st.LeaderID, ld.ID())
    }
    if st.Executor.TotalBatches == 0 {
        t.Fatalf("executor stats not surfaced in status")
    }
}

func TestNode_SubmitAfterStopFails(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tc := newTestCluster(t, ctx, "a", "b", "c")
    ld := awaitLeader(t, tc)

    if err := ld.Stop(ctx); err != nil { t.Fatalf("stop: %v", err) }
    if _, _, err := ld.Submit(ctx, nil); !errors.Is(err, ErrStopped) {
        t.Fatalf("submit after stop err = %v, want ErrStopped", err)
    }
}
