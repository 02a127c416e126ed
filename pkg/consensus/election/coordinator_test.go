package election

import (
    "context"
    "errors"
    "math/rand"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus/state"
)

type fakeLogPos struct{ idx, term uint64 }

func (f fakeLogPos) LastIndex() uint64 { return f.idx }
func (f fakeLogPos) LastTerm() uint64  { return f.term }

type fakeTransport struct {
    mu      sync.Mutex
    vote    func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error)
    appends atomic.Int64
}

func (f *fakeTransport) setVote(h func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error)) {
    f.mu.Lock(); f.vote = h; f.mu.Unlock()
}

func (f *fakeTransport) RequestVote(ctx context.Context, p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
    f.mu.Lock(); h := f.vote; f.mu.Unlock()
    if h == nil { return consensus.VoteResponse{}, errors.New("unreachable") }
    return h(p, req)
}

func (f *fakeTransport) AppendEntries(ctx context.Context, p consensus.Peer, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error) {
    f.appends.Add(1)
    return consensus.AppendEntriesResponse{Term: req.Term, Success: true}, nil
}

func newCoord(t *testing.T, id consensus.NodeID, ft *fakeTransport, pos LogPosition, seed int64, peers ...consensus.Peer) (*Coordinator, *state.State) {
    t.Helper()
    st, err := state.New(id, state.Options{
        ElectionTimeoutMin: 40 * time.Millisecond,
        ElectionTimeoutMax: 80 * time.Millisecond,
        Rand:               rand.New(rand.NewSource(seed)),
    })
    if err != nil {
        t.Fatalf("state: %v", err)
    }
    ps := consensus.NewPeerSet(id)
    for _, p := range peers {
        if err := ps.Add(p); err != nil {
            t.Fatalf("add peer %s: %v", p.ID, err)
        }
    }
    c, err := New(Options{State: st, Peers: ps, Transport: ft, Log: pos, HeartbeatInterval: 10 * time.Millisecond})
    if err != nil {
        t.Fatalf("new coordinator: %v", err)
    }
    return c, st
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
    t.Helper()
    deadline := time.Now().Add(d)
    for time.Now().Before(deadline) {
        if cond() { return }
        time.Sleep(5 * time.Millisecond)
    }
    t.Fatalf("timeout waiting for %s", msg)
}

func grantAll(f *fakeTransport) {
    f.setVote(func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
        return consensus.VoteResponse{Term: req.Term, VoterID: p.ID, VoteGranted: true}, nil
    })
}

func TestCoordinator_WinsMajority(t *testing.T) {
    ft := &fakeTransport{}
    grantAll(ft)
    c, st := newCoord(t, "n1", ft, fakeLogPos{}, 1,
        consensus.Peer{ID: "n2", Addr: "p2"}, consensus.Peer{ID: "n3", Addr: "p3"})

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    if !c.StartElection(ctx) { t.Fatalf("majority grants did not win") }
    if st.Role() != state.Leader { t.Fatalf("role = %v, want leader", st.Role()) }
    if c.Round() != RoundWon { t.Fatalf("round = %v, want WON", c.Round()) }

    m := c.Metrics()
    if m.Started != 1 || m.Won != 1 || m.WinRate != 1 {
        t.Fatalf("metrics = %+v, want one started and won round", m)
    }

    // Bare heartbeats flow without a broadcaster wired.
    waitFor(t, time.Second, func() bool { return ft.appends.Load() >= 2 }, "heartbeats to both peers")
}

func TestCoordinator_SingleNodeWinsAlone(t *testing.T) {
    ft := &fakeTransport{}
    c, st := newCoord(t, "n1", ft, fakeLogPos{}, 2)
    if !c.StartElection(context.Background()) { t.Fatalf("single node did not win its own election") }
    if st.Role() != state.Leader || st.CurrentTerm() != 1 {
        t.Fatalf("role=%v term=%d, want leader at term 1", st.Role(), st.CurrentTerm())
    }
}

func TestCoordinator_LosesToHigherTerm(t *testing.T) {
    ft := &fakeTransport{}
    ft.setVote(func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
        return consensus.VoteResponse{Term: 9, VoterID: p.ID}, nil
    })
    c, st := newCoord(t, "n1", ft, fakeLogPos{}, 3,
        consensus.Peer{ID: "n2", Addr: "p2"}, consensus.Peer{ID: "n3", Addr: "p3"})

    if c.StartElection(context.Background()) { t.Fatalf("won against a higher term") }
    if c.Round() != RoundLost { t.Fatalf("round = %v, want LOST", c.Round()) }
    if st.CurrentTerm() != 9 { t.Fatalf("term = %d, want adopted 9", st.CurrentTerm()) }
    if st.Role() != state.Follower { t.Fatalf("role = %v, want follower", st.Role()) }
}

func TestCoordinator_SplitVote(t *testing.T) {
    ft := &fakeTransport{}
    ft.setVote(func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
        return consensus.VoteResponse{Term: req.Term, VoterID: p.ID}, nil
    })
    c, st := newCoord(t, "n1", ft, fakeLogPos{}, 4,
        consensus.Peer{ID: "n2", Addr: "p2"}, consensus.Peer{ID: "n3", Addr: "p3"})

    if c.StartElection(context.Background()) { t.Fatalf("won without any grant") }
    if c.Round() != RoundLost { t.Fatalf("round = %v, want LOST", c.Round()) }
    if st.Role() != state.Follower { t.Fatalf("role = %v, want follower after split", st.Role()) }
}

func TestCoordinator_TimesOutOnSilence(t *testing.T) {
    ft := &fakeTransport{}
    ft.setVote(func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
        return consensus.VoteResponse{}, errors.New("dropped")
    })
    c, st := newCoord(t, "n1", ft, fakeLogPos{}, 5,
        consensus.Peer{ID: "n2", Addr: "p2"}, consensus.Peer{ID: "n3", Addr: "p3"})

    start := time.Now()
    if c.StartElection(context.Background()) { t.Fatalf("won in silence") }
    if c.Round() != RoundTimedOut { t.Fatalf("round = %v, want TIMED_OUT", c.Round()) }
    if st.Role() != state.Follower { t.Fatalf("role = %v, want follower after timeout", st.Role()) }
    if e := time.Since(start); e > time.Second {
        t.Fatalf("round dragged %s past the local deadline", e)
    }
}

func TestCoordinator_SlowPeerNeverFatal(t *testing.T) {
    ft := &fakeTransport{}
    ft.setVote(func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
        if p.ID == "n4" {
            time.Sleep(2 * time.Second)
            return consensus.VoteResponse{}, errors.New("late")
        }
        return consensus.VoteResponse{Term: req.Term, VoterID: p.ID, VoteGranted: true}, nil
    })
    c, st := newCoord(t, "n1", ft, fakeLogPos{}, 6,
        consensus.Peer{ID: "n2", Addr: "p2"},
        consensus.Peer{ID: "n3", Addr: "p3"},
        consensus.Peer{ID: "n4", Addr: "p4"})

    // Quorum of 4 is 3: self plus the two prompt grants carry the round.
    if !c.StartElection(context.Background()) { t.Fatalf("slow peer sank the election") }
    if st.Role() != state.Leader { t.Fatalf("role = %v, want leader", st.Role()) }
}

func TestCoordinator_HandleVoteRequest(t *testing.T) {
    ft := &fakeTransport{}
    c, st := newCoord(t, "v1", ft, fakeLogPos{idx: 5, term: 2}, 7)
    st.SetTermIfHigher(5)

    // Stale candidate: rejected without side effects.
    resp := c.HandleVoteRequest(context.Background(), consensus.VoteRequest{Term: 2, CandidateID: "c1", LastLogIndex: 9, LastLogTerm: 9})
    if resp.VoteGranted { t.Fatalf("granted to stale term") }
    if resp.Term != 5 { t.Fatalf("resp term = %d, want 5", resp.Term) }
    if st.VotedFor() != "" { t.Fatalf("stale request consumed the vote") }

    // Out-of-date log: candidate tail older than ours.
    resp = c.HandleVoteRequest(context.Background(), consensus.VoteRequest{Term: 5, CandidateID: "c1", LastLogIndex: 9, LastLogTerm: 1})
    if resp.VoteGranted { t.Fatalf("granted to out-of-date log") }

    // Same last term but shorter log.
    resp = c.HandleVoteRequest(context.Background(), consensus.VoteRequest{Term: 5, CandidateID: "c1", LastLogIndex: 4, LastLogTerm: 2})
    if resp.VoteGranted { t.Fatalf("granted to shorter log") }

    // Up-to-date candidate gets the vote; a rival this term does not.
    resp = c.HandleVoteRequest(context.Background(), consensus.VoteRequest{Term: 5, CandidateID: "c1", LastLogIndex: 5, LastLogTerm: 2})
    if !resp.VoteGranted { t.Fatalf("refused an up-to-date candidate") }
    resp = c.HandleVoteRequest(context.Background(), consensus.VoteRequest{Term: 5, CandidateID: "c2", LastLogIndex: 8, LastLogTerm: 3})
    if resp.VoteGranted { t.Fatalf("double vote in one term") }

    // A higher term clears the vote and may grant again.
    resp = c.HandleVoteRequest(context.Background(), consensus.VoteRequest{Term: 6, CandidateID: "c2", LastLogIndex: 8, LastLogTerm: 3})
    if !resp.VoteGranted { t.Fatalf("refused after term adoption") }
    if st.CurrentTerm() != 6 { t.Fatalf("term = %d, want adopted 6", st.CurrentTerm()) }
}

func TestCoordinator_ElectionSafety(t *testing.T) {
    // Five nodes, two simultaneous candidates, three pure voters. However
    // the grants land, at most one candidate may win the term.
    ids := []consensus.NodeID{"c1", "c2", "v1", "v2", "v3"}
    coords := make(map[consensus.NodeID]*Coordinator)
    states := make(map[consensus.NodeID]*state.State)

    var route func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error)
    ft := &fakeTransport{}
    ft.setVote(func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
        return route(p, req)
    })

    for i, id := range ids {
        var peers []consensus.Peer
        for _, other := range ids {
            if other != id { peers = append(peers, consensus.Peer{ID: other, Addr: string(other)}) }
        }
        c, st := newCoord(t, id, ft, fakeLogPos{}, int64(100+i), peers...)
        coords[id], states[id] = c, st
    }
    route = func(p consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
        return coords[p.ID].HandleVoteRequest(context.Background(), req), nil
    }

    var wg sync.WaitGroup
    var mu sync.Mutex
    winners := make(map[uint64][]consensus.NodeID)
    for _, id := range []consensus.NodeID{"c1", "c2"} {
        wg.Add(1)
        go func(id consensus.NodeID) {
            defer wg.Done()
            if coords[id].StartElection(context.Background()) {
                // A standing leader's term is pinned: adoption would
                // have demoted it first.
                if term, ok := states[id].LeaderTerm(); ok {
                    mu.Lock()
                    winners[term] = append(winners[term], id)
                    mu.Unlock()
                }
            }
        }(id)
    }
    wg.Wait()

    for term, ws := range winners {
        if len(ws) > 1 { t.Fatalf("term %d elected %d leaders: %v", term, len(ws), ws) }
    }
}

func TestCoordinator_HeartbeatsStopAfterStepDown(t *testing.T) {
    ft := &fakeTransport{}
    grantAll(ft)
    c, st := newCoord(t, "n1", ft, fakeLogPos{}, 8, consensus.Peer{ID: "n2", Addr: "p2"})

    if !c.StartElection(context.Background()) { t.Fatalf("election lost") }
    waitFor(t, time.Second, func() bool { return ft.appends.Load() > 0 }, "first heartbeat")

    st.SetTermIfHigher(st.CurrentTerm() + 1)
    waitFor(t, time.Second, func() bool { return !c.hbActive.Load() }, "heartbeat loop exit")
    before := ft.appends.Load()
    time.Sleep(50 * time.Millisecond)
    if after := ft.appends.Load(); after != before {
        t.Fatalf("deposed leader kept beating: %d -> %d", before, after)
    }
}

type fakeBroadcaster struct {
    resets     atomic.Int32
    broadcasts atomic.Int32
}

func (f *fakeBroadcaster) Reset()                      { f.resets.Add(1) }
func (f *fakeBroadcaster) Broadcast(_ context.Context) { f.broadcasts.Add(1) }

func TestCoordinator_UsesBroadcaster(t *testing.T) {
    ft := &fakeTransport{}
    grantAll(ft)
    c, _ := newCoord(t, "n1", ft, fakeLogPos{}, 9, consensus.Peer{ID: "n2", Addr: "p2"})
    fb := &fakeBroadcaster{}
    c.UseBroadcaster(fb)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    if !c.StartElection(ctx) { t.Fatalf("election lost") }
    if fb.resets.Load() != 1 { t.Fatalf("cursors reset %d times, want once per win", fb.resets.Load()) }
    waitFor(t, time.Second, func() bool { return fb.broadcasts.Load() >= 2 }, "broadcast ticks")
    if ft.appends.Load() != 0 { t.Fatalf("bare heartbeats sent despite a wired broadcaster") }
}
