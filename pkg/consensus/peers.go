package consensus

import (
    "encoding/json"
    "errors"
    "sort"
    "sync"
)

var (
    ErrDuplicatePeer = errors.New("consensus: peer already registered")
    ErrUnknownPeer   = errors.New("consensus: unknown peer")
)

// PeerSet is the engine's view of current cluster membership. It owns the
// quorum arithmetic and the fan-out list; the local node is a member but is
// never stored in the map. All methods are safe for concurrent use.
type PeerSet struct {
    mu    sync.RWMutex
    self  NodeID
    peers map[NodeID]Peer
}

func NewPeerSet(self NodeID) *PeerSet {
    return &PeerSet{self: self, peers: make(map[NodeID]Peer)}
}

func (s *PeerSet) Self() NodeID { return s.self }

// Add registers a remote peer. Adding the local node is a silent no-op so
// membership feeds can replay the full member list without special-casing.
func (s *PeerSet) Add(p Peer) error {
    if p.ID == "" { return errors.New("consensus: empty peer id") }
    if p.ID == s.self { return nil }
    s.mu.Lock(); defer s.mu.Unlock()
    if _, ok := s.peers[p.ID]; ok { return ErrDuplicatePeer }
    s.peers[p.ID] = p
    return nil
}

// Update upserts a peer's address, registering it if unknown.
func (s *PeerSet) Update(p Peer) {
    if p.ID == "" || p.ID == s.self { return }
    s.mu.Lock(); defer s.mu.Unlock()
    s.peers[p.ID] = p
}

func (s *PeerSet) Remove(id NodeID) error {
    if id == s.self { return nil }
    s.mu.Lock(); defer s.mu.Unlock()
    if _, ok := s.peers[id]; !ok { return ErrUnknownPeer }
    delete(s.peers, id)
    return nil
}

func (s *PeerSet) Lookup(id NodeID) (Peer, bool) {
    s.mu.RLock(); defer s.mu.RUnlock()
    p, ok := s.peers[id]
    return p, ok
}

// Others returns the remote peers in stable ID order.
func (s *PeerSet) Others() []Peer {
    s.mu.RLock(); defer s.mu.RUnlock()
    arr := make([]Peer, 0, len(s.peers))
    for _, p := range s.peers { arr = append(arr, p) }
    sort.Slice(arr, func(i, j int) bool { return arr[i].ID < arr[j].ID })
    return arr
}

// ClusterSize counts remote peers plus the local node.
func (s *PeerSet) ClusterSize() int {
    s.mu.RLock(); defer s.mu.RUnlock()
    return len(s.peers) + 1
}

// QuorumSize is the strict majority of current membership, self included.
func (s *PeerSet) QuorumSize() int { return Quorum(s.ClusterSize()) }

// Snapshot encodes membership as stable JSON for status surfaces and tests.
func (s *PeerSet) Snapshot() ([]byte, error) {
    arr := s.Others()
    return json.Marshal(struct {
        Version int    `json:"version"`
        Self    NodeID `json:"self"`
        Peers   []Peer `json:"peers"`
    }{Version: 1, Self: s.self, Peers: arr})
}

func (s *PeerSet) Restore(buf []byte) error {
    var snapshot struct {
        Version int    `json:"version"`
        Self    NodeID `json:"self"`
        Peers   []Peer `json:"peers"`
    }
    if err := json.Unmarshal(buf, &snapshot); err != nil {
        return err
    }
    // Only version 1 snapshots exist so far.
    s.mu.Lock(); defer s.mu.Unlock()
    s.peers = make(map[NodeID]Peer, len(snapshot.Peers))
    for _, p := range snapshot.Peers {
        if p.ID == "" || p.ID == s.self { continue }
        s.peers[p.ID] = p
    }
    return nil
}
