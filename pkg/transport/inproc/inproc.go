// Package inproc provides an in-process consensus transport for tests and
// embedded multi-node setups. Nodes register their handlers on a shared
// Network; per-node clients route calls through the envelope codec so the
// serialization path is exercised even without sockets. Links can be cut and
// healed to simulate partitions.
package inproc

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
)

var (
    ErrUnreachable = errors.New("inproc: peer unreachable")
    ErrNotFound    = errors.New("inproc: peer not registered")
)

// Network routes envelopes between registered handlers.
type Network struct {
    mu    sync.Mutex
    nodes map[consensus.NodeID]consensus.Handler
    down  map[consensus.NodeID]bool
    cut   map[link]bool
}

type link struct{ a, b consensus.NodeID }

func mkLink(a, b consensus.NodeID) link {
    if b < a { a, b = b, a }
    return link{a: a, b: b}
}

func NewNetwork() *Network {
    return &Network{
        nodes: make(map[consensus.NodeID]consensus.Handler),
        down:  make(map[consensus.NodeID]bool),
        cut:   make(map[link]bool),
    }
}

// Register wires id's handler into the network, replacing any previous one.
func (n *Network) Register(id consensus.NodeID, h consensus.Handler) {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.nodes[id] = h
}

// Deregister removes id from the network entirely.
func (n *Network) Deregister(id consensus.NodeID) {
    n.mu.Lock()
    defer n.mu.Unlock()
    delete(n.nodes, id)
    delete(n.down, id)
}

// SetDown marks a node unreachable in both directions without removing it.
func (n *Network) SetDown(id consensus.NodeID, down bool) {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.down[id] = down
}

// Cut severs the link between a and b in both directions.
func (n *Network) Cut(a, b consensus.NodeID) {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.cut[mkLink(a, b)] = true
}

// Heal restores the link between a and b.
func (n *Network) Heal(a, b consensus.NodeID) {
    n.mu.Lock()
    defer n.mu.Unlock()
    delete(n.cut, mkLink(a, b))
}

// HealAll restores every cut link and clears down marks.
func (n *Network) HealAll() {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.cut = make(map[link]bool)
    n.down = make(map[consensus.NodeID]bool)
}

func (n *Network) route(from, to consensus.NodeID) (consensus.Handler, error) {
    n.mu.Lock()
    defer n.mu.Unlock()
    h, ok := n.nodes[to]
    if !ok { return nil, fmt.Errorf("%w: %s", ErrNotFound, to) }
    if n.down[from] || n.down[to] || n.cut[mkLink(from, to)] {
        return nil, fmt.Errorf("%w: %s -> %s", ErrUnreachable, from, to)
    }
    return h, nil
}

// deliver round-trips env through JSON on both legs, the same shape a real
// wire would see, then dispatches on the target handler.
func (n *Network) deliver(ctx context.Context, from, to consensus.NodeID, env consensus.Envelope) (consensus.Envelope, error) {
    if err := ctx.Err(); err != nil { return consensus.Envelope{}, err }
    h, err := n.route(from, to)
    if err != nil { return consensus.Envelope{}, err }

    b, err := json.Marshal(env)
    if err != nil { return consensus.Envelope{}, err }
    var wire consensus.Envelope
    if err := json.Unmarshal(b, &wire); err != nil { return consensus.Envelope{}, err }

    reply, err := consensus.Dispatch(ctx, h, wire)
    if err != nil { return consensus.Envelope{}, err }

    rb, err := json.Marshal(reply)
    if err != nil { return consensus.Envelope{}, err }
    var out consensus.Envelope
    if err := json.Unmarshal(rb, &out); err != nil { return consensus.Envelope{}, err }
    return out, nil
}

// Client performs consensus RPCs for one node over the network.
type Client struct {
    net  *Network
    from consensus.NodeID
}

// Client returns a transport client originating from the given node.
func (n *Network) Client(from consensus.NodeID) *Client {
    return &Client{net: n, from: from}
}

func (c *Client) RequestVote(ctx context.Context, peer consensus.Peer, req consensus.VoteRequest) (consensus.VoteResponse, error) {
    reply, err := c.net.deliver(ctx, c.from, peer.ID, consensus.WrapVoteRequest(req))
    if err != nil { return consensus.VoteResponse{}, err }
    if reply.Kind != consensus.KindVoteResponse || reply.VoteReply == nil {
        return consensus.VoteResponse{}, fmt.Errorf("inproc: unexpected reply kind %s", reply.Kind)
    }
    return *reply.VoteReply, nil
}

func (c *Client) AppendEntries(ctx context.Context, peer consensus.Peer, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error) {
    reply, err := c.net.deliver(ctx, c.from, peer.ID, consensus.WrapAppendEntries(req))
    if err != nil { return consensus.AppendEntriesResponse{}, err }
    if reply.Kind != consensus.KindAppendEntriesResponse || reply.AppendReply == nil {
        return consensus.AppendEntriesResponse{}, fmt.Errorf("inproc: unexpected reply kind %s", reply.Kind)
    }
    return *reply.AppendReply, nil
}

func (c *Client) Close() error { return nil }

var _ transport.PeerClient = (*Client)(nil)
