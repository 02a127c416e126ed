// Package membership tracks cluster liveness through a gossip layer and
// translates its callbacks into typed events. Consensus never depends on
// gossip for correctness; the node uses membership to discover endpoints,
// surface health and drive its join/leave reconciler.
package membership

import (
    "context"
    "time"
)

// Gossip metadata keys. Every node advertises where its consensus and
// management endpoints listen so peers can dial without a directory.
const (
    MetaConsAddr = "cons"
    MetaMgmtAddr = "mgmt"
)

// Member is one node as the gossip layer sees it. Addr is the gossip
// address; the replication and management endpoints travel in Meta.
type Member struct {
    ID   string
    Addr string
    Meta map[string]string
}

// ConsensusAddr returns the advertised consensus endpoint, or "" when the
// member does not replicate.
func (m Member) ConsensusAddr() string { return m.Meta[MetaConsAddr] }

// ManagementAddr returns the advertised management endpoint, or "".
func (m Member) ManagementAddr() string { return m.Meta[MetaMgmtAddr] }

// EventKind classifies a membership change.
type EventKind string

const (
    KindJoin   EventKind = "join"
    KindLeave  EventKind = "leave"
    KindFailed EventKind = "failed"
)

// Event is one observed membership change.
type Event struct {
    Kind   EventKind
    Member Member
    At     time.Time
}

// Membership is the gossip abstraction: seed joining, the live member view
// and change events. Implementations deliver events best-effort; consumers
// reconcile against Members() rather than replaying every event.
type Membership interface {
    Start(ctx context.Context) error
    Join(seeds []string) error
    Local() Member
    Members() []Member
    Events() <-chan Event
    Leave() error
    Stop() error
}

// HealthReporter is an optional capability for implementations that score
// their own health. Zero is healthy, positive scores mean the failure
// detector suspects trouble, -1 means not started.
type HealthReporter interface {
    HealthScore() int
}
