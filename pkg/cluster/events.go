package cluster

import (
    "context"
    "sync"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/membership"
)

type EventType string

const (
    EventLeaderChanged  EventType = "leader_changed"
    EventElectionStart  EventType = "election_start"
    EventMemberJoin     EventType = "member_join"
    EventMemberLeave    EventType = "member_leave"
    EventMemberFailed   EventType = "member_failed"
    EventPeerAdded      EventType = "peer_added"
    EventPeerRemoved    EventType = "peer_removed"
    EventEntriesApplied EventType = "entries_applied"
)

// Event notifies an embedding application of a cluster state change. Only
// the fields relevant to its Type are set. Member events mirror the gossip
// view; peer events mirror committed replication-set changes.
type Event struct {
    Type    EventType
    At      time.Time
    Leader  *consensus.LeaderInfo
    Member  *membership.Member
    Peer    *consensus.Peer
    Term    uint64
    Details map[string]string
}

// Subscribe registers an event listener. The channel is buffered, delivery
// is best-effort (a slow consumer misses events rather than stalling the
// node) and the subscription ends with ctx.
func (n *Node) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    n.eb.attach(ch)
    go func() {
        <-ctx.Done()
        n.eb.detach(ch)
        close(ch)
    }()
    return ch
}

// eventBus fans events out to subscribers without blocking publishers.
type eventBus struct {
    mu   sync.Mutex
    subs []chan Event
}

func (b *eventBus) attach(ch chan Event) {
    b.mu.Lock()
    b.subs = append(b.subs, ch)
    b.mu.Unlock()
}

func (b *eventBus) detach(ch chan Event) {
    b.mu.Lock()
    for i, s := range b.subs {
        if s == ch {
            b.subs = append(b.subs[:i], b.subs[i+1:]...)
            break
        }
    }
    b.mu.Unlock()
}

func (b *eventBus) publish(ev Event) {
    b.mu.Lock()
    for _, ch := range b.subs {
        select {
        case ch <- ev:
        default:
        }
    }
    b.mu.Unlock()
}
