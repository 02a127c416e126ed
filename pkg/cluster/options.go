package cluster

import (
    "errors"
    "log"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/discovery"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/executor"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/membership"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport"
)

// Options carries dependency-injected components and runtime configuration
// used to assemble a Node. Instances are typically produced from
// bootstrap.Config.
type Options struct {
    // NodeID is the unique identifier of this node within the cluster.
    NodeID consensus.NodeID
    // Advertise is the consensus RPC address other peers use to reach this
    // node. It travels in join requests and peer records.
    Advertise string
    // Peers is the static replication set at startup (excluding self).
    Peers []consensus.Peer
    // Logger is used by the node to report operational messages.
    Logger *log.Logger

    // PeerClient performs consensus RPCs against peers (required).
    PeerClient transport.PeerClient
    // PeerServer serves consensus RPCs to peers. Optional: embedded and
    // in-process setups register the node's Handler directly.
    PeerServer transport.PeerServer

    // Application converts committed commands into executable tasks.
    // Optional: without it entries are applied as no-ops.
    Application Application
    // Executor runs committed batches. Optional; a default one is built.
    Executor *executor.Executor

    // Membership implementation (optional; static clusters skip gossip).
    Membership membership.Membership
    // Discovery provides seed nodes for the membership join.
    Discovery discovery.Discovery

    // Signer authenticates replication traffic when set.
    Signer consensus.Signer

    // Management RPC endpoints (optional).
    RPCServer transport.RPCServer
    RPCClient transport.RPCClient

    // Engine tuning. Zero values use the engine defaults.
    ElectionTimeoutMin time.Duration
    ElectionTimeoutMax time.Duration
    HeartbeatInterval  time.Duration
    RPCTimeout         time.Duration
    // ApplyBatchMax bounds how many committed entries are handed to the
    // executor as one batch. Zero uses the default.
    ApplyBatchMax int
    // ApplyTimeout bounds one apply batch. Zero uses the executor default.
    ApplyTimeout time.Duration

    // Optional callbacks for app-level hooks.
    OnLeaderChange  func(info consensus.LeaderInfo)
    OnElectionStart func()
}

// DefaultApplyBatchMax bounds one executor batch when Options doesn't say.
const DefaultApplyBatchMax = 256

// Validate performs a minimal validation of Options. It does not start any
// network activity and is safe to call before New.
func (o Options) Validate() error {
    if o.NodeID == "" {
        return errors.New("cluster: empty NodeID")
    }
    if o.PeerClient == nil {
        return errors.New("cluster: nil PeerClient")
    }
    if o.Logger == nil {
        return errors.New("cluster: nil Logger")
    }
    if o.ApplyBatchMax < 0 {
        return errors.New("cluster: negative ApplyBatchMax")
    }
    return nil
}
