package cluster

import (
    "encoding/json"
    "fmt"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
)

// record is the envelope stored in every log entry. Application commands and
// membership control records travel through the same replicated log, so all
// nodes apply peer changes at the same point in the command sequence.
type record struct {
    Kind string          `json:"kind"`
    Data json.RawMessage `json:"data,omitempty"`
    Peer *consensus.Peer `json:"peer,omitempty"`
}

const (
    recordCommand   = "command"
    recordPeerJoin  = "peer_join"
    recordPeerLeave = "peer_leave"
)

func encodeCommand(data []byte) []byte {
    b, _ := json.Marshal(record{Kind: recordCommand, Data: data})
    return b
}

func encodePeerJoin(p consensus.Peer) []byte {
    b, _ := json.Marshal(record{Kind: recordPeerJoin, Peer: &p})
    return b
}

func encodePeerLeave(id consensus.NodeID) []byte {
    b, _ := json.Marshal(record{Kind: recordPeerLeave, Peer: &consensus.Peer{ID: id}})
    return b
}

func decodeRecord(b []byte) (record, error) {
    var r record
    if err := json.Unmarshal(b, &r); err != nil {
        return r, fmt.Errorf("cluster: bad log record: %w", err)
    }
    switch r.Kind {
    case recordCommand:
    case recordPeerJoin, recordPeerLeave:
        if r.Peer == nil || r.Peer.ID == "" {
            return r, fmt.Errorf("cluster: %s record without peer", r.Kind)
        }
    default:
        return r, fmt.Errorf("cluster: unknown record kind %q", r.Kind)
    }
    return r, nil
}
