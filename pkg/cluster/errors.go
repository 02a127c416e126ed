package cluster

import "errors"

var (
    ErrNotLeader   = errors.New("cluster: not leader")
    ErrNoLeader    = errors.New("cluster: leader unknown")
    ErrStopped     = errors.New("cluster: node stopped")
    ErrUnreachable = errors.New("cluster: unreachable")
)
