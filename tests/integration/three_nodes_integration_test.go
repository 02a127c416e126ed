//go:build integration

package integration

import (
    "context"
    "testing"
    "time"

    httpjson "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/transport/httpjson"
)

func TestThreeNodes_FormAndAgreeOnLeader(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
    defer cancel()

    nodes, addrs := mustStartThreeNodes(t, ctx, 21000)
    for _, n := range nodes { defer n.Close() }

    cli := httpjson.NewClient(3 * time.Second)
    leaderID, _ := awaitLeader(t, ctx, cli, addrs)

    // Every node must converge on the same healthy leader.
    waitUntil(t, 20*time.Second, func() error {
        for _, a := range addrs {
            s, err := fetchStatus(ctx, cli, a.mgmt)
            if err != nil { return err }
            if !s.Healthy || s.LeaderID != leaderID { return errNotYet }
        }
        return nil
    })

    // The leader's replication set holds both followers and the gossip view
    // sees all three members.
    waitUntil(t, 20*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, addrsOf(addrs, leaderID).mgmt)
        if err != nil { return err }
        if len(s.Peers) != 2 { return errNotYet }
        if len(s.Members) != 3 { return errNotYet }
        return nil
    })
}
