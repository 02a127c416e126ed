package cluster

import (
    "context"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/consensus"
    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/executor"
)

// Application is the SPI a ledger implementation plugs into the node. The
// node feeds every committed command through Task to obtain an executable
// unit whose read and write sets drive batch scheduling; commands without
// data dependencies run concurrently. Payloads are opaque to the cluster
// and passed through as []byte.
//
// Task must not execute the command; execution happens inside the returned
// task's Body when the batch is scheduled. Returning an error marks the
// entry as failed without stalling the apply pipeline.
type Application interface {
    Task(ctx context.Context, entry consensus.LogEntry) (executor.Task, error)
}

// ApplicationFunc adapts a plain function to the Application interface.
type ApplicationFunc func(ctx context.Context, entry consensus.LogEntry) (executor.Task, error)

func (f ApplicationFunc) Task(ctx context.Context, entry consensus.LogEntry) (executor.Task, error) {
    return f(ctx, entry)
}
