package main

import (
    "log"

    "github.com/spf13/cobra"

    ledgercli "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "ledgerd",
        Short:         "ledger node daemon",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    root.AddCommand(ledgercli.NewRunCmd())
    return root
}
