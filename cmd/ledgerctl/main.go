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
        Use:           "ledgerctl",
        Short:         "ledger node management CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    root.AddCommand(ledgercli.NewStatusCmd())
    root.AddCommand(ledgercli.NewSubmitCmd())
    root.AddCommand(ledgercli.NewPeerAddCmd())
    root.AddCommand(ledgercli.NewPeerRemoveCmd())
    return root
}
