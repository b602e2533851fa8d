package main

import (
    "log"

    "github.com/spf13/cobra"

    nncli "github.com/amirimatin/go-nnagent/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "nnagent",
        Short:         "HDFS name node agent",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    nncli.AddAll(root)
    return root
}
