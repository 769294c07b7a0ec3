package main

import (
	"os"

	"github.com/spf13/cobra"
)

var controlAddr string

func main() {
	root := &cobra.Command{Use: "xrouter-cli", Short: "client for a running xrouterd node"}
	root.PersistentFlags().StringVar(&controlAddr, "control-addr", "http://127.0.0.1:9090", "xrouterd control API address")

	root.AddCommand(callCmd)
	root.AddCommand(sendCmd)
	root.AddCommand(customCallCmd)
	root.AddCommand(statusCmd)
	root.AddCommand(reloadCmd)
	root.AddCommand(replyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
