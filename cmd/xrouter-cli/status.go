package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print the node's peer, currency and plugin status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := getJSON("/status")
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}
