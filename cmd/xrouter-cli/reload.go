package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "reload xrouter.conf and plugin config files on the node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := postJSON("/reload", struct{}{})
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}
