package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var replyConfirmations int

var replyCmd = &cobra.Command{
	Use:   "reply <queryID>",
	Short: "fetch the current quorum result for a still-pending query ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := getJSON(fmt.Sprintf("/reply/%s?confirmations=%d", args[0], replyConfirmations))
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	replyCmd.Flags().IntVar(&replyConfirmations, "confirmations", 1, "number of matching replies required")
}
