package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	callCurrency      string
	callConfirmations int
)

var callCmd = &cobra.Command{
	Use:   "call <command> [args...]",
	Short: "issue a quorum-checked read command against a currency's service nodes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := callRequest{
			Command:       args[0],
			Currency:      callCurrency,
			Args:          args[1:],
			Confirmations: callConfirmations,
		}
		out, err := postJSON("/call", req)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

type callRequest struct {
	Command       string   `json:"command"`
	Currency      string   `json:"currency"`
	Args          []string `json:"args"`
	Confirmations int      `json:"confirmations"`
}

func init() {
	callCmd.Flags().StringVar(&callCurrency, "currency", "BTC", "currency ticker to query")
	callCmd.Flags().IntVar(&callConfirmations, "confirmations", 1, "number of matching replies required")
}
