package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var customCallConfirmations int

var customCallCmd = &cobra.Command{
	Use:   "customcall <plugin> [params...]",
	Short: "invoke a named plugin command on service nodes that expose it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := customCallRequest{
			Plugin:        args[0],
			Params:        args[1:],
			Confirmations: customCallConfirmations,
		}
		out, err := postJSON("/customcall", req)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

type customCallRequest struct {
	Plugin        string   `json:"plugin"`
	Params        []string `json:"params"`
	Confirmations int      `json:"confirmations"`
}

func init() {
	customCallCmd.Flags().IntVar(&customCallConfirmations, "confirmations", 1, "number of matching replies required")
}
