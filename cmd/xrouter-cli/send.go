package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sendCurrency    string
	sendMaxAttempts int
)

var sendCmd = &cobra.Command{
	Use:   "send <rawtx>",
	Short: "broadcast a signed raw transaction, retrying across service nodes on failure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := sendRequest{
			Currency:    sendCurrency,
			RawTx:       args[0],
			MaxAttempts: sendMaxAttempts,
		}
		out, err := postJSON("/send", req)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

type sendRequest struct {
	Currency    string `json:"currency"`
	RawTx       string `json:"rawtx"`
	MaxAttempts int    `json:"maxAttempts"`
}

func init() {
	sendCmd.Flags().StringVar(&sendCurrency, "currency", "BTC", "currency ticker to broadcast on")
	sendCmd.Flags().IntVar(&sendMaxAttempts, "max-attempts", 3, "number of service nodes to retry before giving up")
}
