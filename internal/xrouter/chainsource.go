package xrouter

import "context"

// TxOutput is the minimal shape of a transaction output needed to verify the
// block-stake requirement: value plus a destination script.
type TxOutput struct {
	Value  int64
	Script []byte
}

// ChainSource is the external blockchain-node collaborator that exposes
// UTXO/transaction lookups and script destination extraction. It is
// intentionally narrow: only what the block-requirement verifier and the
// stake-satisfying client path need.
type ChainSource interface {
	// LookupUTXO returns the output at (txHash, vout) from the current UTXO
	// set, or ok=false if it is not currently unspent.
	LookupUTXO(ctx context.Context, txHash [32]byte, vout uint32) (out TxOutput, ok bool, err error)

	// GetTransactionOutput falls back to a full transaction fetch when the
	// output is no longer in the UTXO set.
	GetTransactionOutput(ctx context.Context, txHash [32]byte, vout uint32) (out TxOutput, ok bool, err error)

	// ExtractKeyID returns the single-address key hash a script pays to.
	// ok is false for scripts that are not a single-address form.
	ExtractKeyID(script []byte) (keyID [20]byte, ok bool)

	// AvailableStakeUTXO returns a UTXO (and its signing key) this node's
	// wallet controls with value >= minBlock, for satisfying the block
	// requirement on outgoing queries.
	AvailableStakeUTXO(ctx context.Context, minBlock int64) (txHash [32]byte, vout uint32, priv []byte, ok bool, err error)
}
