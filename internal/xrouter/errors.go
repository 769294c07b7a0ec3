package xrouter

import "errors"

// Error taxonomy. Every value here is surfaced to a caller only as JSON
// (see jsonerr.go); none of these escape the public API as a Go error.
var (
	ErrDisabled          = errors.New("xrouter: disabled in local configuration")
	ErrInsufficientStake = errors.New("xrouter: no wallet UTXO meets the minimum block requirement")
	ErrNoEligiblePeers   = errors.New("xrouter: could not find available nodes for your request")
	ErrNoResponse        = errors.New("xrouter: failed to get response")
	ErrNoConsensus       = errors.New("xrouter: no consensus between responses")

	ErrMalformedPacket  = errors.New("xrouter: malformed packet")
	ErrBadSignature     = errors.New("xrouter: unsigned packet or signature error")
	ErrUnknownUTXO      = errors.New("xrouter: unknown utxo")
	ErrInvalidVout      = errors.New("xrouter: invalid vout index")
	ErrUnsupportedScript = errors.New("xrouter: destination must be a single address")
	ErrKeyMismatch      = errors.New("xrouter: public key provided doesn't match utxo destination")

	ErrBadArg          = errors.New("xrouter: plugin parameter could not be converted")
	ErrPluginArity     = errors.New("xrouter: plugin parameter count out of bounds")
	ErrPluginNotFound  = errors.New("xrouter: custom call not found")
	ErrConnectorMissing = errors.New("xrouter: no connector for currency")
)
