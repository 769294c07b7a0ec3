package xrouter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// WalletChainSource implements ChainSource against a local bitcoind-family
// wallet RPC: the daemon delegates UTXO tracking to an already-running
// wallet rather than reimplementing it. Built on rpcclient.go's basic-auth
// JSON-RPC client, reused here instead of duplicated.
type WalletChainSource struct {
	Client *RPCClient
}

// NewWalletChainSource wires a ChainSource against the wallet listening at
// ip:port with the given RPC credentials.
func NewWalletChainSource(ip, port, user, password string) *WalletChainSource {
	return &WalletChainSource{Client: NewRPCClient(ip, port, user, password)}
}

type rpcTxOut struct {
	Value        float64 `json:"value"`
	ScriptPubKey struct {
		Hex string `json:"hex"`
	} `json:"scriptPubKey"`
}

// LookupUTXO calls gettxout, which only succeeds while the output is
// unspent.
func (w *WalletChainSource) LookupUTXO(ctx context.Context, txHash [32]byte, vout uint32) (TxOutput, bool, error) {
	raw, err := w.Client.Call(ctx, "gettxout", []interface{}{reversedHex(txHash), vout})
	if err != nil {
		return TxOutput{}, false, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return TxOutput{}, false, nil
	}
	var out rpcTxOut
	if err := json.Unmarshal(raw, &out); err != nil {
		return TxOutput{}, false, err
	}
	script, err := hex.DecodeString(out.ScriptPubKey.Hex)
	if err != nil {
		return TxOutput{}, false, err
	}
	return TxOutput{Value: btcToSats(out.Value), Script: script}, true, nil
}

type rpcRawTransaction struct {
	Vout []rpcTxOut `json:"vout"`
}

// GetTransactionOutput falls back to getrawtransaction (verbose) when the
// output is no longer in the UTXO set. A vout past the end of the
// transaction's output list is reported as ErrInvalidVout, distinct from
// ok=false (transaction not found at all), so callers can tell a
// malformed reference from a merely-unknown one.
func (w *WalletChainSource) GetTransactionOutput(ctx context.Context, txHash [32]byte, vout uint32) (TxOutput, bool, error) {
	raw, err := w.Client.Call(ctx, "getrawtransaction", []interface{}{reversedHex(txHash), true})
	if err != nil {
		// bitcoind answers an unknown txid with RPC error code -5.
		if rpcErr, isRPC := err.(*rpcError); isRPC && rpcErr.Code == -5 {
			return TxOutput{}, false, nil
		}
		return TxOutput{}, false, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return TxOutput{}, false, nil
	}
	var tx rpcRawTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return TxOutput{}, false, err
	}
	if int(vout) >= len(tx.Vout) {
		return TxOutput{}, false, ErrInvalidVout
	}
	out := tx.Vout[vout]
	script, err := hex.DecodeString(out.ScriptPubKey.Hex)
	if err != nil {
		return TxOutput{}, false, err
	}
	return TxOutput{Value: btcToSats(out.Value), Script: script}, true, nil
}

// ExtractKeyID recognizes the standard P2PKH script
// OP_DUP OP_HASH160 <20> <hash> OP_EQUALVERIFY OP_CHECKSIG: the
// destination must resolve to a single address.
func (w *WalletChainSource) ExtractKeyID(script []byte) ([20]byte, bool) {
	var out [20]byte
	if len(script) != 25 {
		return out, false
	}
	if script[0] != 0x76 || script[1] != 0xa9 || script[2] != 0x14 ||
		script[23] != 0x88 || script[24] != 0xac {
		return out, false
	}
	copy(out[:], script[3:23])
	return out, true
}

type rpcUnspent struct {
	TxID    string  `json:"txid"`
	Vout    uint32  `json:"vout"`
	Amount  float64 `json:"amount"`
	Address string  `json:"address"`
}

// AvailableStakeUTXO calls listunspent to find a wallet-controlled UTXO
// meeting minBlock, then dumpprivkey to recover the signing key that will
// satisfy the block requirement on the outgoing query.
func (w *WalletChainSource) AvailableStakeUTXO(ctx context.Context, minBlock int64) ([32]byte, uint32, []byte, bool, error) {
	raw, err := w.Client.Call(ctx, "listunspent", []interface{}{1})
	if err != nil {
		return [32]byte{}, 0, nil, false, err
	}
	var unspent []rpcUnspent
	if err := json.Unmarshal(raw, &unspent); err != nil {
		return [32]byte{}, 0, nil, false, err
	}

	for _, u := range unspent {
		if btcToSats(u.Amount) < minBlock {
			continue
		}
		txHash, err := parseReversedHex(u.TxID)
		if err != nil {
			continue
		}
		wifRaw, err := w.Client.Call(ctx, "dumpprivkey", []interface{}{u.Address})
		if err != nil {
			continue
		}
		var wif string
		if err := json.Unmarshal(wifRaw, &wif); err != nil {
			continue
		}
		priv, err := decodeWIF(wif)
		if err != nil {
			continue
		}
		return txHash, u.Vout, priv, true, nil
	}
	return [32]byte{}, 0, nil, false, nil
}

func btcToSats(v float64) int64 {
	return int64(v*1e8 + 0.5)
}

// reversedHex renders a 32-byte internal tx hash in the byte-reversed hex
// convention bitcoind RPCs expect for txids.
func reversedHex(h [32]byte) string {
	var rev [32]byte
	for i := range h {
		rev[i] = h[31-i]
	}
	return hex.EncodeToString(rev[:])
}

func parseReversedHex(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("xrouter: malformed txid %q", s)
	}
	for i := range b {
		out[i] = b[31-i]
	}
	return out, nil
}

// decodeWIF base58check-decodes a wallet-import-format private key,
// stripping the version byte and optional compression flag, and verifying
// the trailing checksum.
func decodeWIF(wif string) ([]byte, error) {
	full, err := base58.Decode(wif)
	if err != nil {
		return nil, err
	}
	if len(full) < 5 {
		return nil, fmt.Errorf("xrouter: wif too short")
	}
	payload, checksum := full[:len(full)-4], full[len(full)-4:]
	sum1 := sha256.Sum256(payload)
	sum2 := sha256.Sum256(sum1[:])
	for i := 0; i < 4; i++ {
		if checksum[i] != sum2[i] {
			return nil, fmt.Errorf("xrouter: wif checksum mismatch")
		}
	}

	body := payload[1:] // drop version byte
	switch len(body) {
	case 33:
		return body[:32], nil // drop compression flag
	case 32:
		return body, nil
	default:
		return nil, fmt.Errorf("xrouter: unexpected wif payload length %d", len(body))
	}
}
