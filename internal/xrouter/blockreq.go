package xrouter

import (
	"context"
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160"
)

// MinBlock is the minimum stake, in base units, a UTXO must carry to
// satisfy the block requirement.
const MinBlock int64 = 200

// hash160 is RIPEMD160(SHA256(data)), the standard key-hash used to derive
// a single-address destination from a public key.
func hash160(data []byte) ([20]byte, error) {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	if _, err := h.Write(sum[:]); err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// VerifyBlockRequirement is the sole admission-control gate for
// authenticated packet kinds. It looks up the referenced UTXO, falling
// back to a full transaction fetch, and checks that its value meets
// MinBlock and that it pays to the key that signed the packet. A vout
// that doesn't exist on the referenced transaction surfaces as
// ErrInvalidVout (via the ChainSource's error return), not ErrUnknownUTXO:
// the two are distinguishable failure modes, a malformed reference versus
// a transaction the node has simply never seen.
func VerifyBlockRequirement(ctx context.Context, src ChainSource, p *Packet) error {
	out, ok, err := src.LookupUTXO(ctx, p.UTXOTxHash, p.UTXOVout)
	if err != nil {
		return err
	}
	if !ok {
		out, ok, err = src.GetTransactionOutput(ctx, p.UTXOTxHash, p.UTXOVout)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownUTXO
		}
	}

	if out.Value < MinBlock {
		return ErrInsufficientStake
	}

	destKeyID, ok := src.ExtractKeyID(out.Script)
	if !ok {
		return ErrUnsupportedScript
	}

	packetKeyID, err := p.PubkeyHash160()
	if err != nil {
		return ErrKeyMismatch
	}
	if packetKeyID != destKeyID {
		return ErrKeyMismatch
	}

	return nil
}
