package xrouter

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip_Unauthenticated(t *testing.T) {
	body := Encode(GetConfig, [32]byte{}, 0, "query-id", "self")

	p, err := Decode(body)
	require.NoError(t, err)
	require.Equal(t, GetConfig, p.Command)
	require.Equal(t, []string{"query-id", "self"}, p.Args)
	require.False(t, p.Command.IsAuthenticated())
}

func TestEncodeSignVerify_Authenticated(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	var txHash [32]byte
	txHash[0] = 0xaa
	body := Encode(GetBlockCount, txHash, 3, "query-id", "BTC")
	signed := Sign(body, priv)

	p, err := Decode(signed)
	require.NoError(t, err)
	require.Equal(t, GetBlockCount, p.Command)
	require.Equal(t, txHash, p.UTXOTxHash)
	require.Equal(t, uint32(3), p.UTXOVout)
	require.Equal(t, []string{"query-id", "BTC"}, p.Args)
	require.True(t, Verify(p))
}

func TestVerify_RejectsTamperedArgs(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	body := Encode(GetBlockCount, [32]byte{}, 0, "query-id", "BTC")
	signed := Sign(body, priv)

	// Flip a byte inside the first argument's bytes, after the 2-byte
	// command and 36-byte UTXO preamble.
	tampered := append([]byte(nil), signed...)
	tampered[2+36] ^= 0xff

	p, err := Decode(tampered)
	require.NoError(t, err)
	require.False(t, Verify(p))
}

func TestDecode_MalformedMissingTerminator(t *testing.T) {
	body := Encode(GetConfig, [32]byte{}, 0, "query-id", "self")
	truncated := body[:len(body)-1] // drop the final NUL

	_, err := Decode(truncated)
	require.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecode_TooShortForAuthenticatedPreamble(t *testing.T) {
	_, err := Decode([]byte{byte(GetBlockCount), 0x00, 0x01, 0x02})
	require.ErrorIs(t, err, ErrMalformedPacket)
}

func TestPubkeyHash160_MatchesHash160(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	body := Encode(GetBlockCount, [32]byte{}, 0, "id", "BTC")
	signed := Sign(body, priv)

	p, err := Decode(signed)
	require.NoError(t, err)

	want, err := hash160(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	got, err := p.PubkeyHash160()
	require.NoError(t, err)
	require.Equal(t, want, got)
}
