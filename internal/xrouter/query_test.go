package xrouter

import (
	"context"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func mustPrivBytes(t *testing.T) []byte {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return priv.Serialize()
}

// fakeEngineChain provides a single stake UTXO for signing outgoing
// requests, independent of fakeChainSource's admission-control focus.
type fakeEngineChain struct {
	*fakeChainSource
	privBytes []byte
	txHash    [32]byte
	vout      uint32
}

func (f *fakeEngineChain) AvailableStakeUTXO(ctx context.Context, minBlock int64) ([32]byte, uint32, []byte, bool, error) {
	return f.txHash, f.vout, f.privBytes, true, nil
}

func newFakeEngineChain(t *testing.T) *fakeEngineChain {
	t.Helper()
	return &fakeEngineChain{
		fakeChainSource: newFakeChainSource(),
		privBytes:       mustPrivBytes(t),
		txHash:          [32]byte{0x42},
		vout:            0,
	}
}

// fanoutTransport simulates eligible peers replying to whatever was sent to
// them, letting Engine.Call/SendWithRetry be exercised without a real
// network.
type fanoutTransport struct {
	engine   *Engine
	replies  map[PeerID]string // canned reply payload per peer
}

func (ft *fanoutTransport) Send(ctx context.Context, peer PeerID, payload []byte) error {
	p, err := Decode(payload)
	if err != nil {
		return err
	}
	id := QueryID(p.Args[0])
	reply, ok := ft.replies[peer]
	if !ok {
		return nil // simulate a peer that never answers
	}
	ft.engine.OnReply(peer, id, reply)
	return nil
}

func settingsEnabling(t *testing.T, currency string) *Settings {
	t.Helper()
	s, err := LoadSettings("[Main]\nxrouter = 1\nwait = 50\n[" + currency + "]\ndisabled = 0\n")
	require.NoError(t, err)
	return s
}

func eligiblePeerWithSettings(t *testing.T, dir *PeerDirectory, id PeerID, currency string) *PeerRecord {
	t.Helper()
	p := dir.Upsert(id, string(id))
	p.SetAdvertisedSettings(settingsEnabling(t, currency))
	return p
}

func TestEngine_Call_ReturnsMajorityWinner(t *testing.T) {
	local := settingsEnabling(t, "BTC")
	dir := NewPeerDirectory()
	chain := newFakeEngineChain(t)

	transport := &fanoutTransport{replies: map[PeerID]string{
		"peer-a": `{"height":100}`,
		"peer-b": `{"height":100}`,
		"peer-c": `{"height":999}`,
	}}
	configs := NewConfigExchange(transport, chain, local)
	engine := NewEngine(local, dir, transport, chain, configs)
	transport.engine = engine

	eligiblePeerWithSettings(t, dir, "peer-a", "BTC")
	eligiblePeerWithSettings(t, dir, "peer-b", "BTC")
	eligiblePeerWithSettings(t, dir, "peer-c", "BTC")

	result := engine.Call(context.Background(), GetBlockCount, "BTC", nil, 3)
	require.Equal(t, `{"height":100}`, result)
}

func TestEngine_Call_NoEligiblePeersErrors(t *testing.T) {
	local := settingsEnabling(t, "BTC")
	dir := NewPeerDirectory()
	chain := newFakeEngineChain(t)
	transport := &fanoutTransport{replies: map[PeerID]string{}}
	configs := NewConfigExchange(transport, chain, local)
	engine := NewEngine(local, dir, transport, chain, configs)
	transport.engine = engine

	result := engine.Call(context.Background(), GetBlockCount, "BTC", nil, 2)
	require.Contains(t, result, ErrNoEligiblePeers.Error())
}

func TestEngine_Call_DisabledLocallyErrors(t *testing.T) {
	local, err := LoadSettings("[Main]\nxrouter = 0\n")
	require.NoError(t, err)
	dir := NewPeerDirectory()
	chain := newFakeEngineChain(t)
	transport := &fanoutTransport{replies: map[PeerID]string{}}
	configs := NewConfigExchange(transport, chain, local)
	engine := NewEngine(local, dir, transport, chain, configs)

	result := engine.Call(context.Background(), GetBlockCount, "BTC", nil, 1)
	require.Contains(t, result, ErrDisabled.Error())
}

func TestEngine_SendWithRetry_SkipsNegativeErrorCodeReplies(t *testing.T) {
	local := settingsEnabling(t, "BTC")
	dir := NewPeerDirectory()
	chain := newFakeEngineChain(t)

	transport := &fanoutTransport{replies: map[PeerID]string{
		"peer-a": `{"errorcode":-1,"error":"rejected"}`,
		"peer-b": `{"txid":"abc123"}`,
	}}
	configs := NewConfigExchange(transport, chain, local)
	engine := NewEngine(local, dir, transport, chain, configs)
	transport.engine = engine

	eligiblePeerWithSettings(t, dir, "peer-a", "BTC")
	eligiblePeerWithSettings(t, dir, "peer-b", "BTC")

	result := engine.SendWithRetry(context.Background(), SendTransaction, "BTC", []string{"rawhex"}, 2)
	require.Equal(t, `{"txid":"abc123"}`, result)
}

func TestHasNegativeErrorCode(t *testing.T) {
	require.True(t, hasNegativeErrorCode(`{"errorcode":-5}`))
	require.False(t, hasNegativeErrorCode(`{"errorcode":0}`))
	require.False(t, hasNegativeErrorCode(`{"result":"ok"}`))
	require.False(t, hasNegativeErrorCode(`not-json`))
}
