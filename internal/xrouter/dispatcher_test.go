package xrouter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

// recordingTransport captures every Send call for assertions and can
// optionally deliver a canned reply back through an inbound callback.
type recordingTransport struct {
	mu   sync.Mutex
	sent []sentPacket
}

type sentPacket struct {
	to      PeerID
	payload []byte
}

func (r *recordingTransport) Send(ctx context.Context, peer PeerID, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentPacket{to: peer, payload: payload})
	return nil
}

func (r *recordingTransport) last() (sentPacket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return sentPacket{}, false
	}
	return r.sent[len(r.sent)-1], true
}

func newTestDispatcher(t *testing.T, confText string) (*Dispatcher, *recordingTransport, *fakeChainSource) {
	t.Helper()
	local, err := LoadSettings(confText)
	require.NoError(t, err)

	chain := newFakeChainSource()
	dir := NewPeerDirectory()
	connectors := NewConnectorRegistry()
	plugins := NewPluginExecutor()
	transport := &recordingTransport{}
	configs := NewConfigExchange(transport, chain, local)
	engine := NewEngine(local, dir, transport, chain, configs)
	d := NewDispatcher(local, chain, connectors, plugins, dir, configs, engine, transport)
	return d, transport, chain
}

func TestDispatcher_DropsWhenXRouterDisabled(t *testing.T) {
	d, transport, _ := newTestDispatcher(t, "[Main]\nxrouter = 0\n")
	d.HandleInbound(context.Background(), "peer-1", Encode(GetConfig, [32]byte{}, 0, "id", "self"))
	_, ok := transport.last()
	require.False(t, ok)
}

func TestDispatcher_DropsFirewalledPeer(t *testing.T) {
	d, transport, _ := newTestDispatcher(t, "[Main]\nxrouter = 1\n")
	d.Firewall.BlockPeer("peer-1")

	d.HandleInbound(context.Background(), "peer-1", Encode(GetConfig, [32]byte{}, 0, "id", "self"))
	_, ok := transport.last()
	require.False(t, ok)
}

func TestDispatcher_MalformedPacketPenalizesPeer(t *testing.T) {
	d, _, _ := newTestDispatcher(t, "[Main]\nxrouter = 1\n")
	peer := d.Directory.Upsert("peer-1", "addr")

	d.HandleInbound(context.Background(), "peer-1", []byte{0x01}) // too short to even carry a command
	require.Negative(t, peer.Score())
}

func TestDispatcher_GetConfigRepliesWithLocalSettings(t *testing.T) {
	conf := "[Main]\nxrouter = 1\n[BTC]\ndisabled = 0\n"
	d, transport, _ := newTestDispatcher(t, conf)

	d.HandleInbound(context.Background(), "peer-1", Encode(GetConfig, [32]byte{}, 0, "query-1", "self"))

	sent, ok := transport.last()
	require.True(t, ok)
	require.Equal(t, PeerID("peer-1"), sent.to)

	p, err := Decode(sent.payload)
	require.NoError(t, err)
	require.Equal(t, Reply, p.Command)
	require.Equal(t, "query-1", p.Args[0])

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(p.Args[1]), &body))
	require.Contains(t, body["config"], "[Main]")
}

func TestDispatcher_AuthenticatedCommandRejectsBadSignature(t *testing.T) {
	d, transport, _ := newTestDispatcher(t, "[Main]\nxrouter = 1\n[BTC]\ndisabled = 0\n")
	peer := d.Directory.Upsert("peer-1", "addr")

	body := Encode(GetBlockCount, [32]byte{}, 0, "id", "BTC")
	tampered := append(body, make([]byte, signatureSize+pubkeySize)...) // zeroed sig/pubkey, will fail to parse/verify

	d.HandleInbound(context.Background(), "peer-1", tampered)

	_, ok := transport.last()
	require.False(t, ok)
	require.Negative(t, peer.Score())
}

func TestDispatcher_AuthenticatedCommandRejectsInsufficientStake(t *testing.T) {
	d, transport, chain := newTestDispatcher(t, "[Main]\nxrouter = 1\n[BTC]\ndisabled = 0\n")
	peer := d.Directory.Upsert("peer-1", "addr")

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	keyID, err := hash160(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	var txHash [32]byte
	txHash[0] = 0x9
	chain.put(txHash, 0, TxOutput{Value: MinBlock - 1, Script: p2pkhScript(keyID)})

	body := Encode(GetBlockCount, txHash, 0, "id", "BTC")
	signed := Sign(body, priv)

	d.HandleInbound(context.Background(), "peer-1", signed)

	_, ok := transport.last()
	require.False(t, ok)
	require.Negative(t, peer.Score())
}

func TestDispatcher_AuthenticatedCommandDispatchesToConnector(t *testing.T) {
	d, transport, chain := newTestDispatcher(t, "[Main]\nxrouter = 1\n[BTC]\ndisabled = 0\n")
	d.Directory.Upsert("peer-1", "addr")

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	keyID, err := hash160(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	var txHash [32]byte
	txHash[0] = 0x1
	chain.put(txHash, 0, TxOutput{Value: MinBlock, Script: p2pkhScript(keyID)})

	d.Connectors.Register("BTC", &stubConnector{blockCount: 42})

	body := Encode(GetBlockCount, txHash, 0, "id", "BTC")
	signed := Sign(body, priv)
	d.HandleInbound(context.Background(), "peer-1", signed)

	sent, ok := transport.last()
	require.True(t, ok)
	p, err := Decode(sent.payload)
	require.NoError(t, err)
	require.Equal(t, "id", p.Args[0])
	require.JSONEq(t, `42`, p.Args[1])
}

func TestDispatcher_MissingConnectorRepliesWithError(t *testing.T) {
	d, transport, chain := newTestDispatcher(t, "[Main]\nxrouter = 1\n[BTC]\ndisabled = 0\n")
	d.Directory.Upsert("peer-1", "addr")

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	keyID, err := hash160(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	var txHash [32]byte
	txHash[0] = 0x2
	chain.put(txHash, 0, TxOutput{Value: MinBlock, Script: p2pkhScript(keyID)})

	body := Encode(GetBlockCount, txHash, 0, "id", "BTC")
	signed := Sign(body, priv)
	d.HandleInbound(context.Background(), "peer-1", signed)

	sent, ok := transport.last()
	require.True(t, ok)
	p, err := Decode(sent.payload)
	require.NoError(t, err)
	require.Contains(t, p.Args[1], "No connector for currency BTC")
}

// stubConnector answers every Connector method with canned values, used to
// exercise the dispatcher's dispatch table without a real RPC node.
type stubConnector struct {
	blockCount int
}

func (s *stubConnector) GetBlockCount(ctx context.Context) (interface{}, error) { return s.blockCount, nil }
func (s *stubConnector) GetBlockHash(ctx context.Context, blockID string) (interface{}, error) {
	return "hash", nil
}
func (s *stubConnector) GetBlock(ctx context.Context, blockHash string) (interface{}, error) {
	return "block", nil
}
func (s *stubConnector) GetTransaction(ctx context.Context, hash string) (interface{}, error) {
	return "tx", nil
}
func (s *stubConnector) GetAllBlocks(ctx context.Context, number int) (interface{}, error) {
	return []string{}, nil
}
func (s *stubConnector) GetAllTransactions(ctx context.Context, account string, number int) (interface{}, error) {
	return []string{}, nil
}
func (s *stubConnector) GetBalance(ctx context.Context, account string) (interface{}, error) {
	return 0, nil
}
func (s *stubConnector) GetBalanceUpdate(ctx context.Context, account string, number int) (interface{}, error) {
	return 0, nil
}
func (s *stubConnector) GetTransactionsBloomFilter(ctx context.Context, number int, serializedFilter []byte) (interface{}, error) {
	return "", nil
}
func (s *stubConnector) SendTransaction(ctx context.Context, hex string) (interface{}, error) {
	return "txid", nil
}

var _ Connector = (*stubConnector)(nil)
