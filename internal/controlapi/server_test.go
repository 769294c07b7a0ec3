package controlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"xrouter-network/internal/xrouter"
)

// noopTransport never reaches a real peer; Call-style tests exercise the
// HTTP wiring and error propagation, not the fan-out itself.
type noopTransport struct{}

func (noopTransport) Send(ctx context.Context, peer xrouter.PeerID, payload []byte) error { return nil }

// starvedChain has no stake UTXO available, so any authenticated call fails
// fast with ErrInsufficientStake instead of needing a live chain node.
type starvedChain struct{}

func (starvedChain) LookupUTXO(ctx context.Context, txHash [32]byte, vout uint32) (xrouter.TxOutput, bool, error) {
	return xrouter.TxOutput{}, false, nil
}

func (starvedChain) GetTransactionOutput(ctx context.Context, txHash [32]byte, vout uint32) (xrouter.TxOutput, bool, error) {
	return xrouter.TxOutput{}, false, nil
}

func (starvedChain) ExtractKeyID(script []byte) ([20]byte, bool) { return [20]byte{}, false }

func (starvedChain) AvailableStakeUTXO(ctx context.Context, minBlock int64) ([32]byte, uint32, []byte, bool, error) {
	return [32]byte{}, 0, nil, false, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	conf := "[Main]\nxrouter = 1\n[Plugins.echo]\ntype = shell\nminParamCount = 1\nmaxParamCount = 1\nparamsType = string\ncmd = /bin/echo\n"
	local, err := xrouter.LoadSettings(conf)
	require.NoError(t, err)

	app := xrouter.NewApp(local, starvedChain{}, noopTransport{})
	srv := NewServer("127.0.0.1:0", app)
	return httptest.NewServer(srv.router)
}

func TestServer_StatusReportsLocalConfiguration(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		XRouterEnabled bool `json:"xrouterEnabled"`
		Peers          int  `json:"peers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.True(t, status.XRouterEnabled)
	require.Equal(t, 0, status.Peers)
}

func TestServer_CallUnknownCommandReturnsBadRequest(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{"command": "NotACommand", "currency": "BTC"})
	resp, err := http.Post(ts.URL+"/call", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CallWithoutStakePropagatesErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{
		"command":       "GetBlockCount",
		"currency":      "BTC",
		"confirmations": 1,
	})
	resp, err := http.Post(ts.URL+"/call", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var obj map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&obj))
	require.Contains(t, obj["error"], "minimum block requirement")
}

func TestServer_SendPropagatesErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{
		"currency":    "BTC",
		"rawtx":       "deadbeef",
		"maxAttempts": 1,
	})
	resp, err := http.Post(ts.URL+"/send", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var obj map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&obj))
	require.Contains(t, obj["error"], "minimum block requirement")
}

func TestServer_CustomCallRunsLocalPluginWithoutNetwork(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{
		"plugin":        "echo",
		"params":        []string{"hi"},
		"confirmations": 1,
	})
	resp, err := http.Post(ts.URL+"/customcall", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	require.Contains(t, string(buf[:n]), "hi")
}

func TestServer_ReplyUnknownQueryReturnsErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/reply/never-issued?confirmations=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var obj map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&obj))
	require.Contains(t, obj["error"], "unknown or expired query")
}

func TestServer_ReloadNoopWithoutSettingsPath(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/reload", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var obj map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&obj))
	require.True(t, obj["reloaded"])
}
