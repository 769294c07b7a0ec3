package xrouter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConf = `
[Main]
xrouter = 1
wait = 15000

[BTC]
disabled = 0

[BTC.GetBlockCount]
disabled = 0
timeout = 10

[BTC.SendTransaction]
disabled = 1

[Plugins.echo]
type = shell
minParamCount = 1
maxParamCount = 1
paramsType = string
cmd = /bin/echo
`

func TestLoadSettings_ParsesMainAndCurrencySections(t *testing.T) {
	s, err := LoadSettings(sampleConf)
	require.NoError(t, err)

	require.True(t, s.XRouterEnabled())
	require.Equal(t, 15000, s.WaitMillis())
	require.True(t, s.WalletEnabled("BTC"))
	require.True(t, s.IsAvailableCommand(GetBlockCount, "BTC"))
	require.False(t, s.IsAvailableCommand(SendTransaction, "BTC"))
	require.Equal(t, float64(10), s.GetCommandTimeout(GetBlockCount, "BTC"))
}

func TestLoadSettings_DiscoversPlugins(t *testing.T) {
	s, err := LoadSettings(sampleConf)
	require.NoError(t, err)

	require.True(t, s.HasPlugin("echo"))
	ps := s.GetPluginSettings("echo")
	require.Equal(t, "shell", ps.Type)
	require.Equal(t, "/bin/echo", ps.Cmd)
	require.Equal(t, []string{"string"}, ps.ParamsType)
}

func TestLoadSettings_PluginRawTextMatchesItsSection(t *testing.T) {
	s, err := LoadSettings(sampleConf)
	require.NoError(t, err)

	raw := s.GetPluginSettings("echo").RawText()
	require.Contains(t, raw, "cmd = /bin/echo")
	require.NotContains(t, raw, "[Main]", "plugin raw text must not bleed in neighboring sections")
	require.NotContains(t, raw, "[BTC]")
}

func TestSettings_WaitMillisDefaultsWhenUnset(t *testing.T) {
	s, err := LoadSettings("[Main]\nxrouter = 1\n")
	require.NoError(t, err)
	require.Equal(t, DefaultTimeoutMillis, s.WaitMillis())
}

func TestSettings_WalletDisabledWhenCurrencyUnknown(t *testing.T) {
	s, err := LoadSettings("[Main]\nxrouter = 1\n")
	require.NoError(t, err)
	require.False(t, s.WalletEnabled("ETH"))
}

func TestLoadSettingsFile_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xrouter.conf")
	require.NoError(t, os.WriteFile(path, []byte(sampleConf), 0644))

	s, err := LoadSettingsFile(path)
	require.NoError(t, err)
	require.True(t, s.XRouterEnabled())
}

func TestLoadSettingsFile_MissingFileErrors(t *testing.T) {
	_, err := LoadSettingsFile(filepath.Join(t.TempDir(), "missing.conf"))
	require.Error(t, err)
}

func TestParsePluginSettings_RoundTripsThroughConfigReply(t *testing.T) {
	raw := "type = rpc\nrpcIp = 10.0.0.5\nrpcPort = 8080\nrpcCommand = relay\nminParamCount = 0\nmaxParamCount = 3\n"
	ps, err := ParsePluginSettings(raw)
	require.NoError(t, err)
	require.Equal(t, "rpc", ps.Type)
	require.Equal(t, "10.0.0.5", ps.RPCIp)
	require.Equal(t, "relay", ps.RPCCommand)
	require.Equal(t, raw, ps.RawText())
}
