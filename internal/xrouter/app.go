package xrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

var appLog = logrus.WithField("component", "app")

// App is the single facade a binary wires up. It owns every collaborator
// and exposes one method per client-side RPC operation plus the
// node-management operations (GetReply, GetStatus, ReloadConfigs,
// DialServiceNodes) a running service node needs beyond the bare query
// API.
type App struct {
	Local      *Settings
	Directory  *PeerDirectory
	Engine     *Engine
	Dispatcher *Dispatcher
	Configs    *ConfigExchange
	Connectors *ConnectorRegistry
	Plugins    *PluginExecutor
	Transport  Transport
	Chain      ChainSource

	startedAt time.Time

	// SettingsPath is the xrouter.conf location ReloadConfigs re-reads.
	// Left empty, ReloadConfigs is a no-op returning nil (tests construct
	// Settings in memory without a backing file).
	SettingsPath string
	loadSettings func(path string) (*Settings, error)

	// Dialer bootstraps connections to the configured service nodes,
	// supplied by the transport adapter; nil in tests that drive the
	// dispatcher/engine directly without a live transport.
	Dialer func(ctx context.Context) error
}

// NewApp wires every collaborator into a ready-to-use facade. transport,
// chain and local must be non-nil.
func NewApp(local *Settings, chain ChainSource, transport Transport) *App {
	dir := NewPeerDirectory()
	connectors := NewConnectorRegistry()
	plugins := NewPluginExecutor()
	configs := NewConfigExchange(transport, chain, local)
	engine := NewEngine(local, dir, transport, chain, configs)
	dispatcher := NewDispatcher(local, chain, connectors, plugins, dir, configs, engine, transport)

	return &App{
		Local:        local,
		Directory:    dir,
		Engine:       engine,
		Dispatcher:   dispatcher,
		Configs:      configs,
		Connectors:   connectors,
		Plugins:      plugins,
		Transport:    transport,
		Chain:        chain,
		startedAt:    time.Now(),
		loadSettings: LoadSettingsFile,
	}
}

// HandleInbound is the method a transport adapter should invoke for every
// received packet; it simply forwards to the dispatcher.
func (a *App) HandleInbound(ctx context.Context, from PeerID, raw []byte) {
	a.Dispatcher.HandleInbound(ctx, from, raw)
}

// GetBlockCount, GetBlockHash, GetBlock, GetTransaction, GetAllBlocks,
// GetAllTransactions, GetBalance, GetBalanceUpdate and
// GetTransactionsBloomFilter are thin Call wrappers, one per authenticated
// read-only command.

func (a *App) GetBlockCount(ctx context.Context, currency string, confirmations int) string {
	return a.Engine.Call(ctx, GetBlockCount, currency, nil, confirmations)
}

func (a *App) GetBlockHash(ctx context.Context, currency, blockID string, confirmations int) string {
	return a.Engine.Call(ctx, GetBlockHash, currency, []string{blockID}, confirmations)
}

func (a *App) GetBlock(ctx context.Context, currency, blockHash string, confirmations int) string {
	return a.Engine.Call(ctx, GetBlock, currency, []string{blockHash}, confirmations)
}

func (a *App) GetTransaction(ctx context.Context, currency, hash string, confirmations int) string {
	return a.Engine.Call(ctx, GetTransaction, currency, []string{hash}, confirmations)
}

func (a *App) GetAllBlocks(ctx context.Context, currency string, number, confirmations int) string {
	return a.Engine.Call(ctx, GetAllBlocks, currency, []string{strconv.Itoa(number)}, confirmations)
}

func (a *App) GetAllTransactions(ctx context.Context, currency, account string, number, confirmations int) string {
	return a.Engine.Call(ctx, GetAllTransactions, currency, []string{account, strconv.Itoa(number)}, confirmations)
}

func (a *App) GetBalance(ctx context.Context, currency, account string, confirmations int) string {
	return a.Engine.Call(ctx, GetBalance, currency, []string{account}, confirmations)
}

func (a *App) GetBalanceUpdate(ctx context.Context, currency, account string, number, confirmations int) string {
	return a.Engine.Call(ctx, GetBalanceUpdate, currency, []string{account, strconv.Itoa(number)}, confirmations)
}

func (a *App) GetTransactionsBloomFilter(ctx context.Context, currency string, number int, filter string, confirmations int) string {
	return a.Engine.Call(ctx, GetTransactionsBloomFilter, currency, []string{strconv.Itoa(number), filter}, confirmations)
}

// SendTransaction broadcasts a raw signed transaction, retrying against
// successive eligible peers whenever one rejects it with a negative
// errorcode.
func (a *App) SendTransaction(ctx context.Context, currency, rawTx string, maxAttempts int) string {
	return a.Engine.SendWithRetry(ctx, SendTransaction, currency, []string{rawTx}, maxAttempts)
}

// SendCustomCall invokes a named plugin. When the plugin is configured on
// this node itself, it runs locally rather than round-tripping through
// the network: a service node querying its own plugin gains nothing from
// asking a peer to do it.
func (a *App) SendCustomCall(ctx context.Context, pluginName string, params []string, confirmations int) string {
	if ps := a.Local.GetPluginSettings(pluginName); ps != nil {
		result, err := a.Plugins.Execute(ctx, ps, params)
		if err != nil {
			return ToErrorJSON(err, "")
		}
		return result
	}
	return a.Engine.Call(ctx, CustomCall, "", append([]string{pluginName}, params...), confirmations)
}

// GetReply applies the quorum rule to the responses a still-pending query
// has gathered so far, so a caller can poll while another goroutine blocks
// inside Call. A query is deregistered when its Call returns; after that
// its id reports as unknown or expired.
func (a *App) GetReply(id QueryID, confirmations int) string {
	q, ok := a.Engine.Pending.Get(id)
	if !ok {
		return ToErrorJSON(fmt.Errorf("xrouter: unknown or expired query %s", id), id)
	}
	return quorumResult(q, confirmations, id)
}

// peerStatus is one peer's entry in nodeStatus.Nodes: its advertised
// xrouter.conf text and the plugin names it has announced, or the zero
// value if no ConfigReply has been fetched from it yet.
type peerStatus struct {
	Config  string   `json:"config"`
	Plugins []string `json:"plugins"`
}

// nodeStatus is GetStatus's JSON shape.
type nodeStatus struct {
	XRouterEnabled bool                  `json:"xrouterEnabled"`
	Currencies     []string              `json:"currencies"`
	Plugins        []string              `json:"plugins"`
	Peers          int                   `json:"peers"`
	UptimeSeconds  int64                 `json:"uptimeSeconds"`
	Config         string                `json:"config"`
	PluginConfigs  map[string]string     `json:"pluginConfigs"`
	Nodes          map[string]peerStatus `json:"nodes"`
}

// GetStatus reports the node's own running configuration, its plugins'
// raw manifests, its peer count, and each known peer's advertised
// configuration and plugin list (empty until that peer's ConfigReply has
// been fetched).
func (a *App) GetStatus() string {
	pluginConfigs := make(map[string]string)
	for _, name := range a.Local.Plugins() {
		if ps := a.Local.GetPluginSettings(name); ps != nil {
			pluginConfigs[name] = ps.RawText()
		}
	}

	nodes := make(map[string]peerStatus)
	for _, p := range a.Directory.All() {
		s := p.AdvertisedSettings()
		if s == nil {
			nodes[string(p.ID)] = peerStatus{}
			continue
		}
		nodes[string(p.ID)] = peerStatus{Config: s.RawText(), Plugins: s.Plugins()}
	}

	status := nodeStatus{
		XRouterEnabled: a.Local.XRouterEnabled(),
		Currencies:     a.Connectors.List(),
		Plugins:        a.Local.Plugins(),
		Peers:          len(a.Directory.All()),
		UptimeSeconds:  int64(time.Since(a.startedAt).Seconds()),
		Config:         a.Local.RawText(),
		PluginConfigs:  pluginConfigs,
		Nodes:          nodes,
	}
	b, err := json.Marshal(status)
	if err != nil {
		return ToErrorJSON(err, "")
	}
	return string(b)
}

// ReloadConfigs re-reads local xrouter.conf from SettingsPath. It is a
// no-op when SettingsPath was never set.
func (a *App) ReloadConfigs() error {
	if a.SettingsPath == "" {
		return nil
	}
	settings, err := a.loadSettings(a.SettingsPath)
	if err != nil {
		return err
	}
	*a.Local = *settings
	appLog.WithField("path", a.SettingsPath).Info("reloaded local configuration")
	return nil
}

// DialServiceNodes bootstraps connections to the configured service nodes.
// The actual dialing is transport-specific and supplied by the caller;
// DialServiceNodes is a no-op if none was wired, which test and CLI code
// paths that already have a live directory rely on.
func (a *App) DialServiceNodes(ctx context.Context) error {
	if a.Dialer == nil {
		return nil
	}
	return a.Dialer(ctx)
}
