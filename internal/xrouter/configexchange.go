package xrouter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var configLog = logrus.WithField("component", "config-exchange")

// configReplyPayload is the JSON object carried by a GetConfig reply.
type configReplyPayload struct {
	Config  string            `json:"config"`
	Plugins map[string]string `json:"plugins"`
}

// ConfigExchange implements the config-exchange protocol: requesting,
// caching and serving peer configuration snapshots.
type ConfigExchange struct {
	Transport Transport
	Chain     ChainSource
	Local     *Settings

	rateMu            sync.Mutex
	lastConfigRequest map[PeerID]time.Time

	queriesMu sync.Mutex
	queries   map[QueryID]PeerID
}

// NewConfigExchange wires the collaborators needed to fetch and serve
// configuration.
func NewConfigExchange(transport Transport, chain ChainSource, local *Settings) *ConfigExchange {
	return &ConfigExchange{
		Transport:         transport,
		Chain:             chain,
		Local:             local,
		lastConfigRequest: make(map[PeerID]time.Time),
		queries:           make(map[QueryID]PeerID),
	}
}

// Refresh issues a GetConfig("self") to every connected peer whose
// settings are missing or stale.
func (ce *ConfigExchange) Refresh(ctx context.Context, dir *PeerDirectory) {
	for _, p := range dir.All() {
		if !p.NeedsConfigRefresh() {
			continue
		}
		if err := ce.requestConfig(ctx, p.ID, "self"); err != nil {
			configLog.WithError(err).WithField("peer", p.Address).Warn("getconfig send failed")
			continue
		}
		configLog.WithField("peer", p.Address).Info("requested config")
	}
}

// requestConfig sends a GetConfig request carrying a fresh query id, and
// remembers that id so the reply (which arrives as an ordinary Reply
// packet) can be routed back here rather than into the generic query
// engine.
func (ce *ConfigExchange) requestConfig(ctx context.Context, peer PeerID, target string) error {
	id := NewQueryID()
	ce.queriesMu.Lock()
	ce.queries[id] = peer
	ce.queriesMu.Unlock()

	body := Encode(GetConfig, [32]byte{}, 0, string(id), target)
	return ce.Transport.Send(ctx, peer, body)
}

// TakeConfigQuery reports whether id was issued by requestConfig and, if
// so, removes it and returns the peer it was sent to. Used by the
// dispatcher to decide whether an inbound Reply is a config reply or a
// generic one, via a correlation map kept separate from the generic
// pending-query registry.
func (ce *ConfigExchange) TakeConfigQuery(id QueryID) (PeerID, bool) {
	ce.queriesMu.Lock()
	defer ce.queriesMu.Unlock()
	peer, ok := ce.queries[id]
	if ok {
		delete(ce.queries, id)
	}
	return peer, ok
}

// HandleConfigReply parses a GetConfig reply payload and stores it as
// peer's advertised settings.
func (ce *ConfigExchange) HandleConfigReply(peer *PeerRecord, payloadJSON string) error {
	var payload configReplyPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return err
	}
	settings, err := LoadSettings(payload.Config)
	if err != nil {
		return err
	}
	for name, rawPlugin := range payload.Plugins {
		ps, err := ParsePluginSettings(rawPlugin)
		if err != nil {
			configLog.WithError(err).WithField("plugin", name).Warn("failed to parse plugin settings from peer")
			continue
		}
		settings.AddPlugin(name, ps)
	}
	peer.SetAdvertisedSettings(settings)
	return nil
}

// HandleGetConfig serves the server side of config exchange, rate-limited
// per peer at ConfigRateLimit, replying with the local node's
// configuration when target is "self", or a cached remote peer's
// configuration when target names a known peer address (dropped on miss).
func (ce *ConfigExchange) HandleGetConfig(from PeerID, target string, dir *PeerDirectory) (string, bool) {
	now := time.Now()
	ce.rateMu.Lock()
	prev, seen := ce.lastConfigRequest[from]
	if seen && now.Sub(prev) < ConfigRateLimit {
		ce.rateMu.Unlock()
		return "", false
	}
	ce.lastConfigRequest[from] = now
	ce.rateMu.Unlock()

	var settings *Settings
	if target == "self" {
		settings = ce.Local
	} else {
		peer, ok := dir.Get(PeerID(target))
		if !ok {
			return "", false
		}
		settings = peer.AdvertisedSettings()
		if settings == nil {
			return "", false
		}
	}

	plugins := make(map[string]string, len(settings.Plugins()))
	for _, name := range settings.Plugins() {
		plugins[name] = settings.GetPluginSettings(name).RawText()
	}
	b, err := json.Marshal(configReplyPayload{Config: settings.RawText(), Plugins: plugins})
	if err != nil {
		return "", false
	}
	return string(b), true
}
