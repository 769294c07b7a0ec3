package xrouter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

var dispatchLog = logrus.WithField("component", "dispatcher")

const (
	dosPenaltyBadSignature = 10
	dosPenaltyBadStake     = 10
	dosPenaltyRateLimited  = 100
	dosPenaltyMalformed    = 5
)

// Dispatcher is the server-side inbound pipeline: decode, firewall,
// authenticate, rate-limit, dispatch, reply. It owns no network resources
// of its own; Transport.Send is used only to mail back replies.
type Dispatcher struct {
	Local      *Settings
	Chain      ChainSource
	Connectors *ConnectorRegistry
	Plugins    *PluginExecutor
	Directory  *PeerDirectory
	Configs    *ConfigExchange
	Engine     *Engine
	Transport  Transport
	Firewall   *Firewall
}

// NewDispatcher wires the collaborators the inbound pipeline needs. The
// returned Dispatcher has an empty, always-open Firewall; callers that want
// operator-managed deny-lists replace it after construction.
func NewDispatcher(local *Settings, chain ChainSource, connectors *ConnectorRegistry, plugins *PluginExecutor, dir *PeerDirectory, ce *ConfigExchange, engine *Engine, transport Transport) *Dispatcher {
	return &Dispatcher{
		Local:      local,
		Chain:      chain,
		Connectors: connectors,
		Plugins:    plugins,
		Directory:  dir,
		Configs:    ce,
		Engine:     engine,
		Transport:  transport,
		Firewall:   NewFirewall(),
	}
}

// HandleInbound is the single entry point the transport calls for every
// received XRouter payload.
func (d *Dispatcher) HandleInbound(ctx context.Context, from PeerID, raw []byte) {
	peer, _ := d.Directory.Get(from)

	if !d.Local.XRouterEnabled() {
		return
	}

	if err := d.Firewall.CheckPeer(from); err != nil {
		dispatchLog.WithField("peer", from).Debug("peer firewalled, dropping")
		return
	}

	p, err := Decode(raw)
	if err != nil {
		dispatchLog.WithError(err).WithField("peer", from).Debug("dropping malformed packet")
		d.penalize(peer, dosPenaltyMalformed)
		return
	}

	if err := d.Firewall.CheckPacket(p); err != nil {
		dispatchLog.WithField("peer", from).Debug("signing key firewalled, dropping")
		return
	}

	if p.Command.IsAuthenticated() {
		if !Verify(p) {
			dispatchLog.WithField("peer", from).Warn("bad signature, dropping")
			d.penalize(peer, dosPenaltyBadSignature)
			return
		}
		if err := VerifyBlockRequirement(ctx, d.Chain, p); err != nil {
			dispatchLog.WithError(err).WithField("peer", from).Warn("block requirement failed, dropping")
			d.penalize(peer, dosPenaltyBadStake)
			return
		}
		d.dispatchAuthenticated(ctx, from, peer, p)
		return
	}

	switch p.Command {
	case GetConfig:
		d.handleGetConfig(ctx, from, p)
	case Reply, ConfigReply:
		d.handleReply(from, p)
	default:
		dispatchLog.WithField("command", p.Command).Debug("unhandled unauthenticated command, dropping")
	}
}

func (d *Dispatcher) penalize(peer *PeerRecord, delta int64) {
	if peer != nil {
		peer.AddScore(-delta)
	}
}

func (d *Dispatcher) handleGetConfig(ctx context.Context, from PeerID, p *Packet) {
	if len(p.Args) != 2 {
		dispatchLog.WithField("peer", from).Debug("malformed GetConfig, dropping")
		return
	}
	id, target := QueryID(p.Args[0]), p.Args[1]

	payload, ok := d.Configs.HandleGetConfig(from, target, d.Directory)
	if !ok {
		return // rate-limited or unknown peer: silently dropped
	}
	d.reply(ctx, from, id, payload)
}

func (d *Dispatcher) handleReply(from PeerID, p *Packet) {
	if len(p.Args) != 2 {
		dispatchLog.WithField("peer", from).Debug("malformed Reply, dropping")
		return
	}
	id, payload := QueryID(p.Args[0]), p.Args[1]

	if configPeer, ok := d.Configs.TakeConfigQuery(id); ok {
		peer, known := d.Directory.Get(configPeer)
		if !known {
			return
		}
		if err := d.Configs.HandleConfigReply(peer, payload); err != nil {
			dispatchLog.WithError(err).WithField("peer", configPeer).Warn("failed to parse config reply")
		}
		return
	}

	d.Engine.OnReply(from, id, payload)
}

// dispatchAuthenticated handles the authenticated commands once the
// signature and block requirement have already passed: permission check,
// rate limit, dispatch, reply.
func (d *Dispatcher) dispatchAuthenticated(ctx context.Context, from PeerID, peer *PeerRecord, p *Packet) {
	if len(p.Args) < 2 {
		dispatchLog.WithField("peer", from).Debug("malformed request, dropping")
		return
	}
	id := QueryID(p.Args[0])
	currency := p.Args[1]
	rest := p.Args[2:]

	if p.Command == CustomCall {
		d.dispatchCustomCall(ctx, from, peer, id, rest)
		return
	}

	if !d.Local.IsAvailableCommand(p.Command, currency) {
		dispatchLog.WithField("command", p.Command).WithField("currency", currency).Debug("command disabled locally, dropping")
		return
	}

	key := RateKey(currency, p.Command)
	if peer != nil {
		timeout := secondsToDuration(d.Local.GetCommandTimeout(p.Command, currency))
		if peer.ReceivedWithin(key, timeout) {
			d.penalize(peer, dosPenaltyRateLimited)
			return
		}
		peer.MarkReceived(key)
	}

	conn, ok := d.Connectors.Lookup(currency)
	if !ok {
		d.reply(ctx, from, id, connectorMissingJSON(currency))
		return
	}

	result, err := d.invokeConnector(ctx, conn, p.Command, rest)
	if err != nil {
		d.reply(ctx, from, id, ToErrorJSON(err, ""))
		return
	}
	d.reply(ctx, from, id, toJSONString(result))
}

func (d *Dispatcher) dispatchCustomCall(ctx context.Context, from PeerID, peer *PeerRecord, id QueryID, rest []string) {
	if len(rest) < 1 {
		dispatchLog.WithField("peer", from).Debug("malformed CustomCall, dropping")
		return
	}
	pluginName, params := rest[0], rest[1:]

	ps := d.Local.GetPluginSettings(pluginName)
	if ps == nil {
		d.reply(ctx, from, id, ToErrorJSON(ErrPluginNotFound, id))
		return
	}

	key := RateKey(pluginName, CustomCall)
	if peer != nil {
		timeout := secondsToDuration(ps.Timeout)
		if peer.ReceivedWithin(key, timeout) {
			d.penalize(peer, dosPenaltyRateLimited)
			return
		}
		peer.MarkReceived(key)
	}

	result, err := d.Plugins.Execute(ctx, ps, params)
	if err != nil {
		d.reply(ctx, from, id, ToErrorJSON(err, id))
		return
	}
	d.reply(ctx, from, id, result)
}

func (d *Dispatcher) invokeConnector(ctx context.Context, c Connector, cmd Command, args []string) (interface{}, error) {
	switch cmd {
	case GetBlockCount:
		return c.GetBlockCount(ctx)
	case GetBlockHash:
		if len(args) < 1 {
			return nil, ErrBadArg
		}
		return c.GetBlockHash(ctx, args[0])
	case GetBlock:
		if len(args) < 1 {
			return nil, ErrBadArg
		}
		return c.GetBlock(ctx, args[0])
	case GetTransaction:
		if len(args) < 1 {
			return nil, ErrBadArg
		}
		return c.GetTransaction(ctx, args[0])
	case GetAllBlocks:
		n, err := intArgOrZero(args, 0)
		if err != nil {
			return nil, err
		}
		return c.GetAllBlocks(ctx, n)
	case GetAllTransactions:
		if len(args) < 1 {
			return nil, ErrBadArg
		}
		n, err := intArgOrZero(args, 1)
		if err != nil {
			return nil, err
		}
		return c.GetAllTransactions(ctx, args[0], n)
	case GetBalance:
		if len(args) < 1 {
			return nil, ErrBadArg
		}
		return c.GetBalance(ctx, args[0])
	case GetBalanceUpdate:
		if len(args) < 1 {
			return nil, ErrBadArg
		}
		n, err := intArgOrZero(args, 1)
		if err != nil {
			return nil, err
		}
		return c.GetBalanceUpdate(ctx, args[0], n)
	case GetTransactionsBloomFilter:
		n, err := intArgOrZero(args, 0)
		if err != nil {
			return nil, err
		}
		var filter []byte
		if len(args) > 1 {
			filter = []byte(args[1])
		}
		return c.GetTransactionsBloomFilter(ctx, n, filter)
	case SendTransaction:
		if len(args) < 1 {
			return nil, ErrBadArg
		}
		return c.SendTransaction(ctx, args[0])
	default:
		return nil, ErrBadArg
	}
}

func intArgOrZero(args []string, idx int) (int, error) {
	if idx >= len(args) || args[idx] == "" {
		return 0, nil
	}
	return parseIntArg(args[idx])
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func (d *Dispatcher) reply(ctx context.Context, to PeerID, id QueryID, payload string) {
	body := Encode(Reply, [32]byte{}, 0, string(id), payload)
	if err := d.Transport.Send(ctx, to, body); err != nil {
		dispatchLog.WithError(err).WithField("peer", to).Warn("failed to send reply")
	}
}

// toJSONString renders a connector's result as the JSON text carried inside
// a Reply payload. A json.RawMessage or a string is used verbatim; any
// other Go value (RPCConnector returns results already decoded from JSON)
// is marshalled.
func toJSONString(v interface{}) string {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ToErrorJSON(err, "")
	}
	return string(b)
}
