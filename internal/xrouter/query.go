package xrouter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/sirupsen/logrus"
)

var queryLog = logrus.WithField("component", "query-engine")

// Engine is the client-side fan-out/quorum/timeout query engine.
type Engine struct {
	Local     *Settings
	Directory *PeerDirectory
	Pending   *PendingQueryRegistry
	Transport Transport
	Chain     ChainSource
	Configs   *ConfigExchange
}

// NewEngine wires the collaborators required to run Call.
func NewEngine(local *Settings, dir *PeerDirectory, transport Transport, chain ChainSource, ce *ConfigExchange) *Engine {
	return &Engine{
		Local:     local,
		Directory: dir,
		Pending:   NewPendingQueryRegistry(),
		Transport: transport,
		Chain:     chain,
		Configs:   ce,
	}
}

// eligiblePeers selects peers with advertised settings present,
// wallet+command enabled, and the per-peer rate limit not tripped, sorted
// by score desc / address asc. CustomCall has no currency of its own (the
// plugin name travels inside the request args instead), so it skips the
// wallet/command gate: whether a peer actually has the named plugin is
// discovered per-peer from its reply, not filtered client-side.
func (e *Engine) eligiblePeers(currency string, cmd Command) []*PeerRecord {
	key := RateKey(currency, cmd)
	return e.Directory.Eligible(func(p *PeerRecord) bool {
		s := p.AdvertisedSettings()
		// Unfetched peers (nil advertised settings) are excluded explicitly,
		// not silently.
		if s == nil {
			return false
		}
		if cmd != CustomCall && (!s.WalletEnabled(currency) || !s.IsAvailableCommand(cmd, currency)) {
			return false
		}
		timeout := time.Duration(s.GetCommandTimeout(cmd, currency) * float64(time.Second))
		return !p.SentWithin(key, timeout)
	})
}

// buildSignedRequest assembles and signs a request packet: query id,
// currency and args behind the UTXO stake preamble. Shared by Call and
// the send-transaction retry loop.
func (e *Engine) buildSignedRequest(ctx context.Context, cmd Command, currency string, args []string) (QueryID, []byte, error) {
	txHash, vout, privBytes, ok, err := e.Chain.AvailableStakeUTXO(ctx, MinBlock)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrInsufficientStake
	}
	priv := secp256k1.PrivKeyFromBytes(privBytes)

	id := NewQueryID()
	body := Encode(cmd, txHash, vout, append([]string{string(id), currency}, args...)...)
	return id, Sign(body, priv), nil
}

// Call builds a signed request, fans it out to `confirmations` eligible
// peers, and returns the quorum result (or an error) as a JSON string.
func (e *Engine) Call(ctx context.Context, cmd Command, currency string, args []string, confirmations int) string {
	if !e.Local.XRouterEnabled() {
		return ToErrorJSON(ErrDisabled, "")
	}

	if e.Configs != nil {
		e.Configs.Refresh(ctx, e.Directory)
	}

	id, signed, err := e.buildSignedRequest(ctx, cmd, currency, args)
	if err != nil {
		return ToErrorJSON(err, "")
	}

	peers := e.eligiblePeers(currency, cmd)
	if len(peers) < confirmations {
		return ToErrorJSON(ErrNoEligiblePeers, id)
	}

	key := RateKey(currency, cmd)
	pq := NewPendingQuery(id, confirmations)
	e.Pending.Register(pq)
	defer e.Pending.Deregister(id)

	target := peers[:confirmations]
	for _, p := range target {
		if err := e.Transport.Send(ctx, p.ID, signed); err != nil {
			queryLog.WithError(err).WithField("peer", p.Address).Warn("send failed")
			continue
		}
		p.MarkSent(key)
	}

	pq.Wait(time.Duration(e.Local.WaitMillis()) * time.Millisecond)

	return quorumResult(pq, confirmations, id)
}

// quorumResult applies the quorum rule: if at most half of the requested
// confirmations answered, NoResponse; otherwise the first payload (in
// arrival order) with strict majority wins; otherwise NoConsensus.
func quorumResult(pq *PendingQuery, confirmations int, id QueryID) string {
	if winner, ok := pq.Winner(); ok {
		return winner
	}

	responses := pq.Responses()
	got := len(responses)
	if got <= confirmations/2 {
		return ToErrorJSON(ErrNoResponse, id)
	}

	for _, cand := range responses {
		count := 0
		for _, r := range responses {
			if r == cand {
				count++
			}
		}
		if count > confirmations/2 {
			return cand
		}
	}
	return ToErrorJSON(ErrNoConsensus, id)
}

// SendWithRetry implements the send-transaction path: unlike Call's
// fan-out and vote, a broadcast only needs one peer to accept it, so this
// tries peers one at a time in eligibility order, moving to the next peer
// whenever a reply carries a negative "errorcode" field, until one
// succeeds, maxAttempts peers have been tried, or the peer list is
// exhausted. A maxAttempts of zero or less tries every eligible peer.
func (e *Engine) SendWithRetry(ctx context.Context, cmd Command, currency string, args []string, maxAttempts int) string {
	if !e.Local.XRouterEnabled() {
		return ToErrorJSON(ErrDisabled, "")
	}
	if e.Configs != nil {
		e.Configs.Refresh(ctx, e.Directory)
	}

	id, signed, err := e.buildSignedRequest(ctx, cmd, currency, args)
	if err != nil {
		return ToErrorJSON(err, "")
	}

	peers := e.eligiblePeers(currency, cmd)
	if len(peers) == 0 {
		return ToErrorJSON(ErrNoEligiblePeers, id)
	}
	if maxAttempts <= 0 || maxAttempts > len(peers) {
		maxAttempts = len(peers)
	}

	key := RateKey(currency, cmd)
	pq := NewPendingQuery(id, 1)
	e.Pending.Register(pq)
	defer e.Pending.Deregister(id)

	var lastReply string
	for _, p := range peers[:maxAttempts] {
		pq.Clear()
		if err := e.Transport.Send(ctx, p.ID, signed); err != nil {
			queryLog.WithError(err).WithField("peer", p.Address).Warn("send failed")
			continue
		}
		p.MarkSent(key)

		pq.Wait(time.Duration(e.Local.WaitMillis()) * time.Millisecond)
		responses := pq.Responses()
		if len(responses) == 0 {
			continue
		}
		lastReply = responses[0]
		if !hasNegativeErrorCode(lastReply) {
			return lastReply
		}
		queryLog.WithField("peer", p.Address).Warn("peer rejected transaction, trying next")
	}

	if lastReply != "" {
		return lastReply
	}
	return ToErrorJSON(ErrNoResponse, id)
}

// hasNegativeErrorCode reports whether payload is a JSON object carrying a
// numeric "errorcode" field below zero, the wire convention for a
// rejected broadcast.
func hasNegativeErrorCode(payload string) bool {
	var obj struct {
		ErrorCode *float64 `json:"errorcode"`
	}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return false
	}
	return obj.ErrorCode != nil && *obj.ErrorCode < 0
}

// OnReply fulfils a PendingQuery from an inbound Reply packet.
func (e *Engine) OnReply(from PeerID, id QueryID, payload string) {
	q, ok := e.Pending.Get(id)
	if !ok {
		queryLog.WithField("uuid", id).Debug("reply for unknown or completed query, dropped")
		return
	}
	q.AddResponse(from, payload)
}
