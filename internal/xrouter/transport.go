package xrouter

import "context"

// Transport is the external P2P gossip collaborator: it provides
// send(peer, bytes) and inbound-message callbacks. The core never talks
// to libp2p directly; internal/transport provides the concrete adapter.
type Transport interface {
	// Send delivers payload to a single connected peer under the "xrouter"
	// channel tag.
	Send(ctx context.Context, peer PeerID, payload []byte) error
}

// InboundHandler is supplied by the dispatcher and invoked by the
// transport for every inbound XRouter packet.
type InboundHandler func(ctx context.Context, from PeerID, payload []byte)
