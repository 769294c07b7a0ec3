package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/sirupsen/logrus"

	"xrouter-network/internal/xrouter"
)

// xrouterProtocol is the libp2p stream protocol ID direct per-peer XRouter
// packets travel over, alongside a single gossip topic tagged "xrouter"
// used for peer announcements.
const xrouterProtocol = protocol.ID("/xrouter/1.0.0")

// gossipTopic is the pubsub topic used for peer announcements.
const gossipTopic = "xrouter"

// PeerManagement is the xrouter.Transport implementation built on top of a
// Node: it feeds the xrouter.PeerDirectory it is given from mDNS/bootstrap
// discoveries and Connect calls, and moves XRouter packets over per-peer
// libp2p streams.
type PeerManagement struct {
	node      *Node
	directory *xrouter.PeerDirectory
	inbound   xrouter.InboundHandler

	mu sync.Mutex
}

// NewPeerManagement wraps node, registering a stream handler that reads
// each inbound XRouter packet and hands its raw bytes to inbound, and
// hooking mDNS and bootstrap discoveries into dir. A PeerRecord is added
// when this node discovers or dials a peer and is removed only by
// Disconnect: a peer that only opens streams to this node gets no record,
// and a connection closed by the remote side leaves its record in place.
func NewPeerManagement(node *Node, dir *xrouter.PeerDirectory, inbound xrouter.InboundHandler) *PeerManagement {
	pm := &PeerManagement{node: node, directory: dir, inbound: inbound}

	node.onPeerFound = func(id peer.ID, addr string) {
		dir.Upsert(xrouter.PeerID(id.String()), addr)
	}

	node.host.SetStreamHandler(xrouterProtocol, pm.handleStream)

	return pm
}

func (pm *PeerManagement) handleStream(s network.Stream) {
	defer s.Close()
	remote := s.Conn().RemotePeer()

	payload, err := io.ReadAll(s)
	if err != nil {
		logrus.WithError(err).WithField("peer", remote.String()).Warn("transport: failed to read inbound stream")
		return
	}

	if pm.inbound != nil {
		pm.inbound(context.Background(), xrouter.PeerID(remote.String()), payload)
	}
}

// Send implements xrouter.Transport: it opens a fresh stream to peer,
// writes payload and closes the write side, mirroring the request/response
// shape of a single XRouter packet.
func (pm *PeerManagement) Send(ctx context.Context, peerID xrouter.PeerID, payload []byte) error {
	pid, err := peer.Decode(string(peerID))
	if err != nil {
		return fmt.Errorf("transport: invalid peer id %q: %w", peerID, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s, err := pm.node.host.NewStream(dialCtx, pid, xrouterProtocol)
	if err != nil {
		return fmt.Errorf("transport: open stream to %s: %w", peerID, err)
	}
	defer s.Close()

	if _, err := s.Write(payload); err != nil {
		return fmt.Errorf("transport: write to %s: %w", peerID, err)
	}
	return s.CloseWrite()
}

// Connect dials addr directly, registering the resulting peer in the
// directory the same way mDNS discovery does.
func (pm *PeerManagement) Connect(ctx context.Context, addr string) error {
	pi, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return fmt.Errorf("transport: invalid address %q: %w", addr, err)
	}
	if err := pm.node.host.Connect(ctx, *pi); err != nil {
		return err
	}
	pm.node.peerLock.Lock()
	pm.node.peers[pi.ID] = &rawPeer{ID: pi.ID, Addr: addr}
	pm.node.peerLock.Unlock()

	pm.directory.Upsert(xrouter.PeerID(pi.ID.String()), addr)
	return nil
}

// Disconnect closes the libp2p connection and drops the peer from the
// directory.
func (pm *PeerManagement) Disconnect(peerID xrouter.PeerID) error {
	pid, err := peer.Decode(string(peerID))
	if err != nil {
		return err
	}
	if err := pm.node.host.Network().ClosePeer(pid); err != nil {
		return err
	}
	pm.node.peerLock.Lock()
	delete(pm.node.peers, pid)
	pm.node.peerLock.Unlock()

	pm.directory.Remove(peerID)
	return nil
}

// AdvertiseSelf gossips this node's presence on the shared xrouter topic.
func (pm *PeerManagement) AdvertiseSelf() error {
	return pm.node.Broadcast(gossipTopic, []byte(pm.node.host.ID().String()))
}

// DialSeed bootstraps the directory from a list of seed multiaddrs.
func (pm *PeerManagement) DialSeed(seeds []string) error {
	return pm.node.DialSeed(seeds)
}

var _ xrouter.Transport = (*PeerManagement)(nil)
