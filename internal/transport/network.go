package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

var netLog = logrus.WithField("component", "transport")

// Config describes how a Node joins the overlay.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string // mDNS service tag, defaults to "xrouter" if empty
}

// rawPeer is the low-level connection record a Node keeps per libp2p peer,
// distinct from xrouter.PeerRecord which tracks protocol-level state; Node
// only knows about transport connectivity.
type rawPeer struct {
	ID   peer.ID
	Addr string
}

// Node owns the libp2p host and gossip layer. It knows nothing about the
// XRouter wire format; PeerManagement (peer_management.go) builds the
// xrouter.Transport adapter on top of it.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic

	peerLock sync.RWMutex
	peers    map[peer.ID]*rawPeer

	ctx    context.Context
	cancel context.CancelFunc

	onPeerFound func(id peer.ID, addr string)
}

// NewNode creates and bootstraps a libp2p host: gossipsub, bootstrap
// dialing and mDNS discovery.
func NewNode(cfg Config) (*Node, error) {
	if cfg.DiscoveryTag == "" {
		cfg.DiscoveryTag = "xrouter"
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: failed to create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("transport: failed to create pubsub: %w", err)
	}

	n := &Node{
		host:   h,
		pubsub: ps,
		topics: make(map[string]*pubsub.Topic),
		peers:  make(map[peer.ID]*rawPeer),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := n.DialSeed(cfg.BootstrapPeers); err != nil {
		netLog.WithError(err).Warn("dial seed warning")
	}

	mdns.NewMdnsService(h, cfg.DiscoveryTag, n)

	return n, nil
}

// Ensure Node implements mdns.Notifee.
var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound implements mdns.Notifee: connect to a discovered peer and
// notify onPeerFound, if set, so PeerManagement can register it with the
// xrouter peer directory.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}

	n.peerLock.RLock()
	_, exists := n.peers[info.ID]
	n.peerLock.RUnlock()
	if exists {
		return
	}

	if err := n.host.Connect(n.ctx, info); err != nil {
		netLog.WithError(err).WithField("peer", info.ID.String()).Warn("failed to connect to discovered peer")
		return
	}

	n.peerLock.Lock()
	n.peers[info.ID] = &rawPeer{ID: info.ID, Addr: info.String()}
	n.peerLock.Unlock()
	netLog.WithField("peer", info.ID.String()).Info("connected via mDNS")

	if n.onPeerFound != nil {
		n.onPeerFound(info.ID, info.String())
	}
}

// DialSeed connects to a list of bootstrap multiaddrs.
func (n *Node) DialSeed(seeds []string) error {
	var errs []string
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid addr %s: %v", addr, err))
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			errs = append(errs, fmt.Sprintf("connect %s: %v", addr, err))
			continue
		}
		n.peerLock.Lock()
		n.peers[pi.ID] = &rawPeer{ID: pi.ID, Addr: addr}
		n.peerLock.Unlock()
		netLog.WithField("peer", addr).Info("bootstrapped")

		if n.onPeerFound != nil {
			n.onPeerFound(pi.ID, addr)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("dial errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Broadcast publishes data to every subscriber of topic, creating the topic
// on first use.
func (n *Node) Broadcast(topic string, data []byte) error {
	n.topicLock.Lock()
	t, ok := n.topics[topic]
	if !ok {
		var err error
		t, err = n.pubsub.Join(topic)
		if err != nil {
			n.topicLock.Unlock()
			return fmt.Errorf("transport: join topic %s: %w", topic, err)
		}
		n.topics[topic] = t
	}
	n.topicLock.Unlock()

	if err := t.Publish(n.ctx, data); err != nil {
		return fmt.Errorf("transport: publish topic %s: %w", topic, err)
	}
	return nil
}

// gossipMessage is one inbound pubsub message.
type gossipMessage struct {
	From  peer.ID
	Topic string
	Data  []byte
}

// Subscribe joins topic and streams inbound messages until the node shuts
// down or the subscription errors.
func (n *Node) Subscribe(topic string) (<-chan gossipMessage, error) {
	n.topicLock.Lock()
	t, ok := n.topics[topic]
	if !ok {
		var err error
		t, err = n.pubsub.Join(topic)
		if err != nil {
			n.topicLock.Unlock()
			return nil, fmt.Errorf("transport: join topic %s: %w", topic, err)
		}
		n.topics[topic] = t
	}
	n.topicLock.Unlock()

	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("transport: subscribe topic %s: %w", topic, err)
	}

	out := make(chan gossipMessage)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(n.ctx)
			if err != nil {
				netLog.WithError(err).Debug("subscription ended")
				return
			}
			out <- gossipMessage{From: msg.GetFrom(), Topic: topic, Data: msg.Data}
		}
	}()
	return out, nil
}

// Close tears down the host and its context.
func (n *Node) Close() error {
	n.cancel()
	return n.host.Close()
}

// Peers returns a snapshot of every peer this node has dialed or
// discovered at the transport level.
func (n *Node) Peers() []string {
	n.peerLock.RLock()
	defer n.peerLock.RUnlock()
	out := make([]string, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p.ID.String())
	}
	return out
}

// Dialer manages outbound, non-libp2p peer connections such as a
// service node's plain RPC endpoint reachability probe.
type Dialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

// NewDialer creates a dialer with the given timeout and keepalive.
func NewDialer(timeout, keepAlive time.Duration) *Dialer {
	return &Dialer{Timeout: timeout, KeepAlive: keepAlive}
}

// Dial opens a plain TCP connection to address.
func (d *Dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dialer failed to connect to %s: %w", address, err)
	}
	return conn, nil
}
