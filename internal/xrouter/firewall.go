package xrouter

import (
	"errors"
	"net"
	"sync"
)

// Firewall-level rejection reasons, distinct from the protocol error
// taxonomy in errors.go: these never reach a JSON reply, the packet is
// simply dropped without being charged against a peer's score.
var (
	ErrPeerBlocked = errors.New("xrouter: peer blocked by firewall")
	ErrKeyBlocked  = errors.New("xrouter: signing key blocked by firewall")
	ErrIPBlocked   = errors.New("xrouter: ip blocked by firewall")
)

// Firewall maintains operator-managed runtime block lists alongside the
// automatic DoS scoring. The dispatcher consults the peer and key-hash
// lists before admitting a packet; the IP list is stored and reported by
// ListRules and IsIPBlocked, but the dispatcher does not check it.
type Firewall struct {
	mu      sync.RWMutex
	peers   map[PeerID]struct{}
	keys    map[[20]byte]struct{}
	ips     map[string]struct{}
}

// NewFirewall constructs an empty firewall.
func NewFirewall() *Firewall {
	return &Firewall{
		peers: make(map[PeerID]struct{}),
		keys:  make(map[[20]byte]struct{}),
		ips:   make(map[string]struct{}),
	}
}

// BlockPeer bans a transport peer id outright.
func (fw *Firewall) BlockPeer(id PeerID) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.peers[id] = struct{}{}
}

// UnblockPeer lifts a peer ban.
func (fw *Firewall) UnblockPeer(id PeerID) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	delete(fw.peers, id)
}

// IsPeerBlocked reports whether id is banned.
func (fw *Firewall) IsPeerBlocked(id PeerID) bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	_, ok := fw.peers[id]
	return ok
}

// BlockKeyHash bans the hash160 of a signing public key, independent of
// which peer or address presents it.
func (fw *Firewall) BlockKeyHash(keyHash [20]byte) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.keys[keyHash] = struct{}{}
}

// UnblockKeyHash lifts a key-hash ban.
func (fw *Firewall) UnblockKeyHash(keyHash [20]byte) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	delete(fw.keys, keyHash)
}

// IsKeyHashBlocked reports whether keyHash is banned.
func (fw *Firewall) IsKeyHashBlocked(keyHash [20]byte) bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	_, ok := fw.keys[keyHash]
	return ok
}

// BlockIP validates ip as an IP literal and adds it to the IP block list.
func (fw *Firewall) BlockIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return errors.New("xrouter: invalid ip")
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.ips[ip] = struct{}{}
	return nil
}

// UnblockIP removes an IP from the banned list.
func (fw *Firewall) UnblockIP(ip string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	delete(fw.ips, ip)
}

// IsIPBlocked reports whether ip is banned.
func (fw *Firewall) IsIPBlocked(ip string) bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	_, ok := fw.ips[ip]
	return ok
}

// FirewallRules snapshots every current rule for inspection (e.g. a CLI
// "firewall list" subcommand).
type FirewallRules struct {
	Peers    []PeerID
	KeyHashes [][20]byte
	IPs      []string
}

// ListRules returns the blocked peers, key hashes and IPs.
func (fw *Firewall) ListRules() FirewallRules {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	var rules FirewallRules
	for p := range fw.peers {
		rules.Peers = append(rules.Peers, p)
	}
	for k := range fw.keys {
		rules.KeyHashes = append(rules.KeyHashes, k)
	}
	for ip := range fw.ips {
		rules.IPs = append(rules.IPs, ip)
	}
	return rules
}

// CheckPeer is consulted by the dispatcher before a packet is parsed: a
// banned peer is dropped unconditionally, with no DoS-score penalty (it
// was already judged, not merely suspicious).
func (fw *Firewall) CheckPeer(id PeerID) error {
	if fw == nil {
		return nil
	}
	if fw.IsPeerBlocked(id) {
		return ErrPeerBlocked
	}
	return nil
}

// CheckPacket is consulted once a packet's signing key is known, letting
// an operator ban a key even when it migrates between peers or addresses.
func (fw *Firewall) CheckPacket(p *Packet) error {
	if fw == nil || !p.Command.IsAuthenticated() {
		return nil
	}
	keyHash, err := p.PubkeyHash160()
	if err != nil {
		return nil // malformed key is rejected by Verify, not the firewall
	}
	if fw.IsKeyHashBlocked(keyHash) {
		return ErrKeyBlocked
	}
	return nil
}
