package xrouter

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// PeerID is a stable peer identifier (e.g. a transport address or decoded
// libp2p peer id string), used as a map key instead of a raw connection
// pointer, so entries stay valid across reconnects and survive the
// transport tearing a connection down.
type PeerID string

// PeerState is the per-peer config-exchange state machine.
type PeerState int

const (
	// StateNew is the initial state: no advertised settings yet. The
	// client engine refuses to target peers in this state.
	StateNew PeerState = iota
	// StateConfigKnown is reached once a ConfigReply has been received.
	StateConfigKnown
)

// RateKey composes the "currency::command" rate-limit key.
func RateKey(currency string, cmd Command) string {
	return currency + "::" + cmd.String()
}

// PeerRecord is the live record of a connected peer.
type PeerRecord struct {
	ID      PeerID
	Address string

	mu                 sync.RWMutex
	state              PeerState
	advertisedSettings *Settings
	lastConfigFetch     time.Time
	lastSent            map[string]time.Time
	lastReceived        map[string]time.Time

	score int64 // atomic
}

// NewPeerRecord constructs a freshly-connected peer in StateNew.
func NewPeerRecord(id PeerID, addr string) *PeerRecord {
	return &PeerRecord{
		ID:           id,
		Address:      addr,
		state:        StateNew,
		lastSent:     make(map[string]time.Time),
		lastReceived: make(map[string]time.Time),
	}
}

// State returns the peer's config-exchange state.
func (p *PeerRecord) State() PeerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// AdvertisedSettings returns the peer's most recently fetched settings, or
// nil if none has been fetched yet.
func (p *PeerRecord) AdvertisedSettings() *Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.advertisedSettings
}

// SetAdvertisedSettings records a freshly-fetched ConfigReply and advances
// the peer to StateConfigKnown.
func (p *PeerRecord) SetAdvertisedSettings(s *Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advertisedSettings = s
	p.lastConfigFetch = time.Now()
	p.state = StateConfigKnown
}

// NeedsConfigRefresh reports whether this peer has no settings, or settings
// older than ConfigRefresh.
func (p *PeerRecord) NeedsConfigRefresh() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.advertisedSettings == nil {
		return true
	}
	return time.Since(p.lastConfigFetch) >= ConfigRefresh
}

// MarkSent stamps last_sent[key] = now.
func (p *PeerRecord) MarkSent(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSent[key] = time.Now()
}

// SentWithin reports whether key was last sent less than window ago.
func (p *PeerRecord) SentWithin(key string, window time.Duration) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.lastSent[key]
	if !ok {
		return false
	}
	return time.Since(t) < window
}

// MarkReceived stamps last_received[key] = now.
func (p *PeerRecord) MarkReceived(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReceived[key] = time.Now()
}

// ReceivedWithin reports whether key was last received less than window ago.
func (p *PeerRecord) ReceivedWithin(key string, window time.Duration) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.lastReceived[key]
	if !ok {
		return false
	}
	return time.Since(t) < window
}

// Score returns the peer's current score, used to order eligible peers.
func (p *PeerRecord) Score() int64 { return atomic.LoadInt64(&p.score) }

// AddScore adjusts the peer's score by delta (e.g. a DoS penalty).
func (p *PeerRecord) AddScore(delta int64) { atomic.AddInt64(&p.score, delta) }

// PeerDirectory is the live set of connected peers and their per-peer
// state. A PeerRecord exists iff the transport currently reports the
// peer as connected.
type PeerDirectory struct {
	mu    sync.RWMutex
	peers map[PeerID]*PeerRecord
}

// NewPeerDirectory returns an empty directory.
func NewPeerDirectory() *PeerDirectory {
	return &PeerDirectory{peers: make(map[PeerID]*PeerRecord)}
}

// Upsert returns the existing record for id, creating one in StateNew if
// this is the first time the transport has reported id as connected.
func (d *PeerDirectory) Upsert(id PeerID, addr string) *PeerRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.peers[id]; ok {
		return p
	}
	p := NewPeerRecord(id, addr)
	d.peers[id] = p
	return p
}

// Remove drops the record for id, e.g. on transport disconnect.
func (d *PeerDirectory) Remove(id PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, id)
}

// Get returns the record for id, if connected.
func (d *PeerDirectory) Get(id PeerID) (*PeerRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[id]
	return p, ok
}

// All returns a snapshot of every connected peer.
func (d *PeerDirectory) All() []*PeerRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*PeerRecord, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	return out
}

// Eligible returns every connected peer matching pred, sorted by score
// descending then address ascending for a deterministic pick order. The
// directory lock is released before returning; no network I/O happens
// while it is held.
func (d *PeerDirectory) Eligible(pred func(*PeerRecord) bool) []*PeerRecord {
	all := d.All()
	out := all[:0:0]
	for _, p := range all {
		if pred(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Score(), out[j].Score()
		if si != sj {
			return si > sj
		}
		return out[i].Address < out[j].Address
	})
	return out
}
