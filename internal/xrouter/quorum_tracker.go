package xrouter

import "sync"

// QuorumTracker tallies votes from distinct peers towards a pass/fail
// threshold. PendingQuery keeps one tracker per distinct reply payload so
// it can detect a strict majority as soon as it forms, rather than waiting
// out the full timeout once every expected confirmation has arrived.
type QuorumTracker struct {
	mu        sync.Mutex
	threshold int // votes required to pass
	votes     map[PeerID]struct{}
	total     int // expected voters, i.e. the query's confirmations count
}

// NewQuorumTracker returns a tracker requiring threshold votes out of an
// expected total. threshold is clamped to total when out of range.
func NewQuorumTracker(total, threshold int) *QuorumTracker {
	if threshold <= 0 || threshold > total {
		threshold = total
	}
	return &QuorumTracker{
		threshold: threshold,
		votes:     make(map[PeerID]struct{}),
		total:     total,
	}
}

// AddVote records a vote from peer, ignoring duplicates, and returns the
// current number of unique votes.
func (qt *QuorumTracker) AddVote(peer PeerID) int {
	qt.mu.Lock()
	qt.votes[peer] = struct{}{}
	n := len(qt.votes)
	qt.mu.Unlock()
	return n
}

// HasQuorum reports whether enough unique votes have been recorded.
func (qt *QuorumTracker) HasQuorum() bool {
	qt.mu.Lock()
	n := len(qt.votes)
	qt.mu.Unlock()
	return n >= qt.threshold
}

// Reset clears all recorded votes.
func (qt *QuorumTracker) Reset() {
	qt.mu.Lock()
	qt.votes = make(map[PeerID]struct{})
	qt.mu.Unlock()
}
