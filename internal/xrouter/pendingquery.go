package xrouter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// QueryID correlates requests and replies. It is a 36-byte textual
// UUID, process-unique across all in-flight queries.
type QueryID string

// NewQueryID mints a fresh, process-unique query id.
func NewQueryID() QueryID {
	return QueryID(uuid.NewString())
}

// PendingQuery tracks one in-flight fan-out query. It is created on
// Call() and destroyed after the quorum result is produced or the
// timeout elapses.
type PendingQuery struct {
	ID                    QueryID
	ExpectedConfirmations int

	mu        sync.Mutex
	responses []queryResponse
	seenPeers map[PeerID]struct{}
	signal    chan struct{}

	// trackers holds one QuorumTracker per distinct reply payload so a
	// strict majority can be detected the moment it forms, without waiting
	// for every expected confirmation to arrive.
	trackers map[string]*QuorumTracker
	winner   string
	won      bool

	// completed guards the race between deregistration and a late
	// reply: once set, AddResponse drops the reply instead of appending
	// it, so a response can never land in responses/trackers after the
	// query has already been torn down by the registry.
	completed atomic.Bool
}

type queryResponse struct {
	peer    PeerID
	payload string
}

// NewPendingQuery creates a tracker expecting `confirmations` responses.
func NewPendingQuery(id QueryID, confirmations int) *PendingQuery {
	return &PendingQuery{
		ID:                    id,
		ExpectedConfirmations: confirmations,
		seenPeers:             make(map[PeerID]struct{}),
		signal:                make(chan struct{}, 1),
		trackers:              make(map[string]*QuorumTracker),
	}
}

// AddResponse appends a reply in arrival order. At most one entry per
// distinct peer is kept; duplicates from the same peer are dropped. It
// returns the number of responses recorded so far.
func (q *PendingQuery) AddResponse(peer PeerID, payload string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.completed.Load() {
		return len(q.responses)
	}
	if _, dup := q.seenPeers[peer]; dup {
		return len(q.responses)
	}
	q.seenPeers[peer] = struct{}{}
	q.responses = append(q.responses, queryResponse{peer: peer, payload: payload})
	n := len(q.responses)

	if !q.won {
		threshold := q.ExpectedConfirmations/2 + 1
		tr, ok := q.trackers[payload]
		if !ok {
			tr = NewQuorumTracker(q.ExpectedConfirmations, threshold)
			q.trackers[payload] = tr
		}
		if tr.AddVote(peer) >= threshold {
			q.won = true
			q.winner = payload
		}
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return n
}

// Winner returns the first reply payload to reach a strict majority, if
// one has formed yet.
func (q *PendingQuery) Winner() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.winner, q.won
}

// Responses returns a copy of the accumulated reply payloads in arrival
// order.
func (q *PendingQuery) Responses() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.responses))
	for i, r := range q.responses {
		out[i] = r.payload
	}
	return out
}

// Clear empties the response list, used by the send-transaction retry
// loop between attempts against successive peers.
func (q *PendingQuery) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses = nil
	q.seenPeers = make(map[PeerID]struct{})
	q.trackers = make(map[string]*QuorumTracker)
	q.winner = ""
	q.won = false
}

func (q *PendingQuery) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.responses)
}

// MarkCompleted flips the completed flag; PendingQueryRegistry removes the
// entry at the same time. Any AddResponse call after this point is
// dropped rather than appended.
func (q *PendingQuery) MarkCompleted() { q.completed.Store(true) }

// Wait blocks until ExpectedConfirmations responses have arrived, a strict
// majority has formed, or one slice of sliceTimeout (Main.wait) passes with
// no new response. It runs at most ExpectedConfirmations successive slices,
// so it waits at most ExpectedConfirmations * sliceTimeout in total.
func (q *PendingQuery) Wait(sliceTimeout time.Duration) {
	for i := 0; i < q.ExpectedConfirmations; i++ {
		if q.count() >= q.ExpectedConfirmations {
			return
		}
		if _, ok := q.Winner(); ok {
			return
		}
		timer := time.NewTimer(sliceTimeout)
		select {
		case <-q.signal:
			timer.Stop()
			if q.count() >= q.ExpectedConfirmations {
				return
			}
			if _, ok := q.Winner(); ok {
				return
			}
		case <-timer.C:
			return
		}
	}
}

// PendingQueryRegistry is the process-wide QueryID -> PendingQuery map.
type PendingQueryRegistry struct {
	mu      sync.Mutex
	queries map[QueryID]*PendingQuery
}

// NewPendingQueryRegistry returns an empty registry.
func NewPendingQueryRegistry() *PendingQueryRegistry {
	return &PendingQueryRegistry{queries: make(map[QueryID]*PendingQuery)}
}

// Register adds q to the registry.
func (r *PendingQueryRegistry) Register(q *PendingQuery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[q.ID] = q
}

// Get returns the tracker for id, if still pending.
func (r *PendingQueryRegistry) Get(id QueryID) (*PendingQuery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[id]
	return q, ok
}

// Deregister removes id from the registry and marks the tracker completed.
func (r *PendingQueryRegistry) Deregister(id QueryID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queries[id]; ok {
		q.MarkCompleted()
		delete(r.queries, id)
	}
}
