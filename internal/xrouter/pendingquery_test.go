package xrouter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPendingQuery_DuplicatePeerDropped(t *testing.T) {
	pq := NewPendingQuery("q1", 3)
	require.Equal(t, 1, pq.AddResponse("peer-a", `{"x":1}`))
	require.Equal(t, 1, pq.AddResponse("peer-a", `{"x":2}`))
	require.Len(t, pq.Responses(), 1)
}

func TestPendingQuery_WinnerFormsOnStrictMajority(t *testing.T) {
	pq := NewPendingQuery("q1", 3)
	_, ok := pq.Winner()
	require.False(t, ok)

	pq.AddResponse("peer-a", `{"height":10}`)
	_, ok = pq.Winner()
	require.False(t, ok)

	pq.AddResponse("peer-b", `{"height":10}`)
	winner, ok := pq.Winner()
	require.True(t, ok)
	require.Equal(t, `{"height":10}`, winner)
}

func TestPendingQuery_WaitReturnsEarlyOnWinner(t *testing.T) {
	pq := NewPendingQuery("q1", 5)
	done := make(chan struct{})
	go func() {
		pq.Wait(2 * time.Second)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	pq.AddResponse("peer-a", "ok")
	pq.AddResponse("peer-b", "ok")
	pq.AddResponse("peer-c", "ok")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return early on majority")
	}
}

func TestPendingQuery_WaitTimesOutWithNoConsensus(t *testing.T) {
	pq := NewPendingQuery("q1", 4)
	pq.AddResponse("peer-a", "one")
	pq.AddResponse("peer-b", "two")

	start := time.Now()
	pq.Wait(20 * time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPendingQuery_ClearResetsState(t *testing.T) {
	pq := NewPendingQuery("q1", 2)
	pq.AddResponse("peer-a", "ok")
	pq.AddResponse("peer-b", "ok")
	_, ok := pq.Winner()
	require.True(t, ok)

	pq.Clear()
	_, ok = pq.Winner()
	require.False(t, ok)
	require.Empty(t, pq.Responses())
}

func TestPendingQueryRegistry_DeregisterMarksCompleted(t *testing.T) {
	r := NewPendingQueryRegistry()
	pq := NewPendingQuery("q1", 1)
	r.Register(pq)

	_, ok := r.Get("q1")
	require.True(t, ok)

	r.Deregister("q1")
	_, ok = r.Get("q1")
	require.False(t, ok)
	require.True(t, pq.completed.Load())
}

func TestPendingQuery_AddResponseDroppedAfterCompleted(t *testing.T) {
	pq := NewPendingQuery("q1", 3)
	pq.AddResponse("peer-a", "ok")
	require.Len(t, pq.Responses(), 1)

	pq.MarkCompleted()
	n := pq.AddResponse("peer-b", "late")
	require.Equal(t, 1, n)
	require.Len(t, pq.Responses(), 1, "response after completion must be dropped, not appended")
}
