package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/nullwave/qtun/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEgress_FIFO(t *testing.T) {
	q := NewEgress()
	require.True(t, q.Enqueue([]byte("a")))
	require.True(t, q.Enqueue([]byte("b")))

	got, ok := q.DequeueAll()
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("a"), got[0])
	assert.Equal(t, []byte("b"), got[1])
}

func TestEgress_OverflowDropsExactlyOnThe1024thAttempt(t *testing.T) {
	// Invariant 11 / Scenario S2: with the writer stalled (DequeueAll never
	// called), the 1024th enqueue attempt is the first to be dropped --
	// one slot is always held empty.
	q := NewEgress()

	for i := 0; i < internal.EgressQueueSize-1; i++ {
		ok := q.Enqueue([]byte(fmt.Sprintf("pkt-%d", i)))
		require.Truef(t, ok, "enqueue %d should have succeeded", i)
	}
	assert.Equal(t, internal.EgressQueueSize-1, q.Len())

	ok := q.Enqueue([]byte("overflow"))
	assert.False(t, ok, "the 1024th attempt must be dropped")
	assert.EqualValues(t, 1, q.Dropped)
}

func TestEgress_ScenarioS2(t *testing.T) {
	// Scenario S2: driving 2000 receive events of distinct 100-byte packets
	// against a stalled writer yields 1023 enqueued, 977 dropped, no crash.
	q := NewEgress()

	accepted := 0
	for i := 0; i < 2000; i++ {
		pkt := make([]byte, 100)
		pkt[0] = byte(i)
		if q.Enqueue(pkt) {
			accepted++
		}
	}

	assert.Equal(t, internal.EgressQueueSize-1, accepted)
	assert.EqualValues(t, 2000-(internal.EgressQueueSize-1), q.Dropped)
}

func TestEgress_FullEnqueueDoesNotMutateSlotData(t *testing.T) {
	// Invariant 2: enqueue on a full ring returns without mutating slot
	// data.
	q := NewEgress()
	for i := 0; i < internal.EgressQueueSize-1; i++ {
		q.Enqueue([]byte{byte(i)})
	}

	before, ok := q.DequeueAll()
	require.True(t, ok)

	for i := 0; i < internal.EgressQueueSize-1; i++ {
		q.Enqueue([]byte{byte(i)})
	}
	accepted := q.Enqueue([]byte{0xff})
	assert.False(t, accepted)

	after, ok := q.DequeueAll()
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestEgress_DequeueAllBlocksUntilNonEmpty(t *testing.T) {
	q := NewEgress()
	done := make(chan [][]byte, 1)

	go func() {
		data, ok := q.DequeueAll()
		if ok {
			done <- data
		}
	}()

	select {
	case <-done:
		t.Fatal("DequeueAll returned before any enqueue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue([]byte("woke"))

	got := <-done
	require.Len(t, got, 1)
	assert.Equal(t, []byte("woke"), got[0])
}

func TestEgress_Close(t *testing.T) {
	q := NewEgress()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.DequeueAll()
		done <- ok
	}()
	q.Close()
	assert.False(t, <-done)
}
