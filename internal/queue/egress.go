package queue

import (
	"sync"

	"github.com/nullwave/qtun/internal"
)

type slot struct {
	data []byte
	n    int
}

// Egress is the bounded ring described in spec.md §4.3: internal.EgressQueueSize
// slots of up to internal.EgressBufferSize bytes, drop-newest-and-log on
// full, single mutex/cond. One slot is always held empty so head==tail can
// mean "empty" (head never catches tail from behind on a live occupant).
type Egress struct {
	mu   sync.Mutex
	cond *sync.Cond

	slots      []slot
	head, tail int

	closed bool

	// Dropped counts packets discarded because the ring was full. Exposed
	// for tests and metrics; not part of the spec's data-plane contract.
	Dropped uint64
}

// NewEgress creates an empty bounded ring with the fixed capacity spec.md
// mandates.
func NewEgress() *Egress {
	q := &Egress{
		slots: make([]slot, internal.EgressQueueSize),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Egress) full() bool {
	return (q.tail+1)%len(q.slots) == q.head
}

func (q *Egress) empty() bool {
	return q.head == q.tail
}

// Enqueue copies data into the next free slot and signals a waiting
// consumer. If the ring is full, it drops the packet without mutating any
// slot and returns false -- callers are expected to log "queue full,
// dropping packet" on a false return (invariant 2). Enqueue never blocks:
// it's called from the receive loop, which must not be held up by a slow
// TUN writer.
func (q *Egress) Enqueue(data []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.full() {
		q.Dropped++
		return false
	}

	n := len(data)
	if n > internal.EgressBufferSize {
		n = internal.EgressBufferSize
	}
	if cap(q.slots[q.tail].data) < n {
		q.slots[q.tail].data = make([]byte, n)
	}
	copy(q.slots[q.tail].data[:n], data[:n])
	q.slots[q.tail].n = n

	q.tail = (q.tail + 1) % len(q.slots)
	q.cond.Signal()
	return true
}

// DequeueAll blocks until at least one packet is available (or the queue is
// closed), then removes and returns every currently-queued packet in FIFO
// order. Each returned slice is a fresh copy safe to use after the call
// returns. The second return value is false once closed and drained.
func (q *Egress) DequeueAll() ([][]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.empty() && !q.closed {
		q.cond.Wait()
	}
	if q.empty() {
		return nil, false
	}

	var out [][]byte
	for !q.empty() {
		s := q.slots[q.head]
		pkt := make([]byte, s.n)
		copy(pkt, s.data[:s.n])
		out = append(out, pkt)
		q.head = (q.head + 1) % len(q.slots)
	}
	return out, true
}

// Close wakes every blocked DequeueAll so the TUN writer task can observe
// shutdown once the ring is drained.
func (q *Egress) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len reports the number of currently queued packets (0..EgressQueueSize-1).
func (q *Egress) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tail >= q.head {
		return q.tail - q.head
	}
	return len(q.slots) - q.head + q.tail
}
