// Package queue implements the two packet queues from spec.md §3: an
// unbounded FIFO for TUN-to-transport traffic and a bounded drop-newest ring
// for transport-to-TUN traffic. Both are built on sync.Mutex/sync.Cond
// rather than channels because the spec's invariants describe exact
// structural behavior (head/tail linkage, modulo ring arithmetic, "drop on
// the Nth attempt") that a channel doesn't expose for direct testing --
// see DESIGN.md for the full justification.
package queue

import "sync"

type node struct {
	data []byte
	next *node
}

// Ingress is the unbounded singly-linked FIFO described in spec.md §4.2.
// Single producer (the TUN reader task), single consumer (the send driver),
// but the mutex/cond discipline is held regardless since Dequeue's wait is
// mandatory.
type Ingress struct {
	mu   sync.Mutex
	cond *sync.Cond
	head *node
	tail *node

	closed bool
}

// NewIngress creates an empty ingress queue.
func NewIngress() *Ingress {
	q := &Ingress{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends data to the tail and wakes one waiting consumer. It never
// blocks and never fails: the only failure mode in spec.md (allocation
// failure) doesn't exist in a garbage-collected runtime, so there is
// nothing here to drop.
func (q *Ingress) Enqueue(data []byte) {
	n := &node{data: data}

	q.mu.Lock()
	if q.tail != nil {
		q.tail.next = n
		q.tail = n
	} else {
		q.head = n
		q.tail = n
	}
	q.mu.Unlock()

	q.cond.Signal()
}

// Dequeue blocks until a packet is available or the queue is closed, then
// removes and returns the head. The second return value is false once the
// queue has been closed and drained, signaling the caller to stop (invariant
// 6: no further dequeue is initiated once shutdown is underway).
func (q *Ingress) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == nil && !q.closed {
		q.cond.Wait()
	}
	if q.head == nil {
		return nil, false
	}

	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	return n.data, true
}

// Close wakes every blocked Dequeue so the consumer can observe shutdown.
// Packets already queued remain available to Dequeue until drained (callers
// that want a hard stop should check the returned bool after Close).
func (q *Ingress) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len reports the current queue length. Intended for tests and diagnostics,
// not the data-plane hot path.
func (q *Ingress) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for cur := q.head; cur != nil; cur = cur.next {
		n++
	}
	return n
}
