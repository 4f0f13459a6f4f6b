package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngress_FIFO(t *testing.T) {
	// Invariant 3: packets dequeue in the order they were enqueued.
	q := NewIngress()
	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	q.Enqueue([]byte("c"))

	got1, ok := q.Dequeue()
	require.True(t, ok)
	got2, ok := q.Dequeue()
	require.True(t, ok)
	got3, ok := q.Dequeue()
	require.True(t, ok)

	assert.Equal(t, []byte("a"), got1)
	assert.Equal(t, []byte("b"), got2)
	assert.Equal(t, []byte("c"), got3)
	assert.Equal(t, 0, q.Len())
}

func TestIngress_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewIngress()
	done := make(chan []byte, 1)

	go func() {
		data, ok := q.Dequeue()
		if ok {
			done <- data
		}
	}()

	select {
	case <-done:
		t.Fatal("dequeue returned before any enqueue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue([]byte("late"))

	select {
	case data := <-done:
		assert.Equal(t, []byte("late"), data)
	case <-time.After(time.Second):
		t.Fatal("dequeue never woke up after enqueue")
	}
}

func TestIngress_CloseWakesBlockedDequeue(t *testing.T) {
	// Invariant 6: once closed, dequeue stops returning data and reports
	// the queue as done.
	q := NewIngress()
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not wake blocked dequeue")
	}
}

func TestIngress_CloseDrainsQueuedBeforeStopping(t *testing.T) {
	// Invariant 1: a packet enqueued before shutdown is still dequeued
	// exactly once rather than silently discarded.
	q := NewIngress()
	q.Enqueue([]byte("pending"))
	q.Close()

	data, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, []byte("pending"), data)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestIngress_HeadTailInvariant(t *testing.T) {
	q := NewIngress()
	assert.Nil(t, q.head)
	assert.Nil(t, q.tail)

	q.Enqueue([]byte("x"))
	assert.NotNil(t, q.head)
	assert.NotNil(t, q.tail)

	q.Dequeue()
	assert.Nil(t, q.head)
	assert.Nil(t, q.tail)
}
