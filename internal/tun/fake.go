package tun

import (
	"io"
	"sync"
)

// Fake is an in-memory Device used by internal/engine's tests in place of a
// real kernel TUN interface. Writes are recorded and returned by Written; Read
// yields the packets passed to Feed in order, blocking until either data is
// available or Close is called.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queued  [][]byte
	written [][]byte
	closed  bool
}

// NewFake creates an empty Fake device.
func NewFake() *Fake {
	f := &Fake{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Feed makes pkt available to the next Read call, as if it had arrived from
// the kernel.
func (f *Fake) Feed(pkt []byte) {
	f.mu.Lock()
	f.queued = append(f.queued, pkt)
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *Fake) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queued) == 0 && !f.closed {
		f.cond.Wait()
	}
	if len(f.queued) == 0 {
		return 0, io.EOF
	}
	pkt := f.queued[0]
	f.queued = f.queued[1:]
	return copy(buf, pkt), nil
}

func (f *Fake) Write(pkt []byte) (int, error) {
	f.mu.Lock()
	cp := append([]byte(nil), pkt...)
	f.written = append(f.written, cp)
	f.mu.Unlock()
	return len(pkt), nil
}

// Written returns every packet written so far, in order.
func (f *Fake) Written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cond.Broadcast()
	return nil
}
