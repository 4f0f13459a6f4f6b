// Package engine implements the bidirectional packet-relay core from
// spec.md §2/§4.4-§4.8: the concurrent coupling between a TUN device and a
// single QUIC bidirectional stream via the two packet queues.
//
// The overall shape -- a handful of goroutines forwarding between a TUN
// device and a transport, coordinated through an error/done channel rather
// than a reconnect loop -- follows api/tunnel.go's MaintainTunnel in the
// teacher repo; reconnection is dropped per spec.md's Non-goals (no
// reconnection after connection loss).
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nullwave/qtun/internal"
	"github.com/nullwave/qtun/internal/packet"
	"github.com/nullwave/qtun/internal/queue"
	"github.com/nullwave/qtun/internal/transport"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
)

// Device is the subset of tun.Device the engine depends on. Declared here
// (rather than importing internal/tun) so tests can supply tun.Fake without
// the engine package needing to know about songgao/water at all.
type Device interface {
	Read(buf []byte) (int, error)
	Write(pkt []byte) (int, error)
	Close() error
}

// Stream is the subset of *quic.Stream the engine depends on.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Engine wires one TUN device to one QUIC stream, per spec.md §2's data-flow
// diagram. It is an explicit value (DESIGN NOTES §9.1: no package-level
// mutable handles) constructed once per process and passed to every
// goroutine it starts.
type Engine struct {
	logger *zap.Logger
	device Device
	stream Stream
	state  *transport.StreamState

	ingress *queue.Ingress
	egress  *queue.Egress

	readerOnce sync.Once
	writerOnce sync.Once

	stopped atomic.Bool
	wg      sync.WaitGroup
	done    chan struct{}
	doneErr error
}

// New constructs an Engine ready to Run. device must already be open and
// configured (see internal/tun.Open); stream must already be an active
// bidirectional QUIC stream (see internal/transport).
func New(logger *zap.Logger, device Device, stream Stream) *Engine {
	return &Engine{
		logger:  logger,
		device:  device,
		stream:  stream,
		state:   transport.NewStreamState(),
		ingress: queue.NewIngress(),
		egress:  queue.NewEgress(),
		done:    make(chan struct{}),
	}
}

// Run starts the send driver and the receive loop (the send driver starts
// the TUN reader; the receive loop starts the TUN writer on the first packet
// from the peer) and blocks until the stream is shut down (by the peer, by
// idle timeout, or via ctx), then tears everything down. It returns the reason the run ended, or nil on a clean
// peer/idle shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.state.MarkStarted()

	e.wg.Add(2)
	go e.runSendDriver()
	go e.runReceiveLoop()

	// Both the independent send loop and the receive loop are live as soon
	// as Run starts them, which is the Go-idiomatic equivalent of spec.md's
	// "first receive or first send-drive -> Active" transition.
	e.state.MarkActive()

	select {
	case <-ctx.Done():
		e.shutdown(ctx.Err())
	case <-e.done:
	}

	e.wg.Wait()
	return e.doneErr
}

// shutdown takes effect once; later calls return immediately. It is called
// from Run observing ctx.Done(), from the receive loop observing the stream
// close, or from the send driver on a fatal stream error. It releases every
// resource the engine acquired: the device, the stream, and both queues.
func (e *Engine) shutdown(reason error) {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}
	e.doneErr = reason
	e.state.MarkClosed()

	e.ingress.Close()
	e.egress.Close()
	_ = e.device.Close()
	_ = e.stream.Close()

	close(e.done)
}

func (e *Engine) ensureTunReaderStarted() {
	e.readerOnce.Do(func() {
		e.wg.Add(1)
		go e.runTunReader()
	})
}

func (e *Engine) ensureTunWriterStarted() {
	e.writerOnce.Do(func() {
		e.wg.Add(1)
		go e.runTunWriter()
	})
}

// runTunReader is the TUN reader task from spec.md §4.4: blocks on TUN
// read, validates, and enqueues into the ingress queue. Exits only once
// shutdown has been requested.
func (e *Engine) runTunReader() {
	defer e.wg.Done()

	buf := make([]byte, internal.TunReadBufferSize)
	for {
		if e.stopped.Load() {
			return
		}

		n, err := e.device.Read(buf)
		if err != nil {
			if e.stopped.Load() {
				return
			}
			e.logger.Warn("tun read failed, continuing", zap.Error(err))
			continue
		}
		if n == 0 {
			time.Sleep(internal.IngressIdleSleep)
			continue
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		if err := packet.Validate(pkt); err != nil {
			e.logger.Debug("dropping invalid packet read from tun", zap.Error(err))
			continue
		}

		e.ingress.Enqueue(pkt)
	}
}

// runTunWriter is the TUN writer task from spec.md §4.5: drains the egress
// queue and writes each packet to the device.
func (e *Engine) runTunWriter() {
	defer e.wg.Done()

	for {
		pkts, ok := e.egress.DequeueAll()
		if !ok {
			return
		}
		for _, pkt := range pkts {
			n, err := e.device.Write(pkt)
			if err != nil {
				e.logger.Warn("tun write failed, dropping packet", zap.Error(err))
				continue
			}
			if n != len(pkt) {
				e.logger.Warn("partial tun write", zap.Int("wrote", n), zap.Int("want", len(pkt)))
			}
		}
	}
}

// runSendDriver is the transport send driver from spec.md §4.6, in its
// REDESIGNED independent-loop form (see SPEC_FULL.md §4.6 / §9): it
// continuously dequeues from the ingress queue and submits one
// length-prefixed write per packet to the stream.
func (e *Engine) runSendDriver() {
	defer e.wg.Done()

	e.ensureTunReaderStarted()

	for {
		data, ok := e.ingress.Dequeue()
		if !ok {
			return
		}
		if err := e.sendPacket(data); err != nil {
			e.logger.Warn("failed to send packet to stream, dropping", zap.Error(err))
			if isFatalStreamError(err) {
				e.shutdown(err)
				return
			}
		}
	}
}

func (e *Engine) sendPacket(data []byte) error {
	var prefix [internal.LengthPrefixSize]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(data)))

	if _, err := e.stream.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := e.stream.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// runReceiveLoop is the transport receive handler from spec.md §4.7, in its
// REDESIGNED goroutine-loop form: reads one length-prefixed frame at a time,
// starts the TUN writer task on first success, and enqueues into the egress
// queue.
func (e *Engine) runReceiveLoop() {
	defer e.wg.Done()

	for {
		var prefix [internal.LengthPrefixSize]byte
		if _, err := io.ReadFull(e.stream, prefix[:]); err != nil {
			e.handleStreamClosed(err)
			return
		}

		length := binary.BigEndian.Uint16(prefix[:])
		buf := make([]byte, length)
		if _, err := io.ReadFull(e.stream, buf); err != nil {
			e.handleStreamClosed(err)
			return
		}

		if err := packet.Validate(buf); err != nil {
			e.logger.Debug("dropping invalid packet from peer", zap.Error(err))
			continue
		}

		e.ensureTunWriterStarted()

		if !e.egress.Enqueue(buf) {
			e.logger.Warn("egress queue full, dropping packet")
		}
	}
}

// handleStreamClosed classifies why the stream's read side ended and maps
// it onto spec.md's stream state table (Active -> HalfClosed on peer
// shutdown/abort, -> Closed on shutdown-complete), then tears the engine
// down.
func (e *Engine) handleStreamClosed(err error) {
	e.state.MarkHalfClosed()

	reason := err
	var streamErr *quic.StreamError
	switch {
	case errors.Is(err, io.EOF):
		e.logger.Info("peer shut down its send direction")
		reason = nil
	case errors.As(err, &streamErr):
		e.logger.Info("peer aborted stream", zap.Uint64("code", uint64(streamErr.ErrorCode)))
	default:
		var idleErr *quic.IdleTimeoutError
		if errors.As(err, &idleErr) {
			e.logger.Info("successfully shut down on idle")
			reason = nil
		} else {
			e.logger.Warn("stream closed with error", zap.Error(err))
		}
	}

	e.shutdown(reason)
}

func isFatalStreamError(err error) bool {
	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) {
		return true
	}
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF)
}
