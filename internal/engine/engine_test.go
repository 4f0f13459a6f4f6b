package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nullwave/qtun/internal/tun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pipeStream is an in-memory, length-prefix-framed Stream used to simulate
// a peer without a real QUIC connection. Writes made by the engine land in
// outbound (readable by a test as "what was sent"); data fed via feed()
// becomes readable by the engine (as "what the peer sent").
type pipeStream struct {
	mu       sync.Mutex
	outbound bytes.Buffer
	inbound  *io.PipeReader
	inboundW *io.PipeWriter
}

func newPipeStream() *pipeStream {
	r, w := io.Pipe()
	return &pipeStream{inbound: r, inboundW: w}
}

func (p *pipeStream) Read(buf []byte) (int, error) {
	return p.inbound.Read(buf)
}

func (p *pipeStream) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbound.Write(buf)
}

func (p *pipeStream) Close() error {
	return p.inboundW.Close()
}

// feedFramedPacket writes one length-prefixed frame into the stream's
// readable side, as if it had arrived from the peer.
func (p *pipeStream) feedFramedPacket(pkt []byte) {
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(pkt)))
	go func() {
		p.inboundW.Write(prefix[:])
		p.inboundW.Write(pkt)
	}()
}

// sentPackets decodes every length-prefixed frame the engine has written so
// far.
func (p *pipeStream) sentPackets(t *testing.T) [][]byte {
	t.Helper()
	p.mu.Lock()
	data := p.outbound.Bytes()
	p.mu.Unlock()

	var out [][]byte
	for len(data) >= 2 {
		n := binary.BigEndian.Uint16(data[:2])
		data = data[2:]
		require.GreaterOrEqual(t, len(data), int(n))
		out = append(out, append([]byte(nil), data[:n]...))
		data = data[n:]
	}
	return out
}

func ipv4Packet(totalLen int, marker byte) []byte {
	buf := make([]byte, totalLen)
	buf[0] = 0x45
	if totalLen > 19 {
		buf[19] = marker
	}
	return buf
}

func newTestEngine() (*Engine, *tun.Fake, *pipeStream) {
	dev := tun.NewFake()
	stream := newPipeStream()
	logger := zap.NewNop()
	return New(logger, dev, stream), dev, stream
}

func TestEngine_TunToStream(t *testing.T) {
	// Property 7 (one direction): a packet read from TUN is relayed,
	// framed, onto the stream.
	e, dev, stream := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	pkt := ipv4Packet(64, 0xAB)
	dev.Feed(pkt)

	require.Eventually(t, func() bool {
		return len(stream.sentPackets(t)) == 1
	}, time.Second, 10*time.Millisecond)

	got := stream.sentPackets(t)
	assert.Equal(t, pkt, got[0])

	cancel()
	<-done
}

func TestEngine_StreamToTun(t *testing.T) {
	// Property 7 (other direction): a framed packet received on the stream
	// is written to TUN unchanged.
	e, dev, stream := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	pkt := ipv4Packet(128, 0xCD)
	stream.feedFramedPacket(pkt)

	require.Eventually(t, func() bool {
		return len(dev.Written()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, pkt, dev.Written()[0])

	cancel()
	<-done
}

func TestEngine_InvalidPacketFromTunIsDropped(t *testing.T) {
	e, dev, stream := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	dev.Feed(make([]byte, 5)) // too short, invalid
	dev.Feed(ipv4Packet(30, 0x01))

	require.Eventually(t, func() bool {
		return len(stream.sentPackets(t)) == 1
	}, time.Second, 10*time.Millisecond)

	got := stream.sentPackets(t)
	assert.Len(t, got, 1)

	cancel()
	<-done
}

func TestEngine_ShutdownOnPeerEOF(t *testing.T) {
	// handleStreamClosed must tear the engine down on a clean peer close
	// rather than hang forever.
	e, _, stream := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		stream.inboundW.Close()
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- e.Run(ctx)
	}()

	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not shut down after peer EOF")
	}
}

func TestEngine_ReaderAndWriterStartOnce(t *testing.T) {
	// Invariant 5: the TUN reader/writer tasks are started at most once
	// per engine instance, even with many packets flowing.
	e, dev, stream := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	for i := 0; i < 10; i++ {
		dev.Feed(ipv4Packet(40, byte(i)))
		stream.feedFramedPacket(ipv4Packet(40, byte(i)))
	}

	require.Eventually(t, func() bool {
		return len(dev.Written()) >= 10 && len(stream.sentPackets(t)) >= 10
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
