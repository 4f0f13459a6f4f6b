// Package transport implements the connection/stream lifecycle from
// spec.md §4.8: dialing as the initiator, listening as the responder, and
// establishing the single bidirectional stream each side ever opens.
//
// quic-go v0.55's API is a synchronous, net.Conn-shaped Read/Write pair
// rather than MsQuic's event callbacks, so this package adapts spec.md's
// callback-driven state machine into plain blocking calls. The concrete
// quic-go usage (DialAddr/ListenAddr, OpenStreamSync/AcceptStream) is
// grounded on other_examples' ForTunnels-client and dan-v-lambda-nat-proxy
// QUIC call sites -- the teacher repo itself never touches this API
// directly, since it rides http3.Transport for MASQUE instead.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/nullwave/qtun/internal"
	"github.com/quic-go/quic-go"
)

// Config holds the responder's TLS credential paths.
type Config struct {
	CertPath string // responder only
	KeyPath  string // responder only
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  internal.IdleTimeout,
		KeepAlivePeriod: internal.KeepAlive,
		Allow0RTT:       true,
	}
}

// DialInitiator connects to addr:port as the initiator, with server
// certificate validation disabled (spec.md §4.8), and opens the single
// bidirectional stream. On any failure, every resource already acquired
// (the connection, if opened) is released before returning.
func DialInitiator(ctx context.Context, addr string, port uint16) (*quic.Conn, *quic.Stream, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{internal.ALPN},
	}

	target := fmt.Sprintf("%s:%d", addr, port)
	conn, err := quic.DialAddr(ctx, target, tlsConf, quicConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", target, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream open failed")
		return nil, nil, fmt.Errorf("open stream: %w", err)
	}

	return conn, stream, nil
}

// ListenResponder loads the server credential, listens on addr:port, and
// accepts exactly one connection and exactly one bidirectional stream on it
// (spec.md §4.8: "the responder opens a listening endpoint and accepts
// exactly one connection"). On any failure after the listener is opened,
// the listener is closed before returning.
func ListenResponder(ctx context.Context, addr string, port uint16, certPath, keyPath string) (*quic.Conn, *quic.Stream, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load credential %s/%s: %w", certPath, keyPath, err)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{internal.ALPN},
	}

	bind := fmt.Sprintf("%s:%d", addr, port)
	listener, err := quic.ListenAddr(bind, tlsConf, quicConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", bind, err)
	}

	conn, err := listener.Accept(ctx)
	if err != nil {
		listener.Close()
		return nil, nil, fmt.Errorf("accept connection: %w", err)
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream accept failed")
		listener.Close()
		return nil, nil, fmt.Errorf("accept stream: %w", err)
	}

	// Exactly one connection is ever accepted (spec.md §2); close the
	// listener immediately so no second peer can connect.
	listener.Close()

	return conn, stream, nil
}
