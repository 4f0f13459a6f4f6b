// Package internal holds the fixed parameters of the tunnel that spec.md
// pins exactly: the wire ALPN, the point-to-point addressing, and the QUIC
// timing knobs. None of these are meant to vary between deployments.
package internal

import "time"

const (
	// ALPN is the application-layer protocol negotiated during the TLS
	// handshake. Both peers must offer/accept exactly this token.
	ALPN = "sample"

	// RegistrationName identifies this engine instance to the QUIC library's
	// execution profile; kept for parity with the low-latency profile the
	// source configures, even though quic-go has no registration concept of
	// its own to bind it to.
	RegistrationName = "quic-proxy"

	IdleTimeout   = 60 * time.Second
	KeepAlive     = 5 * time.Second
	InitialRTT    = 20 * time.Millisecond
	MaxAckDelay   = 5 * time.Millisecond

	// MinPacketSize and MaxPacketSize bound the IPv4 datagrams the engine
	// will carry. Anything outside this range is rejected by
	// internal/packet.Validate before it ever reaches a queue.
	MinPacketSize = 20
	MaxPacketSize = 1500

	// TunReadBufferSize is the stack buffer size the TUN reader task reads
	// into before copying onto the heap for the ingress queue.
	TunReadBufferSize = 2048

	// IngressIdleSleep bounds CPU usage of the TUN reader loop on a
	// zero-byte, no-error read (kept for parity with the source; a real
	// blocking TUN fd on Linux never does this).
	IngressIdleSleep = time.Millisecond

	// EgressQueueSize is the number of slots in the bounded egress ring.
	// One slot is always held empty to distinguish full from empty.
	EgressQueueSize = 1024

	// EgressBufferSize is the maximum payload capacity of a single egress
	// slot.
	EgressBufferSize = 4096

	// InitiatorDevice and ResponderDevice are the fixed TUN interface names.
	InitiatorDevice = "tun0client"
	ResponderDevice = "tun0server"

	// InitiatorAddress/InitiatorPeer and ResponderAddress/ResponderPeer are
	// the fixed point-to-point /30 addressing.
	InitiatorAddress = "10.20.0.9"
	InitiatorPeer    = "10.20.0.10"
	ResponderAddress = "10.20.0.10"
	ResponderPeer    = "10.20.0.9"
	PointToPointMask = 30

	// DefaultCertPath and DefaultKeyPath are the responder's hard-coded
	// credential paths from spec.md §6, kept as defaults but overridable
	// (see internal/config).
	DefaultCertPath = "/home/vagrant/server.cert"
	DefaultKeyPath  = "/home/vagrant/server.key"

	// LengthPrefixSize is the width, in bytes, of the big-endian length
	// prefix every packet carries on the wire (see SPEC_FULL.md §3).
	LengthPrefixSize = 2
)
