// Package packet implements the IP packet validation contract from
// spec.md §3/§8: is_valid_ip_packet is pure, deterministic, and has no
// side effect on the packet itself. Adapted from connect/packet.go's
// CheckPacket/ipVersion in the teacher repo, trimmed to the length/structure
// checks spec.md's testable properties actually require (the teacher's TTL
// and hop-limit-exceeded ICMP generation belong to a MASQUE-specific relay
// contract this spec doesn't have).
package packet

import (
	"fmt"

	"github.com/nullwave/qtun/internal"
	"golang.org/x/net/ipv4"
)

// ErrInvalid is returned (as *ErrInvalid) by every validation failure so
// callers can distinguish "dropped as invalid" from other errors with
// errors.As.
type ErrInvalid struct {
	Reason string
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("invalid IP packet: %s", e.Reason)
}

// Validate reports whether buf is an acceptable packet to carry across the
// tunnel: length in [internal.MinPacketSize, internal.MaxPacketSize], and if
// long enough to carry an IPv4 header, internally consistent (version 4,
// header length within the buffer).
//
// Validate is pure: identical input always yields the identical result, and
// it never mutates buf.
func Validate(buf []byte) error {
	n := len(buf)
	if n < internal.MinPacketSize {
		return &ErrInvalid{Reason: fmt.Sprintf("too short: %d bytes", n)}
	}
	if n > internal.MaxPacketSize {
		return &ErrInvalid{Reason: fmt.Sprintf("too long: %d bytes", n)}
	}

	version := buf[0] >> 4
	if version != ipv4.Version {
		// Not IPv4. spec.md's Non-goals exclude IPv6; anything else is
		// malformed for our purposes.
		return &ErrInvalid{Reason: fmt.Sprintf("unsupported IP version: %d", version)}
	}

	headerLen := int(buf[0]&0x0f) * 4
	if headerLen < ipv4.HeaderLen || headerLen > n {
		return &ErrInvalid{Reason: fmt.Sprintf("bad IHL: header length %d, buffer %d", headerLen, n)}
	}

	return nil
}
