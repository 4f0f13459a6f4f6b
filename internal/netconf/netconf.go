// Package netconf applies the fixed point-to-point addressing spec.md §4.1
// and §6 require before the data plane starts: address assignment with a
// point-to-point peer, interface up, IPv4 forwarding, and (initiator only) a
// default route through the peer.
//
// The teacher repo (Adm0-usque) lists vishvananda/netlink as a direct
// dependency; the retrieved file subset doesn't include its Linux call
// site, but netlink-based interface configuration is the only plausible
// home for that dependency in a TUN tunnel, so that's what this package
// does in place of spec.md's original `ip`(8) shell-outs.
package netconf

import (
	"fmt"
	"net"
	"os"

	"github.com/nullwave/qtun/internal"
	"github.com/vishvananda/netlink"
)

// Params describes the addressing to apply to one TUN interface.
type Params struct {
	IfaceName      string
	LocalAddress   string
	PeerAddress    string
	PrefixLen      int
	InstallDefault bool
}

// ForRole returns the fixed Params spec.md §6 mandates for each role.
func ForRole(ifaceName string, isInitiator bool) Params {
	if isInitiator {
		return Params{
			IfaceName:      ifaceName,
			LocalAddress:   internal.InitiatorAddress,
			PeerAddress:    internal.InitiatorPeer,
			PrefixLen:      internal.PointToPointMask,
			InstallDefault: true,
		}
	}
	return Params{
		IfaceName:      ifaceName,
		LocalAddress:   internal.ResponderAddress,
		PeerAddress:    internal.ResponderPeer,
		PrefixLen:      internal.PointToPointMask,
		InstallDefault: false,
	}
}

// Apply brings the TUN interface identified by p.IfaceName up with the
// configured point-to-point address, enables IPv4 forwarding, and (if
// requested) installs a default route through the peer.
func Apply(p Params) error {
	link, err := netlink.LinkByName(p.IfaceName)
	if err != nil {
		return fmt.Errorf("lookup interface %s: %w", p.IfaceName, err)
	}

	local := net.ParseIP(p.LocalAddress)
	peer := net.ParseIP(p.PeerAddress)
	if local == nil || peer == nil {
		return fmt.Errorf("invalid address pair %s/%s", p.LocalAddress, p.PeerAddress)
	}

	addr := &netlink.Addr{
		IPNet: &net.IPNet{IP: local, Mask: net.CIDRMask(p.PrefixLen, 32)},
		Peer:  &net.IPNet{IP: peer, Mask: net.CIDRMask(32, 32)},
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("assign address %s peer %s on %s: %w", p.LocalAddress, p.PeerAddress, p.IfaceName, err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %s up: %w", p.IfaceName, err)
	}

	if err := enableIPForwarding(); err != nil {
		return fmt.Errorf("enable IPv4 forwarding: %w", err)
	}

	if p.InstallDefault {
		route := &netlink.Route{
			LinkIndex: link.Attrs().Index,
			Gw:        peer,
		}
		if err := netlink.RouteAdd(route); err != nil {
			return fmt.Errorf("install default route via %s: %w", p.PeerAddress, err)
		}
	}

	return nil
}

func enableIPForwarding() error {
	return os.WriteFile("/proc/sys/net/ipv4/ip_forward", []byte("1\n"), 0644)
}
