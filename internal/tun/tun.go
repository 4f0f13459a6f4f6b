// Package tun implements the TUN device handle from spec.md §4.1: opening
// /dev/net/tun in layer-3, no-packet-info mode under a caller-supplied
// interface name, and exposing blocking Read/Write of raw IP packets.
//
// Device and waterDevice are adapted from the teacher repo's
// api/tunnel.go TunnelDevice interface and WaterAdapter, trimmed of the
// Windows/netstack half (golang.zx2c4.com/wireguard/tun), which has no home
// in spec.md's Linux-only, fixed-addressing device model (see DESIGN.md).
package tun

import (
	"fmt"

	"github.com/nullwave/qtun/internal/netconf"
	"github.com/songgao/water"
)

// Device abstracts the TUN handle so the engine's reader/writer tasks don't
// depend on songgao/water directly -- useful for the in-memory fake used by
// internal/engine's tests.
type Device interface {
	// Read blocks until a packet is available and returns its length.
	// Fails with an I/O error on negative return, per spec.md §4.1.
	Read(buf []byte) (int, error)
	// Write blocks until the packet has been submitted to the kernel.
	Write(pkt []byte) (int, error)
	Close() error
}

type waterDevice struct {
	iface *water.Interface
}

func (w *waterDevice) Read(buf []byte) (int, error) {
	n, err := w.iface.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("tun read: %w", err)
	}
	return n, nil
}

func (w *waterDevice) Write(pkt []byte) (int, error) {
	n, err := w.iface.Write(pkt)
	if err != nil {
		return 0, fmt.Errorf("tun write: %w", err)
	}
	return n, nil
}

func (w *waterDevice) Close() error {
	return w.iface.Close()
}

// Open creates a layer-3 TUN interface named name (IFF_TUN | IFF_NO_PI, per
// spec.md §4.1), then applies the fixed point-to-point addressing for the
// given role via internal/netconf. The kernel-side interface is up and
// addressed before Open returns, satisfying the "tun_fd >= 0 and the
// kernel-side interface is up and addressed before reader/writer tasks
// start" invariant from spec.md §3.
func Open(name string, isInitiator bool) (Device, error) {
	cfg := water.Config{DeviceType: water.TUN}
	cfg.PlatformSpecificParams = water.PlatformSpecificParams{Name: name}

	iface, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("open TUN device %s: %w", name, err)
	}

	params := netconf.ForRole(iface.Name(), isInitiator)
	if err := netconf.Apply(params); err != nil {
		iface.Close()
		return nil, fmt.Errorf("configure TUN device %s: %w", iface.Name(), err)
	}

	return &waterDevice{iface: iface}, nil
}
