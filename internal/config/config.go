// Package config holds the runtime configuration of a single qtund process,
// assembled from CLI flags in cmd/root.go.
package config

import (
	"fmt"

	"github.com/nullwave/qtun/internal"
)

// Role identifies which side of the tunnel this process is running.
type Role int

const (
	RoleResponder Role = iota
	RoleInitiator
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Config is the fully-resolved configuration for one engine run.
type Config struct {
	Role Role

	// Server is the peer address (initiator) or bind address (responder).
	Server string
	// Port is the peer port (initiator) or listen port (responder).
	Port uint16

	// CertPath and KeyPath are used by the responder only.
	CertPath string
	KeyPath  string

	LogLevel string
	LogFile  string
}

// Validate checks the required fields per spec.md §6's CLI surface.
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("--server is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("--port is required and must be nonzero")
	}
	if c.Role == RoleResponder {
		if c.CertPath == "" || c.KeyPath == "" {
			return fmt.Errorf("--cert and --key are required in responder mode")
		}
	}
	return nil
}

// TunName returns the fixed TUN interface name for this role.
func (c *Config) TunName() string {
	if c.Role == RoleInitiator {
		return internal.InitiatorDevice
	}
	return internal.ResponderDevice
}

// Default returns a Config with spec.md's hard-coded defaults applied.
func Default() *Config {
	return &Config{
		Role:     RoleResponder,
		CertPath: internal.DefaultCertPath,
		KeyPath:  internal.DefaultKeyPath,
		LogLevel: "info",
	}
}
