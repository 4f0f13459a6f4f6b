// Package cmd wires the CLI surface from spec.md §6 on top of cobra, the
// teacher's flag-parsing library (see go.mod).
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nullwave/qtun/internal"
	"github.com/nullwave/qtun/internal/config"
	"github.com/nullwave/qtun/internal/engine"
	"github.com/nullwave/qtun/internal/logging"
	"github.com/nullwave/qtun/internal/transport"
	"github.com/nullwave/qtun/internal/tun"
	"github.com/quic-go/quic-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "qtund",
	Short: "A point-to-point IP tunnel carried over a single QUIC stream",
	Long: "qtund relays raw IP packets between a local TUN device and a single peer" +
		" over one bidirectional QUIC stream. One side runs as the responder" +
		" (the default, listening) and the other as the initiator (--client mode, dialing).",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&cfg.Server, "server", "s", "", "peer address (initiator) or bind address (responder)")
	flags.Uint16VarP(&cfg.Port, "port", "p", 0, "peer port (initiator) or listen port (responder)")
	flags.BoolVarP(&isClient, "client", "c", false, "run as the initiator (dials out); default is responder (listens)")
	flags.StringVar(&cfg.CertPath, "cert", internal.DefaultCertPath, "TLS certificate path (responder only)")
	flags.StringVar(&cfg.KeyPath, "key", internal.DefaultKeyPath, "TLS key path (responder only)")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFile, "log-file", "", "write logs to this file instead of stderr")
	flags.BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")
}

var (
	isClient bool
	verbose  bool
)

// Execute runs the root command; errors are already printed by cobra before
// this returns, so main only needs to set the exit code.
func Execute() error {
	return rootCmd.Execute()
}

func run(c *cobra.Command, args []string) error {
	if isClient {
		cfg.Role = config.RoleInitiator
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting",
		zap.String("role", cfg.Role.String()),
		zap.String("server", cfg.Server),
		zap.Uint16("port", cfg.Port),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dev, err := tun.Open(cfg.TunName(), cfg.Role == config.RoleInitiator)
	if err != nil {
		return fmt.Errorf("open tun device: %w", err)
	}

	conn, stream, err := dial(ctx, cfg)
	if err != nil {
		dev.Close()
		return err
	}
	defer conn.CloseWithError(0, "shutting down")

	e := engine.New(logger, dev, stream)
	if err := e.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("engine stopped", zap.Error(err))
	}

	logger.Info("stopped")
	return nil
}

func dial(ctx context.Context, cfg *config.Config) (*quic.Conn, *quic.Stream, error) {
	if cfg.Role == config.RoleInitiator {
		return transport.DialInitiator(ctx, cfg.Server, cfg.Port)
	}
	return transport.ListenResponder(ctx, cfg.Server, cfg.Port, cfg.CertPath, cfg.KeyPath)
}
