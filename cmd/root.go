// Package cmd wires up the CLI flags and dispatches to server or
// connect mode.
package cmd

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"playmote/config"
	"playmote/internal/backend"
	mpdbackend "playmote/internal/backend/mpd"
	"playmote/internal/backend/mpris"
	"playmote/internal/client"
	"playmote/internal/httpapi"
	"playmote/internal/metrics"
	"playmote/internal/server"
	"playmote/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X playmote/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate playmote mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()
	cfg.LoadEnv()

	fs := flag.NewFlagSet("playmote", flag.ContinueOnError)

	// ── server ───────────────────────────────────────────────────
	fs.StringVar(&cfg.BindIP, "ip", cfg.BindIP, "Bind address (default all interfaces)")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "TCP port")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Playback backend: mem, mpd, or mpris")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status API address (disabled if empty)")

	// ── mpd backend ──────────────────────────────────────────────
	fs.StringVar(&cfg.MPDAddr, "mpd-addr", cfg.MPDAddr, "MPD server address")
	fs.StringVar(&cfg.MPDNetwork, "mpd-network", cfg.MPDNetwork, "MPD network (tcp or unix)")
	fs.StringVar(&cfg.MPDPassword, "mpd-password", cfg.MPDPassword, "MPD password")

	// ── SSH tunnel (connect mode) ────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", "", "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", "", "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("playmote %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		return nil
	}

	logger := util.NewLogger(cfg.Verbose)

	if cfg.Connect {
		return client.New(cfg, logger).Run(ctx)
	}
	return runServer(ctx, cfg, logger)
}

// ── server mode ──────────────────────────────────────────────────────

func runServer(ctx context.Context, cfg *config.Config, logger *util.Logger) error {
	m := metrics.New()

	be, err := buildBackend(cfg, logger, m)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	defer be.Close()

	srv, err := server.New(cfg, be, logger, m)
	if err != nil {
		return err
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	if cfg.HTTPAddr != "" {
		api := httpapi.New(srv, logger)
		go func() {
			if err := api.Run(ctx, cfg.HTTPAddr); err != nil {
				logger.Warn("http api: %v", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-srv.Terminated():
	}
	return nil
}

func buildBackend(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (backend.Backend, error) {
	switch cfg.Backend {
	case config.BackendMPD:
		return mpdbackend.New(mpdbackend.Options{
			Network:  cfg.MPDNetwork,
			Addr:     cfg.MPDAddr,
			Password: cfg.MPDPassword,
		}, logger, m)
	case config.BackendMPRIS:
		return mpris.New(logger)
	default:
		return backend.DemoLibrary(), nil
	}
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional switches to connect mode when a host is given:
//
//	playmote HOST [PORT]
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0: // server mode
		return nil
	case 2:
		port, err := util.ParsePort(remaining[1])
		if err != nil {
			return fmt.Errorf("port %q: %w", remaining[1], err)
		}
		cfg.Port = port
		fallthrough
	case 1:
		cfg.Connect = true
		cfg.Host = remaining[0]
		return nil
	default:
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `playmote - music player remote control v%s

A line-protocol remote control server for music playback, with an
interactive client mode.

Usage:
  playmote [options]                          Serve
  playmote [options] <host> [port]            Connect
  playmote -T user@gateway <host> [port]      Connect via SSH tunnel

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  playmote                                    Serve the demo library
  playmote --backend mpd --mpd-addr :6600     Serve an MPD player
  playmote --http 127.0.0.1:8080              Serve with status API
  playmote media-box 49160                    Connect to a server
  playmote -T admin@bastion media-box         Connect through a bastion
`)
}
