// Package client implements connect mode: an interactive terminal
// session against a running playmote server, optionally routed through
// an SSH gateway.
package client

import (
	"context"
	"fmt"
	"io"
	"os"

	"playmote/config"
	"playmote/internal/transport"
	"playmote/util"
)

// Client dials a playmote server and relays the terminal to it.
type Client struct {
	cfg    *config.Config
	log    *util.Logger
	dialer transport.Dialer

	// in/out default to the process's stdio; tests swap them.
	in  io.Reader
	out io.Writer
}

// New builds a connect-mode client.  With a tunnel spec configured the
// connection is forwarded through the SSH gateway.
func New(cfg *config.Config, logger *util.Logger) *Client {
	c := &Client{
		cfg: cfg,
		log: logger.WithTag("client"),
		in:  os.Stdin,
		out: os.Stdout,
	}

	if cfg.TunnelEnabled {
		c.dialer = transport.NewSSHDialer(&transport.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
		}, logger)
	} else {
		c.dialer = &transport.TCPDialer{Timeout: config.DefaultConnTimeout}
	}
	return c
}

// Run connects and relays until the server closes or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer c.dialer.Close()

	addr := util.FormatAddr(c.cfg.Host, c.cfg.Port)
	c.log.Verbose("connecting to %s", addr)

	conn, err := c.dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	c.log.Verbose("connected to %s", conn.RemoteAddr())
	return util.BidirectionalCopy(ctx, conn, c.in, c.out)
}
