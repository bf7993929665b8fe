package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"playmote/config"
	"playmote/internal/errors"
	"playmote/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// SSHDialer routes connections through an SSH gateway.  The gateway
// session is opened lazily on the first Dial and torn down on Close.
type SSHDialer struct {
	cfg    *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH gateway.  Nothing is dialled until the first Dial call.
func NewSSHDialer(cfg *SSHConfig, logger *util.Logger) *SSHDialer {
	if cfg.Port == 0 {
		cfg.Port = config.DefaultSSHPort
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = config.DefaultConnTimeout
	}
	return &SSHDialer{cfg: cfg, logger: logger.WithTag("ssh")}
}

// connect dials the gateway and completes the handshake.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.alive {
		return nil
	}

	authMethods, err := BuildAuthMethods(d.cfg)
	if err != nil {
		return err
	}
	hkCallback, err := hostKeyCallback(d.cfg)
	if err != nil {
		return err
	}

	sshCfg := &ssh.ClientConfig{
		User:            d.cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         d.cfg.ConnTimeout,
	}

	addr := util.FormatAddr(d.cfg.Host, d.cfg.Port)
	d.logger.Verbose("dialing %s as %s", addr, d.cfg.User)

	// Context-aware TCP dial so callers can cancel the handshake.
	var dialer net.Dialer
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return errors.Wrap("handshake", addr, err)
	}

	d.client = ssh.NewClient(sshConn, chans, reqs)
	d.alive = true
	go d.monitor(d.client)

	d.logger.Verbose("gateway session established")
	return nil
}

// Dial forwards a connection through the gateway, connecting it first
// if needed.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}

	d.mu.RLock()
	client := d.client
	alive := d.alive
	d.mu.RUnlock()

	if !alive || client == nil {
		return nil, errors.ErrNotConnected
	}

	d.logger.Debug("forwarding to %s %s", network, address)
	conn, err := client.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("tunnel dial %s: %w", address, err)
	}
	return conn, nil
}

// Close shuts down the gateway session.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.alive = false
	if d.client != nil {
		err := d.client.Close()
		d.client = nil
		return err
	}
	return nil
}

// monitor blocks until the SSH connection closes and flips the alive
// flag so the next Dial reconnects.
func (d *SSHDialer) monitor(client *ssh.Client) {
	err := client.Wait()

	d.mu.Lock()
	if d.client == client {
		d.alive = false
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Debug("gateway session closed: %v", err)
	} else {
		d.logger.Debug("gateway session closed")
	}
}
