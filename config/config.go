// Package config defines the runtime configuration for playmote and
// provides helpers for parsing tunnel specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Backend names accepted by --backend.
const (
	BackendMemory = "mem"
	BackendMPD    = "mpd"
	BackendMPRIS  = "mpris"
)

// Config holds every tuneable for a playmote run.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────
	BindIP       string        // bind address; empty = all interfaces
	Port         int           // TCP port the protocol listens on
	Backend      string        // "mem", "mpd", or "mpris"
	PollInterval time.Duration // bounded-wait cadence for accept/read
	ReadBufSize  int           // per-read command buffer

	// Default steps for the volume and seek commands.
	VolumeStepDB float64
	SeekStep     time.Duration

	// ── MPD backend ──────────────────────────────────────────────────
	MPDNetwork  string // "tcp" or "unix"
	MPDAddr     string // host:port or socket path
	MPDPassword string

	// ── HTTP observation API ─────────────────────────────────────────
	HTTPAddr string // listen address; empty disables the API

	// ── Client mode ──────────────────────────────────────────────────
	Connect bool   // run as interactive client instead of server
	Host    string // server to connect to

	// ── SSH tunnel (client mode) ─────────────────────────────────────
	TunnelSpec     string // raw [user@]host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// New returns a Config populated with defaults.  Env overlay and flag
// parsing refine it from there.
func New() *Config {
	return &Config{
		Port:         DefaultPort,
		Backend:      BackendMemory,
		PollInterval: DefaultPollInterval,
		ReadBufSize:  DefaultReadBufSize,
		VolumeStepDB: DefaultVolumeStepDB,
		SeekStep:     DefaultSeekStep,
		MPDNetwork:   DefaultMPDNetwork,
		MPDAddr:      DefaultMPDAddr,
	}
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q - expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}

	if c.Connect {
		if c.Host == "" {
			return fmt.Errorf("connect mode requires a host (use --help for usage)")
		}
		if c.TunnelEnabled && c.TunnelHost == "" {
			return fmt.Errorf("tunnel host is required")
		}
		return nil
	}

	if c.TunnelEnabled {
		return fmt.Errorf("SSH tunnels only apply to connect mode")
	}

	switch c.Backend {
	case BackendMemory, BackendMPRIS:
	case BackendMPD:
		if c.MPDAddr == "" {
			return fmt.Errorf("mpd backend requires --mpd-addr")
		}
		if c.MPDNetwork != "tcp" && c.MPDNetwork != "unix" {
			return fmt.Errorf("mpd network %q must be tcp or unix", c.MPDNetwork)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s, or %s)",
			c.Backend, BackendMemory, BackendMPD, BackendMPRIS)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.ReadBufSize < 1 {
		return fmt.Errorf("read buffer size must be positive")
	}
	return nil
}
