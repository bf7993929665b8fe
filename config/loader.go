package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names understood by LoadEnv.
const (
	EnvPort        = "PLAYMOTE_PORT"
	EnvBindIP      = "PLAYMOTE_IP"
	EnvBackend     = "PLAYMOTE_BACKEND"
	EnvMPDAddr     = "PLAYMOTE_MPD_ADDR"
	EnvMPDNetwork  = "PLAYMOTE_MPD_NETWORK"
	EnvMPDPassword = "PLAYMOTE_MPD_PASSWORD"
	EnvHTTPAddr    = "PLAYMOTE_HTTP"
	EnvPollMs      = "PLAYMOTE_POLL_MS"
	EnvVerbose     = "PLAYMOTE_VERBOSE"
)

// LoadEnv overlays environment variables on top of c.  Flags parsed
// afterwards still win, so precedence is defaults < env < flags.
func (c *Config) LoadEnv() {
	if v := os.Getenv(EnvBindIP); v != "" {
		c.BindIP = v
	}
	if v := envInt(EnvPort); v > 0 {
		c.Port = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvMPDAddr); v != "" {
		c.MPDAddr = v
	}
	if v := os.Getenv(EnvMPDNetwork); v != "" {
		c.MPDNetwork = v
	}
	if v := os.Getenv(EnvMPDPassword); v != "" {
		c.MPDPassword = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTPAddr = v
	}
	if v := envInt(EnvPollMs); v > 0 {
		c.PollInterval = time.Duration(v) * time.Millisecond
	}
	if v := envInt(EnvVerbose); v > 0 {
		c.Verbose = v
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
