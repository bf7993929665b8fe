package util

import (
	"fmt"
	"net"
	"strconv"
)

// ListenSpec builds the address string for net.Listen from an optional
// bind IP and a port. An empty IP binds to all interfaces. A non-empty
// IP must be numeric; bind addresses are never resolved through DNS.
func ListenSpec(ip string, port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("port %d out of range 1-65535", port)
	}
	if ip == "" {
		return fmt.Sprintf(":%d", port), nil
	}
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("cannot parse %q as an IP address", ip)
	}
	return net.JoinHostPort(ip, strconv.Itoa(port)), nil
}

// ParsePort parses a decimal port number and range-checks it.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
