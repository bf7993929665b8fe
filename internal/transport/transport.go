// Package transport handles how the connect client reaches a playmote
// server: directly over TCP, or through an SSH gateway when the server
// is bound to a remote loopback.
package transport

import (
	"context"
	"net"
)

// Dialer opens the outbound connection to the server.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases long-lived resources (an SSH session, for the
	// tunnelled dialer).  Stateless dialers return nil.
	Close() error
}
