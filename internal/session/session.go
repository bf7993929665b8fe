// Package session represents one connected remote-control client.
//
// The session's socket is a shared output sink: command replies are
// written by the connection loop while asynchronous notifications
// arrive from the backend's event thread.  All writes are serialized
// through the session mutex so concurrent writers never interleave
// mid-message.
package session

import (
	"fmt"
	"net"
	"sync"

	"playmote/internal/backend"
	"playmote/internal/metrics"
	"playmote/util"
)

// Tracklist sentinels bracketing "tl"/"tla" output.
const (
	TracklistBegin = "TRACKLIST_BEGIN\n"
	TracklistEnd   = "TRACKLIST_END\n"
)

// Session is the runtime context for a single connected client.
type Session struct {
	conn    net.Conn
	remote  string
	logger  *util.Logger
	metrics *metrics.Collector
	mu      sync.Mutex
}

// New creates a Session bound to the given connection.  The metrics
// collector may be nil.
func New(conn net.Conn, logger *util.Logger, m *metrics.Collector) *Session {
	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Session{
		conn:    conn,
		remote:  remote,
		logger:  logger,
		metrics: m,
	}
}

// RemoteAddr returns the peer address, for logging.
func (s *Session) RemoteAddr() string { return s.remote }

// Conn exposes the underlying connection to the connection loop, which
// owns all reads.  Writers must go through Print and friends.
func (s *Session) Conn() net.Conn { return s.conn }

// Close shuts the connection down.
func (s *Session) Close() error { return s.conn.Close() }

// Print writes text to the client, best-effort.  Delivery failures and
// short writes are logged as diagnostics, never retried or escalated.
func (s *Session) Print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.conn.Write([]byte(text))
	s.metrics.BytesSent(int64(n))
	if err != nil {
		s.logger.Debug("write to %s: %v", s.remote, err)
		return
	}
	if n != len(text) {
		s.logger.Debug("short write to %s: %d of %d bytes", s.remote, n, len(text))
	}
}

// Printf formats and writes text to the client.
func (s *Session) Printf(format string, args ...interface{}) {
	s.Print(fmt.Sprintf(format, args...))
}

// Newline writes a single blank line.
func (s *Session) Newline() {
	s.Print("\n")
}

// PrintTrack writes one track line.  With withRef, the track's opaque
// reference is prepended so the client can feed it back to "pa".
func (s *Session) PrintTrack(t backend.Track, withRef bool) {
	if withRef {
		s.Printf("%s %s\n", t.Ref, t.String())
		return
	}
	s.Printf("%s\n", t.String())
}

// PrintTracklist writes the tracklist bracketed by the begin/end
// sentinels, each entry prefixed with its 1-based index.  It returns
// the number of tracks printed.
func (s *Session) PrintTracklist(tracks []backend.Track, withRef bool) int {
	s.Print(TracklistBegin)
	for i, t := range tracks {
		s.Printf("(%d) ", i+1)
		s.PrintTrack(t, withRef)
	}
	s.Print(TracklistEnd)
	return len(tracks)
}
