// Package server runs the TCP control server: it owns the listener,
// the single client session, the command registry, and the bridge
// between backend events and the connected client.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"playmote/config"
	"playmote/internal/backend"
	"playmote/internal/errors"
	"playmote/internal/metrics"
	"playmote/internal/protocol"
	"playmote/internal/session"
	"playmote/util"
)

// Server ties the listener, backend, and protocol together.  One
// client is served at a time; while a session is active, further
// connections wait in the accept backlog.
type Server struct {
	cfg     *config.Config
	be      backend.Backend
	reg     *protocol.Registry
	log     *util.Logger
	metrics *metrics.Collector

	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}

	// terminated closes when the exit command asks the host to shut
	// down, so the process can exit alongside the player.
	terminated     chan struct{}
	terminatedOnce sync.Once

	mu         sync.Mutex
	sess       *session.Session
	lastSearch []int

	notifyNowPlaying      atomic.Bool
	notifyPlaylistChanged atomic.Bool
	currentTrack          atomic.Pointer[backend.Track]

	hub *hub
}

// New builds a Server around the given backend.  The command table is
// assembled here; a registration failure is a programming error and is
// returned rather than deferred to dispatch time.
func New(cfg *config.Config, be backend.Backend, logger *util.Logger, m *metrics.Collector) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		be:         be,
		log:        logger.WithTag("server"),
		metrics:    m,
		done:       make(chan struct{}),
		terminated: make(chan struct{}),
		hub:        newHub(),
	}

	reg, err := s.buildRegistry()
	if err != nil {
		return nil, err
	}
	s.reg = reg

	if tr, err := be.CurrentTrack(); err == nil && tr != nil {
		s.currentTrack.Store(tr)
	}
	be.SetEventSink(s.handleEvent)
	return s, nil
}

// Terminated closes when a client has issued the exit command.
func (s *Server) Terminated() <-chan struct{} { return s.terminated }

// Subscribe attaches an observer to the notification stream.  The
// returned cancel function must be called to release the subscription.
func (s *Server) Subscribe() (<-chan string, func()) { return s.hub.subscribe() }

// Metrics exposes the server's counters for the HTTP API.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Backend exposes the playback backend for read-only observers.
func (s *Server) Backend() backend.Backend { return s.be }

// Start binds the listener and launches the serve loop.  A bind
// failure is reported to the log but leaves the server in a state
// where Stop is still safe to call, matching the rest of the
// lifecycle.
func (s *Server) Start(ctx context.Context) error {
	addr, err := util.ListenSpec(s.cfg.BindIP, s.cfg.Port)
	if err != nil {
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("bind %s failed: %v", addr, err)
		go func() {
			defer close(s.done)
			<-ctx.Done()
		}()
		return errors.Wrap("listen", addr, err)
	}
	s.listener = ln
	s.log.Info("listening on %s", ln.Addr())

	go s.serve(ctx, ln)
	return nil
}

// Stop cancels the serve loop, closes the listener and any active
// session, and waits for the loop to exit.  Worst-case latency is one
// poll interval.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	if s.sess != nil {
		s.sess.Close()
	}
	s.mu.Unlock()
	<-s.done
	s.hub.close()
}

func (s *Server) serve(ctx context.Context, ln net.Listener) {
	defer close(s.done)

	type deadliner interface {
		SetDeadline(time.Time) error
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if d, ok := ln.(deadliner); ok {
			d.SetDeadline(time.Now().Add(s.cfg.PollInterval))
		}
		conn, err := ln.Accept()
		if err != nil {
			if errors.IsTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.log.Error("accept: %v", err)
			continue
		}
		s.handleConn(ctx, conn)
	}
}

// handleConn runs one client session to completion.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	sess := session.New(conn, s.log, s.metrics)
	s.metrics.SessionOpened()
	s.log.Info("client connected: %s", sess.RemoteAddr())

	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.sess == sess {
			s.sess = nil
		}
		s.mu.Unlock()
		sess.Close()
		s.log.Info("client disconnected: %s", sess.RemoteAddr())
	}()

	sess.Printf("Hello! Welcome to the playmote server. Type %q for a list of available commands\n\n", "h")

	buf := make([]byte, s.cfg.ReadBufSize)
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval))
		n, err := conn.Read(buf)
		if n > 0 {
			s.metrics.BytesReceived(int64(n))
			for _, line := range protocol.SplitChunk(string(buf[:n])) {
				token, arg := protocol.ParseLine(line)
				matched, derr := s.reg.Dispatch(ctx, sess, token, arg)
				if !matched {
					s.metrics.CommandUnknown()
					s.log.Verbose("unknown command %q from %s", token, sess.RemoteAddr())
					continue
				}
				s.metrics.CommandDispatched()
				if derr != nil {
					s.metrics.RecordError(derr.Error())
					s.log.Error("command %q: %v", token, derr)
					s.reportError(sess, derr)
				}
			}
		}
		if err != nil {
			if errors.IsTimeout(err) {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				s.log.Debug("read from %s: %v", sess.RemoteAddr(), err)
			}
			return
		}
	}
}

// reportError turns backend capability and reachability failures into
// client-visible text.  Everything else stays a log-only diagnostic.
func (s *Server) reportError(sess *session.Session, err error) {
	switch {
	case errors.Is(err, errors.ErrNotSupported):
		sess.Print("\nNot supported by this player\n\n")
	case errors.Is(err, errors.ErrBackendDown):
		sess.Print("\nThe player is unreachable\n\n")
	}
}

// currentSession returns the active session, or nil.
func (s *Server) currentSession() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *Server) setLastSearch(idxs []int) {
	s.mu.Lock()
	s.lastSearch = idxs
	s.mu.Unlock()
}

// searchResult maps a 1-based search-list position to a playlist
// index.  The second return is false when the position is out of
// range or no search has run.
func (s *Server) searchResult(pos int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 1 || pos > len(s.lastSearch) {
		return 0, false
	}
	return s.lastSearch[pos-1], true
}

func (s *Server) markTerminated() {
	s.terminatedOnce.Do(func() { close(s.terminated) })
}
