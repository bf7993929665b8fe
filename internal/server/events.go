package server

import (
	"strings"
	"sync"

	"playmote/internal/backend"
)

const playlistChangedNotice = "\nThe current playlist content changed; you " +
	"may want to get the tracklist again.\n\n"

// handleEvent is the backend's event sink.  It runs on the backend's
// goroutine, so it only touches the session through its serialized
// writer and never calls back into the backend.
func (s *Server) handleEvent(ev backend.Event) {
	switch ev.Kind {
	case backend.EventTrackChanged:
		s.currentTrack.Store(ev.Track)
		if ev.Track == nil {
			return
		}
		s.hub.publish("Now playing " + ev.Track.String())
		if !s.notifyNowPlaying.Load() {
			return
		}
		if sess := s.currentSession(); sess != nil {
			sess.Print("Now playing ")
			sess.PrintTrack(*ev.Track, false)
			sess.Newline()
			s.metrics.NotificationSent()
		}

	case backend.EventPlaylistChanged:
		s.hub.publish(strings.TrimSpace(playlistChangedNotice))
		if !s.notifyPlaylistChanged.Load() {
			return
		}
		if sess := s.currentSession(); sess != nil {
			sess.Print(playlistChangedNotice)
			s.metrics.NotificationSent()
		}
	}
}

// ── Notification hub ─────────────────────────────────────────────────

// hub fans notification lines out to HTTP observers.  Slow consumers
// drop messages rather than stall the backend's event goroutine.
type hub struct {
	mu     sync.Mutex
	subs   map[chan string]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan string]struct{})}
}

func (h *hub) subscribe() (<-chan string, func()) {
	ch := make(chan string, 16)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
