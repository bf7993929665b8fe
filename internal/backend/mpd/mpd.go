// Package mpd adapts a Music Player Daemon instance to the backend
// interface.  The MPD queue is playlist 1; stored playlists follow and
// are loaded into the queue when selected.
package mpd

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	gompd "github.com/fhs/gompd/v2/mpd"

	"playmote/internal/backend"
	"playmote/internal/errors"
	"playmote/internal/metrics"
	"playmote/internal/retry"
	"playmote/util"
)

// QueueName is how the live MPD queue shows up in the playlist list.
const QueueName = "Queue"

// enqueuePriority is the prio value handed to MPD for queued tracks.
// MPD plays higher priorities first when random mode is on.
const enqueuePriority = 255

// Options configures the MPD connection.
type Options struct {
	Network  string // "tcp" or "unix"
	Addr     string
	Password string
}

// Client implements backend.Backend against a running MPD.
type Client struct {
	opts    Options
	log     *util.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	conn    *gompd.Client
	current int // selected playlist; 0 is the queue
	sink    backend.Sink
	rnd     *rand.Rand

	watcher *gompd.Watcher
	done    chan struct{}
}

// New dials MPD and starts the idle watcher.  The returned client
// reconnects on its own when the daemon drops the connection.
func New(opts Options, logger *util.Logger, m *metrics.Collector) (*Client, error) {
	c := &Client{
		opts:    opts,
		log:     logger.WithTag("mpd"),
		metrics: m,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		done:    make(chan struct{}),
	}

	conn, err := c.dial()
	if err != nil {
		return nil, errors.WrapBackend("dial", err)
	}
	c.conn = conn

	w, err := gompd.NewWatcher(opts.Network, opts.Addr, opts.Password, "player", "playlist")
	if err != nil {
		conn.Close()
		return nil, errors.WrapBackend("watch", err)
	}
	c.watcher = w
	go c.watch()

	c.log.Verbose("connected to %s", opts.Addr)
	return c, nil
}

func (c *Client) dial() (*gompd.Client, error) {
	if c.opts.Password != "" {
		return gompd.DialAuthenticated(c.opts.Network, c.opts.Addr, c.opts.Password)
	}
	return gompd.Dial(c.opts.Network, c.opts.Addr)
}

// do runs one MPD operation, redialing with backoff when the daemon
// has dropped the connection.
func (c *Client) do(op string, fn func(*gompd.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := fn(c.conn); err == nil {
			return nil
		} else if !connLost(err) {
			return errors.WrapBackend(op, err)
		}
		c.conn.Close()
		c.conn = nil
	}

	bo := retry.DefaultBackoff()
	bo.MaxAttempts = 3
	err := bo.Do(context.Background(), func(attempt int) error {
		conn, derr := c.dial()
		if derr != nil {
			c.log.Verbose("reconnect attempt %d: %v", attempt, derr)
			return derr
		}
		c.conn = conn
		c.metrics.BackendReconnect()
		return nil
	})
	if err != nil {
		return errors.WrapBackend(op, errors.ErrBackendDown)
	}

	if err := fn(c.conn); err != nil {
		return errors.WrapBackend(op, err)
	}
	return nil
}

// connLost reports whether err means the daemon dropped the connection,
// as opposed to a protocol-level command failure.
func connLost(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// watch forwards MPD idle events to the sink.
func (c *Client) watch() {
	for {
		select {
		case <-c.done:
			return
		case subsystem, ok := <-c.watcher.Event:
			if !ok {
				return
			}
			switch subsystem {
			case "player":
				tr, err := c.CurrentTrack()
				if err != nil && !errors.Is(err, errors.ErrNoCurrentTrack) {
					continue
				}
				c.emit(backend.Event{Kind: backend.EventTrackChanged, Track: tr})
			case "playlist":
				c.emit(backend.Event{Kind: backend.EventPlaylistChanged})
			}
		case err, ok := <-c.watcher.Error:
			if !ok {
				return
			}
			c.log.Debug("watcher: %v", err)
		}
	}
}

func (c *Client) emit(ev backend.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

// ── Attribute conversion ─────────────────────────────────────────────

// attrsToTrack maps one MPD song record to a Track.  The song id is
// the opaque reference; it stays stable for the song's lifetime in the
// queue.
func attrsToTrack(a gompd.Attrs) backend.Track {
	t := backend.Track{
		Ref:    a["Id"],
		Artist: a["Artist"],
		Album:  a["Album"],
		Title:  a["Title"],
		Number: a["Track"],
	}
	if t.Title == "" {
		t.Title = a["file"]
	}
	if secs, err := strconv.ParseFloat(a["duration"], 64); err == nil {
		t.Duration = time.Duration(secs * float64(time.Second))
	} else if secs, err := strconv.ParseFloat(a["Time"], 64); err == nil {
		t.Duration = time.Duration(secs * float64(time.Second))
	}
	return t
}

// MPD exposes volume as a 0-100 percentage; the protocol speaks dB in
// [-50, 0].  The mapping is linear: two percent per decibel.
func percentToDB(pct int) float64 {
	return (float64(pct) - 100) / 2
}

func dbToPercent(db float64) int {
	if db > 0 {
		db = 0
	}
	if db < -50 {
		db = -50
	}
	return int(100 + 2*db)
}

// ── Backend implementation ───────────────────────────────────────────

func (c *Client) Playlists() ([]string, error) {
	names := []string{QueueName}
	err := c.do("playlists", func(conn *gompd.Client) error {
		lists, err := conn.ListPlaylists()
		if err != nil {
			return err
		}
		for _, a := range lists {
			names = append(names, a["playlist"])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) CurrentPlaylist() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

// SelectPlaylist replaces the queue with the chosen stored playlist.
// Index 0 is the queue itself and only moves the selection.
func (c *Client) SelectPlaylist(idx int) error {
	names, err := c.Playlists()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(names) {
		return errors.ErrOutOfBounds
	}

	if idx > 0 {
		err = c.do("load", func(conn *gompd.Client) error {
			if err := conn.Clear(); err != nil {
				return err
			}
			return conn.PlaylistLoad(names[idx], -1, -1)
		})
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.current = idx
	c.mu.Unlock()
	return nil
}

func (c *Client) Tracks() ([]backend.Track, error) {
	var tracks []backend.Track
	err := c.do("tracks", func(conn *gompd.Client) error {
		infos, err := conn.PlaylistInfo(-1, -1)
		if err != nil {
			return err
		}
		tracks = make([]backend.Track, 0, len(infos))
		for _, a := range infos {
			tracks = append(tracks, attrsToTrack(a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

func (c *Client) TrackCount() (int, error) {
	var n int
	err := c.do("status", func(conn *gompd.Client) error {
		st, err := conn.Status()
		if err != nil {
			return err
		}
		n, _ = strconv.Atoi(st["playlistlength"])
		return nil
	})
	return n, err
}

func (c *Client) CurrentTrack() (*backend.Track, error) {
	var tr *backend.Track
	err := c.do("currentsong", func(conn *gompd.Client) error {
		song, err := conn.CurrentSong()
		if err != nil {
			return err
		}
		if len(song) == 0 || song["file"] == "" {
			return nil
		}
		t := attrsToTrack(song)
		tr = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, errors.ErrNoCurrentTrack
	}
	return tr, nil
}

func (c *Client) PlaybackState() (backend.State, error) {
	state := backend.StateStopped
	err := c.do("status", func(conn *gompd.Client) error {
		st, err := conn.Status()
		if err != nil {
			return err
		}
		switch st["state"] {
		case "play":
			state = backend.StatePlaying
		case "pause":
			state = backend.StatePaused
		}
		return nil
	})
	return state, err
}

func (c *Client) Play() error {
	state, err := c.PlaybackState()
	if err != nil {
		return err
	}
	if state == backend.StatePaused {
		return c.do("resume", func(conn *gompd.Client) error {
			return conn.Pause(false)
		})
	}
	return c.do("play", func(conn *gompd.Client) error {
		return conn.Play(-1)
	})
}

func (c *Client) PlayIndex(idx int) error {
	n, err := c.TrackCount()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= n {
		return errors.ErrOutOfBounds
	}
	return c.do("play", func(conn *gompd.Client) error {
		return conn.Play(idx)
	})
}

func (c *Client) PlayRandom() error {
	n, err := c.TrackCount()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.ErrOutOfBounds
	}
	c.mu.Lock()
	idx := c.rnd.Intn(n)
	c.mu.Unlock()
	return c.do("play", func(conn *gompd.Client) error {
		return conn.Play(idx)
	})
}

func (c *Client) Pause() error {
	return c.do("pause", func(conn *gompd.Client) error {
		return conn.Pause(true)
	})
}

func (c *Client) Stop() error {
	return c.do("stop", func(conn *gompd.Client) error {
		return conn.Stop()
	})
}

func (c *Client) Next() error {
	return c.do("next", func(conn *gompd.Client) error {
		return conn.Next()
	})
}

func (c *Client) Previous() error {
	return c.do("previous", func(conn *gompd.Client) error {
		return conn.Previous()
	})
}

func (c *Client) SeekBy(delta time.Duration) error {
	return c.do("seek", func(conn *gompd.Client) error {
		return conn.SeekCur(delta, true)
	})
}

func (c *Client) VolumeDB() (float64, error) {
	var db float64
	err := c.do("status", func(conn *gompd.Client) error {
		st, err := conn.Status()
		if err != nil {
			return err
		}
		pct, perr := strconv.Atoi(st["volume"])
		if perr != nil {
			return errors.ErrNotSupported
		}
		db = percentToDB(pct)
		return nil
	})
	return db, err
}

func (c *Client) SetVolumeDB(db float64) error {
	return c.do("setvol", func(conn *gompd.Client) error {
		return conn.SetVolume(dbToPercent(db))
	})
}

func (c *Client) Search(query string) ([]int, error) {
	tracks, err := c.Tracks()
	if err != nil {
		return nil, err
	}
	return backend.MatchTracks(tracks, query), nil
}

// Enqueue raises an entry's priority so MPD plays it next in random
// mode, the closest equivalent of a play queue.
func (c *Client) Enqueue(idx int) error {
	tracks, err := c.Tracks()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(tracks) {
		return errors.ErrOutOfBounds
	}
	id := tracks[idx].Ref
	return c.do("prioid", func(conn *gompd.Client) error {
		return conn.Command("prioid %d %s", enqueuePriority, id).OK()
	})
}

// StopAfterCurrent maps onto MPD's single mode.
func (c *Client) StopAfterCurrent() (bool, error) {
	var v bool
	err := c.do("status", func(conn *gompd.Client) error {
		st, err := conn.Status()
		if err != nil {
			return err
		}
		v = st["single"] == "1"
		return nil
	})
	return v, err
}

func (c *Client) SetStopAfterCurrent(v bool) error {
	return c.do("single", func(conn *gompd.Client) error {
		return conn.Single(v)
	})
}

func (c *Client) ResolveRef(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if _, err := strconv.Atoi(ref); err != nil {
		return 0, errors.ErrInvalidRef
	}
	tracks, err := c.Tracks()
	if err != nil {
		return 0, err
	}
	for i, t := range tracks {
		if t.Ref == ref {
			return i, nil
		}
	}
	return 0, errors.ErrInvalidRef
}

// Terminate issues MPD's kill command.  The daemon closes the
// connection as it dies, so transport errors here are expected.
func (c *Client) Terminate() error {
	err := c.do("kill", func(conn *gompd.Client) error {
		return conn.Command("kill").OK()
	})
	if err != nil {
		var be *errors.BackendError
		if errors.As(err, &be) && errors.Is(be.Err, errors.ErrBackendDown) {
			return nil
		}
		c.log.Debug("kill: %v", err)
	}
	return nil
}

func (c *Client) SetEventSink(sink backend.Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *Client) Close() error {
	close(c.done)
	if c.watcher != nil {
		c.watcher.Close()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// String identifies the connection for logs.
func (c *Client) String() string {
	return fmt.Sprintf("mpd(%s %s)", c.opts.Network, c.opts.Addr)
}
