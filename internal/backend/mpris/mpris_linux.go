//go:build linux

// Package mpris adapts any MPRIS-capable player on the session bus to
// the backend interface.  Playlist operations are out of reach of the
// base MPRIS player interface and report ErrNotSupported.
package mpris

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"playmote/internal/backend"
	"playmote/internal/errors"
	"playmote/util"
)

const (
	mprisPrefix          = "org.mpris.MediaPlayer2."
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	mprisRootInterface   = "org.mpris.MediaPlayer2"
)

// Client drives one MPRIS player over the session bus.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	name string
	log  *util.Logger

	mu   sync.Mutex
	sink backend.Sink
	done chan struct{}
}

// New connects to the session bus and attaches to the first MPRIS
// player it finds.
func New(logger *util.Logger) (backend.Backend, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, errors.WrapBackend("session bus", err)
	}

	name, err := findPlayer(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn: conn,
		obj:  conn.Object(name, mprisObjectPath),
		name: name,
		log:  logger.WithTag("mpris"),
		done: make(chan struct{}),
	}

	if err := c.watchProperties(); err != nil {
		conn.Close()
		return nil, err
	}

	c.log.Verbose("attached to %s", name)
	return c, nil
}

// findPlayer lists bus names and picks the first MPRIS one.
func findPlayer(conn *dbus.Conn) (string, error) {
	var names []string
	err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	if err != nil {
		return "", errors.WrapBackend("list names", err)
	}
	for _, n := range names {
		if strings.HasPrefix(n, mprisPrefix) {
			return n, nil
		}
	}
	return "", errors.WrapBackend("find player", errors.New("no MPRIS player on the session bus"))
}

// watchProperties subscribes to PropertiesChanged so track changes
// reach the sink.
func (c *Client) watchProperties() error {
	err := c.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisObjectPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		return errors.WrapBackend("match signal", err)
	}

	ch := make(chan *dbus.Signal, 16)
	c.conn.Signal(ch)

	go func() {
		for {
			select {
			case <-c.done:
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				c.handleSignal(sig)
			}
		}
	}()
	return nil
}

func (c *Client) handleSignal(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	if iface != mprisPlayerInterface {
		return
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	if _, ok := changed["Metadata"]; !ok {
		if _, ok := changed["PlaybackStatus"]; !ok {
			return
		}
	}

	tr, err := c.CurrentTrack()
	if err != nil && !errors.Is(err, errors.ErrNoCurrentTrack) {
		return
	}
	c.emit(backend.Event{Kind: backend.EventTrackChanged, Track: tr})
}

func (c *Client) emit(ev backend.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

func (c *Client) call(method string, args ...interface{}) error {
	call := c.obj.Call(mprisPlayerInterface+"."+method, 0, args...)
	if call.Err != nil {
		return errors.WrapBackend(method, call.Err)
	}
	return nil
}

func (c *Client) playerProperty(prop string) (dbus.Variant, error) {
	v, err := c.obj.GetProperty(mprisPlayerInterface + "." + prop)
	if err != nil {
		return dbus.Variant{}, errors.WrapBackend(prop, err)
	}
	return v, nil
}

// trackFromMetadata converts an MPRIS metadata map.  The trackid
// object path doubles as the opaque reference.
func trackFromMetadata(md map[string]dbus.Variant) backend.Track {
	t := backend.Track{}
	if v, ok := md["mpris:trackid"]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok {
			t.Ref = string(p)
		} else if s, ok := v.Value().(string); ok {
			t.Ref = s
		}
	}
	if v, ok := md["xesam:title"]; ok {
		t.Title, _ = v.Value().(string)
	}
	if v, ok := md["xesam:album"]; ok {
		t.Album, _ = v.Value().(string)
	}
	if v, ok := md["xesam:artist"]; ok {
		if artists, ok := v.Value().([]string); ok && len(artists) > 0 {
			t.Artist = artists[0]
		}
	}
	if v, ok := md["xesam:trackNumber"]; ok {
		switch n := v.Value().(type) {
		case int32:
			t.Number = fmt.Sprintf("%02d", n)
		case int64:
			t.Number = fmt.Sprintf("%02d", n)
		}
	}
	if v, ok := md["mpris:length"]; ok {
		if us, ok := v.Value().(int64); ok {
			t.Duration = time.Duration(us) * time.Microsecond
		}
	}
	return t
}

// ── Backend implementation ───────────────────────────────────────────

func (c *Client) Playlists() ([]string, error) { return nil, errors.ErrNotSupported }
func (c *Client) CurrentPlaylist() (int, error) { return 0, errors.ErrNotSupported }
func (c *Client) SelectPlaylist(idx int) error { return errors.ErrNotSupported }
func (c *Client) Tracks() ([]backend.Track, error) { return nil, errors.ErrNotSupported }
func (c *Client) TrackCount() (int, error) { return 0, errors.ErrNotSupported }

func (c *Client) CurrentTrack() (*backend.Track, error) {
	v, err := c.playerProperty("Metadata")
	if err != nil {
		return nil, err
	}
	md, ok := v.Value().(map[string]dbus.Variant)
	if !ok || len(md) == 0 {
		return nil, errors.ErrNoCurrentTrack
	}
	t := trackFromMetadata(md)
	if t.Title == "" && t.Ref == "" {
		return nil, errors.ErrNoCurrentTrack
	}
	return &t, nil
}

func (c *Client) PlaybackState() (backend.State, error) {
	v, err := c.playerProperty("PlaybackStatus")
	if err != nil {
		return backend.StateStopped, err
	}
	switch v.Value() {
	case "Playing":
		return backend.StatePlaying, nil
	case "Paused":
		return backend.StatePaused, nil
	}
	return backend.StateStopped, nil
}

func (c *Client) Play() error { return c.call("Play") }
func (c *Client) PlayIndex(idx int) error { return errors.ErrNotSupported }
func (c *Client) PlayRandom() error { return errors.ErrNotSupported }
func (c *Client) Pause() error { return c.call("Pause") }
func (c *Client) Stop() error { return c.call("Stop") }
func (c *Client) Next() error { return c.call("Next") }
func (c *Client) Previous() error { return c.call("Previous") }

func (c *Client) SeekBy(delta time.Duration) error {
	return c.call("Seek", delta.Microseconds())
}

// MPRIS volume is a linear fraction in [0, 1]; the dB mapping mirrors
// the MPD adapter's two-percent-per-decibel convention.
func (c *Client) VolumeDB() (float64, error) {
	v, err := c.playerProperty("Volume")
	if err != nil {
		return 0, err
	}
	frac, ok := v.Value().(float64)
	if !ok {
		return 0, errors.ErrNotSupported
	}
	return (frac - 1) * 50, nil
}

func (c *Client) SetVolumeDB(db float64) error {
	if db > 0 {
		db = 0
	}
	if db < -50 {
		db = -50
	}
	err := c.obj.SetProperty(mprisPlayerInterface+".Volume", dbus.MakeVariant(1+db/50))
	if err != nil {
		return errors.WrapBackend("Volume", err)
	}
	return nil
}

func (c *Client) Search(query string) ([]int, error) { return nil, errors.ErrNotSupported }
func (c *Client) Enqueue(idx int) error { return errors.ErrNotSupported }
func (c *Client) StopAfterCurrent() (bool, error) { return false, errors.ErrNotSupported }
func (c *Client) SetStopAfterCurrent(v bool) error { return errors.ErrNotSupported }
func (c *Client) ResolveRef(ref string) (int, error) { return 0, errors.ErrInvalidRef }

// Terminate asks the player to quit via the MPRIS root interface.
func (c *Client) Terminate() error {
	call := c.obj.Call(mprisRootInterface+".Quit", 0)
	if call.Err != nil {
		return errors.WrapBackend("Quit", call.Err)
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
	return c.conn.Close()
}
