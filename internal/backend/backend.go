// Package backend defines the playback collaborator that command
// handlers drive.  The server core never touches a player directly;
// it talks to a Backend, and implementations adapt concrete engines
// (MPD, MPRIS players, the in-memory library) to this interface.
package backend

import (
	"fmt"
	"strings"
	"time"
)

// State is the coarse playback state reported by a backend.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Track is the descriptive metadata for one playable item.  Ref is an
// opaque, backend-issued reference that survives round trips through
// the protocol ("tla" prints it, "pa" resolves it); clients must treat
// it as a token, not an address.
type Track struct {
	Ref      string
	Artist   string
	Album    string
	Title    string
	Number   string
	Duration time.Duration
}

// String renders a track the way the protocol prints it:
// "[Tool - Lateralus] 05 - Schism (6:48)".
func (t Track) String() string {
	return fmt.Sprintf("[%s - %s] %s - %s (%s)",
		t.Artist, t.Album, t.Number, t.Title, FormatDuration(t.Duration))
}

// FormatDuration renders a duration as m:ss, or h:mm:ss past an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ── Events ───────────────────────────────────────────────────────────

// EventKind discriminates backend events.
type EventKind int

const (
	// EventTrackChanged fires when a new track starts (or playback
	// moves to "nothing").
	EventTrackChanged EventKind = iota
	// EventPlaylistChanged fires when the current playlist's content
	// changes.
	EventPlaylistChanged
)

// Event is a notification pushed by the backend on its own thread.
type Event struct {
	Kind  EventKind
	Track *Track // set for EventTrackChanged; nil means "no track"
}

// Sink receives backend events.  Implementations must be fast and must
// not call back into the backend.
type Sink func(Event)

// ── Backend ──────────────────────────────────────────────────────────

// Backend is the capability set the command handlers rely on.  All
// indexes are 0-based; the protocol layer owns the 1-based surface.
// Operations a given engine cannot perform return ErrNotSupported from
// the errors package, which handlers report as text.
type Backend interface {
	// Playlists returns the names of all playlists.
	Playlists() ([]string, error)
	// CurrentPlaylist returns the index of the current playlist.
	CurrentPlaylist() (int, error)
	// SelectPlaylist makes playlist idx current.
	SelectPlaylist(idx int) error

	// Tracks returns the tracks of the current playlist.
	Tracks() ([]Track, error)
	// TrackCount returns the number of tracks in the current playlist.
	TrackCount() (int, error)
	// CurrentTrack returns the playing/last-played track.
	CurrentTrack() (*Track, error)
	// PlaybackState reports the engine state.
	PlaybackState() (State, error)

	Play() error // play/resume the current track
	PlayIndex(idx int) error
	PlayRandom() error
	Pause() error
	Stop() error
	Next() error
	Previous() error

	// SeekBy moves the playback position by delta (may be negative).
	SeekBy(delta time.Duration) error

	// VolumeDB and SetVolumeDB use a decibel scale where 0 dB is full
	// volume; implementations clamp to their own range.
	VolumeDB() (float64, error)
	SetVolumeDB(db float64) error

	// Search runs a substring match over the current playlist and
	// returns the matching track indexes.
	Search(query string) ([]int, error)
	// Enqueue pushes track idx onto the play queue.
	Enqueue(idx int) error

	StopAfterCurrent() (bool, error)
	SetStopAfterCurrent(v bool) error

	// ResolveRef maps an opaque track reference back to an index in
	// the current playlist.
	ResolveRef(ref string) (int, error)

	// Terminate asks the host player to shut down.
	Terminate() error

	// SetEventSink installs the server's event callback.
	SetEventSink(sink Sink)

	Close() error
}

// MatchTracks returns the indexes of tracks whose artist, album, title
// or number contains the query, case-insensitively.  It is the shared
// search routine for backends without a native search facility.
func MatchTracks(tracks []Track, query string) []int {
	q := strings.ToLower(query)
	var out []int
	for i, t := range tracks {
		hay := strings.ToLower(t.Artist + "\x00" + t.Album + "\x00" + t.Title + "\x00" + t.Number)
		if strings.Contains(hay, q) {
			out = append(out, i)
		}
	}
	return out
}
