package backend

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	perr "playmote/internal/errors"
)

// Memory is an in-process Backend holding a small mutable library.
// It backs the demo serve mode and every protocol-level test.  All
// methods are safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	playlists  []memPlaylist
	current    int // current playlist index
	curTrack   int // index into current playlist, -1 = none
	state      State
	position   time.Duration
	volume     float64 // dB, clamped to [-50, 0]
	stopAfter  bool
	queue      []int
	terminated bool
	sink       Sink
	nextRef    int
	rnd        *rand.Rand
}

type memPlaylist struct {
	name   string
	tracks []Track
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		curTrack: -1,
		volume:   0,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AddPlaylist appends a playlist and stamps every track with a fresh
// opaque reference. The first playlist added becomes current.
func (m *Memory) AddPlaylist(name string, tracks ...Track) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamped := make([]Track, len(tracks))
	for i, t := range tracks {
		m.nextRef++
		t.Ref = fmt.Sprintf("%08x", m.nextRef)
		stamped[i] = t
	}
	m.playlists = append(m.playlists, memPlaylist{name: name, tracks: stamped})
}

// DemoLibrary builds a Memory backend with a small fixed library, used
// by "--backend mem".
func DemoLibrary() *Memory {
	m := NewMemory()
	m.AddPlaylist("Library",
		Track{Artist: "Tool", Album: "Lateralus", Title: "Schism", Number: "05", Duration: 6*time.Minute + 48*time.Second},
		Track{Artist: "Tool", Album: "Lateralus", Title: "Lateralus", Number: "09", Duration: 9*time.Minute + 24*time.Second},
		Track{Artist: "Boards of Canada", Album: "Geogaddi", Title: "1969", Number: "16", Duration: 4*time.Minute + 20*time.Second},
		Track{Artist: "Nina Simone", Album: "Pastel Blues", Title: "Sinnerman", Number: "10", Duration: 10*time.Minute + 19*time.Second},
	)
	m.AddPlaylist("Ambient",
		Track{Artist: "Brian Eno", Album: "Ambient 1", Title: "1/1", Number: "01", Duration: 17*time.Minute + 43*time.Second},
	)
	return m
}

func (m *Memory) emit(ev Event) {
	if m.sink != nil {
		m.sink(ev)
	}
}

func (m *Memory) plt() *memPlaylist {
	if m.current < 0 || m.current >= len(m.playlists) {
		return nil
	}
	return &m.playlists[m.current]
}

// startTrack makes idx current and emits a track-changed event.
// Caller holds the lock.
func (m *Memory) startTrack(idx int) {
	m.curTrack = idx
	m.state = StatePlaying
	m.position = 0
	t := m.playlists[m.current].tracks[idx]
	m.emit(Event{Kind: EventTrackChanged, Track: &t})
}

// ── Backend implementation ───────────────────────────────────────────

func (m *Memory) Playlists() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.playlists))
	for i, p := range m.playlists {
		names[i] = p.name
	}
	return names, nil
}

func (m *Memory) CurrentPlaylist() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.playlists) == 0 {
		return 0, perr.ErrNoPlaylist
	}
	return m.current, nil
}

func (m *Memory) SelectPlaylist(idx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= len(m.playlists) {
		return perr.ErrOutOfBounds
	}
	if idx != m.current {
		m.current = idx
		m.curTrack = -1
		m.emit(Event{Kind: EventPlaylistChanged})
	}
	return nil
}

func (m *Memory) Tracks() ([]Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil {
		return nil, perr.ErrNoPlaylist
	}
	out := make([]Track, len(p.tracks))
	copy(out, p.tracks)
	return out, nil
}

func (m *Memory) TrackCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil {
		return 0, perr.ErrNoPlaylist
	}
	return len(p.tracks), nil
}

func (m *Memory) CurrentTrack() (*Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil || m.curTrack < 0 || m.curTrack >= len(p.tracks) {
		return nil, perr.ErrNoCurrentTrack
	}
	t := p.tracks[m.curTrack]
	return &t, nil
}

func (m *Memory) PlaybackState() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *Memory) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil || len(p.tracks) == 0 {
		return perr.ErrNoPlaylist
	}
	if m.state == StatePaused && m.curTrack >= 0 {
		m.state = StatePlaying
		return nil
	}
	idx := m.curTrack
	if idx < 0 {
		idx = 0
	}
	m.startTrack(idx)
	return nil
}

func (m *Memory) PlayIndex(idx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil {
		return perr.ErrNoPlaylist
	}
	if idx < 0 || idx >= len(p.tracks) {
		return perr.ErrOutOfBounds
	}
	m.startTrack(idx)
	return nil
}

func (m *Memory) PlayRandom() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil || len(p.tracks) == 0 {
		return perr.ErrNoPlaylist
	}
	m.startTrack(m.rnd.Intn(len(p.tracks)))
	return nil
}

func (m *Memory) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatePlaying {
		m.state = StatePaused
	}
	return nil
}

func (m *Memory) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateStopped
	m.position = 0
	return nil
}

func (m *Memory) Next() error {
	return m.step(1)
}

func (m *Memory) Previous() error {
	return m.step(-1)
}

func (m *Memory) step(delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil || len(p.tracks) == 0 {
		return perr.ErrNoPlaylist
	}
	n := len(p.tracks)
	idx := ((m.curTrack+delta)%n + n) % n
	m.startTrack(idx)
	return nil
}

func (m *Memory) SeekBy(delta time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil || m.curTrack < 0 {
		return perr.ErrNoCurrentTrack
	}
	m.position += delta
	if m.position < 0 {
		m.position = 0
	}
	if max := p.tracks[m.curTrack].Duration; m.position > max {
		m.position = max
	}
	return nil
}

// Position reports the playback position of the current track.
func (m *Memory) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Memory) VolumeDB() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume, nil
}

func (m *Memory) SetVolumeDB(db float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if db > 0 {
		db = 0
	}
	if db < -50 {
		db = -50
	}
	m.volume = db
	return nil
}

func (m *Memory) Search(query string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil {
		return nil, perr.ErrNoPlaylist
	}
	return MatchTracks(p.tracks, query), nil
}

func (m *Memory) Enqueue(idx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil {
		return perr.ErrNoPlaylist
	}
	if idx < 0 || idx >= len(p.tracks) {
		return perr.ErrOutOfBounds
	}
	m.queue = append(m.queue, idx)
	return nil
}

// Queue returns the queued track indexes.
func (m *Memory) Queue() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.queue))
	copy(out, m.queue)
	return out
}

func (m *Memory) StopAfterCurrent() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopAfter, nil
}

func (m *Memory) SetStopAfterCurrent(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopAfter = v
	return nil
}

func (m *Memory) ResolveRef(ref string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plt()
	if p == nil {
		return 0, perr.ErrNoPlaylist
	}
	for i, t := range p.tracks {
		if t.Ref == ref {
			return i, nil
		}
	}
	return 0, perr.ErrInvalidRef
}

func (m *Memory) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
	m.state = StateStopped
	return nil
}

// Terminated reports whether Terminate has been called.
func (m *Memory) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

func (m *Memory) SetEventSink(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func (m *Memory) Close() error { return nil }
