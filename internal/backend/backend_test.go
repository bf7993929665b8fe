package backend

import (
	"testing"
	"time"

	perr "playmote/internal/errors"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{48 * time.Second, "0:48"},
		{6*time.Minute + 48*time.Second, "6:48"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{-time.Second, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTrack_String(t *testing.T) {
	tr := Track{
		Artist:   "Tool",
		Album:    "Lateralus",
		Title:    "Schism",
		Number:   "05",
		Duration: 6*time.Minute + 48*time.Second,
	}
	want := "[Tool - Lateralus] 05 - Schism (6:48)"
	if got := tr.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMatchTracks(t *testing.T) {
	tracks := []Track{
		{Artist: "Tool", Album: "Lateralus", Title: "Schism"},
		{Artist: "Nina Simone", Album: "Pastel Blues", Title: "Sinnerman"},
		{Artist: "Brian Eno", Album: "Ambient 1", Title: "1/1"},
	}

	if got := MatchTracks(tracks, "sinner"); len(got) != 1 || got[0] != 1 {
		t.Errorf("MatchTracks(sinner) = %v", got)
	}
	if got := MatchTracks(tracks, "TOOL"); len(got) != 1 || got[0] != 0 {
		t.Errorf("case-insensitive match failed: %v", got)
	}
	if got := MatchTracks(tracks, "zzz"); got != nil {
		t.Errorf("no-match should return nil, got %v", got)
	}
}

func newTestMemory() *Memory {
	m := NewMemory()
	m.AddPlaylist("main",
		Track{Artist: "A", Album: "X", Title: "one", Number: "01", Duration: time.Minute},
		Track{Artist: "B", Album: "Y", Title: "two", Number: "02", Duration: 2 * time.Minute},
		Track{Artist: "C", Album: "Z", Title: "three", Number: "03", Duration: 3 * time.Minute},
	)
	m.AddPlaylist("other",
		Track{Artist: "D", Album: "W", Title: "four", Number: "01", Duration: time.Minute},
	)
	return m
}

func TestMemory_PlaylistSelection(t *testing.T) {
	m := newTestMemory()

	names, err := m.Playlists()
	if err != nil || len(names) != 2 {
		t.Fatalf("Playlists() = %v, %v", names, err)
	}

	if err := m.SelectPlaylist(5); err != perr.ErrOutOfBounds {
		t.Errorf("SelectPlaylist(5) = %v, want ErrOutOfBounds", err)
	}
	if err := m.SelectPlaylist(1); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.TrackCount(); n != 1 {
		t.Errorf("TrackCount after select = %d, want 1", n)
	}
	// Selecting a playlist discards the current track.
	if _, err := m.CurrentTrack(); err != perr.ErrNoCurrentTrack {
		t.Errorf("CurrentTrack = %v, want ErrNoCurrentTrack", err)
	}
}

func TestMemory_PlayAndState(t *testing.T) {
	m := newTestMemory()

	if _, err := m.CurrentTrack(); err != perr.ErrNoCurrentTrack {
		t.Fatalf("fresh backend should have no current track, got %v", err)
	}

	if err := m.Play(); err != nil {
		t.Fatal(err)
	}
	tr, err := m.CurrentTrack()
	if err != nil || tr.Title != "one" {
		t.Fatalf("CurrentTrack = %v, %v", tr, err)
	}
	if st, _ := m.PlaybackState(); st != StatePlaying {
		t.Errorf("state = %v, want playing", st)
	}

	m.Pause()
	if st, _ := m.PlaybackState(); st != StatePaused {
		t.Errorf("state = %v, want paused", st)
	}
	// Play resumes without restarting the track.
	m.Play()
	if st, _ := m.PlaybackState(); st != StatePlaying {
		t.Errorf("state after resume = %v, want playing", st)
	}

	m.Stop()
	if st, _ := m.PlaybackState(); st != StateStopped {
		t.Errorf("state = %v, want stopped", st)
	}
	// Stop keeps the current-track reference.
	if tr, err := m.CurrentTrack(); err != nil || tr.Title != "one" {
		t.Errorf("CurrentTrack after stop = %v, %v", tr, err)
	}
}

func TestMemory_NextPreviousWrap(t *testing.T) {
	m := newTestMemory()
	m.PlayIndex(2)

	if err := m.Next(); err != nil {
		t.Fatal(err)
	}
	if tr, _ := m.CurrentTrack(); tr.Title != "one" {
		t.Errorf("Next from last should wrap, got %q", tr.Title)
	}

	if err := m.Previous(); err != nil {
		t.Fatal(err)
	}
	if tr, _ := m.CurrentTrack(); tr.Title != "three" {
		t.Errorf("Previous from first should wrap, got %q", tr.Title)
	}
}

func TestMemory_PlayIndexBounds(t *testing.T) {
	m := newTestMemory()
	if err := m.PlayIndex(-1); err != perr.ErrOutOfBounds {
		t.Errorf("PlayIndex(-1) = %v", err)
	}
	if err := m.PlayIndex(3); err != perr.ErrOutOfBounds {
		t.Errorf("PlayIndex(3) = %v", err)
	}
}

func TestMemory_SeekClamps(t *testing.T) {
	m := newTestMemory()
	m.PlayIndex(0) // 1 minute long

	m.SeekBy(30 * time.Second)
	if got := m.Position(); got != 30*time.Second {
		t.Errorf("position = %v", got)
	}
	m.SeekBy(5 * time.Minute)
	if got := m.Position(); got != time.Minute {
		t.Errorf("position should clamp to duration, got %v", got)
	}
	m.SeekBy(-10 * time.Minute)
	if got := m.Position(); got != 0 {
		t.Errorf("position should clamp to zero, got %v", got)
	}
}

func TestMemory_VolumeClamps(t *testing.T) {
	m := newTestMemory()
	m.SetVolumeDB(10)
	if v, _ := m.VolumeDB(); v != 0 {
		t.Errorf("volume should clamp to 0 dB, got %v", v)
	}
	m.SetVolumeDB(-200)
	if v, _ := m.VolumeDB(); v != -50 {
		t.Errorf("volume should clamp to -50 dB, got %v", v)
	}
}

func TestMemory_ResolveRef(t *testing.T) {
	m := newTestMemory()
	tracks, _ := m.Tracks()

	idx, err := m.ResolveRef(tracks[1].Ref)
	if err != nil || idx != 1 {
		t.Errorf("ResolveRef(%q) = %d, %v", tracks[1].Ref, idx, err)
	}
	if _, err := m.ResolveRef("00000000"); err != perr.ErrInvalidRef {
		t.Errorf("unknown ref error = %v, want ErrInvalidRef", err)
	}
	if _, err := m.ResolveRef("garbage"); err != perr.ErrInvalidRef {
		t.Errorf("garbage ref error = %v, want ErrInvalidRef", err)
	}
}

func TestMemory_QueueAndFlags(t *testing.T) {
	m := newTestMemory()

	if err := m.Enqueue(9); err != perr.ErrOutOfBounds {
		t.Errorf("Enqueue(9) = %v", err)
	}
	m.Enqueue(1)
	m.Enqueue(2)
	if q := m.Queue(); len(q) != 2 || q[0] != 1 || q[1] != 2 {
		t.Errorf("Queue = %v", q)
	}

	if v, _ := m.StopAfterCurrent(); v {
		t.Error("stop-after-current should default to false")
	}
	m.SetStopAfterCurrent(true)
	if v, _ := m.StopAfterCurrent(); !v {
		t.Error("SetStopAfterCurrent(true) not observed")
	}
}

func TestMemory_Events(t *testing.T) {
	m := newTestMemory()
	var events []Event
	m.SetEventSink(func(ev Event) { events = append(events, ev) })

	m.PlayIndex(1)
	m.SelectPlaylist(1)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != EventTrackChanged || events[0].Track == nil || events[0].Track.Title != "two" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Kind != EventPlaylistChanged {
		t.Errorf("event 1 = %+v", events[1])
	}
}

func TestMemory_Terminate(t *testing.T) {
	m := newTestMemory()
	if m.Terminated() {
		t.Fatal("fresh backend reports terminated")
	}
	m.Terminate()
	if !m.Terminated() {
		t.Error("Terminate not recorded")
	}
}
