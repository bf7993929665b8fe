package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"playmote/config"
	"playmote/internal/backend"
	perr "playmote/internal/errors"
	"playmote/internal/metrics"
	"playmote/util"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort: %v", err)
	}
	cfg := config.New()
	cfg.BindIP = "127.0.0.1"
	cfg.Port = port
	cfg.PollInterval = 20 * time.Millisecond
	return cfg
}

// startServer runs a server over a demo library and returns it with
// its backend.  Cleanup stops the server.
func startServer(t *testing.T) (*Server, *backend.Memory) {
	t.Helper()
	cfg := testConfig(t)
	be := backend.DemoLibrary()
	srv, err := New(cfg, be, util.NewLogger(0), metrics.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, be
}

// dialServer connects and consumes the welcome banner.
func dialServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	banner := readReply(t, conn)
	if !strings.Contains(banner, `Type "h"`) {
		t.Fatalf("welcome banner = %q", banner)
	}
	return conn
}

// readReply reads whatever the server sends within a short window.
func readReply(t *testing.T, conn net.Conn) string {
	t.Helper()
	var out strings.Builder
	buf := make([]byte, 4096)
	for {
		conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
		n, err := conn.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			return out.String()
		}
	}
}

func send(t *testing.T, conn net.Conn, line string) string {
	t.Helper()
	if _, err := conn.Write([]byte(line)); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	return readReply(t, conn)
}

func TestHelpListsEveryCommand(t *testing.T) {
	srv, _ := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "h\n")
	for _, name := range []string{"h", "pl", "tl", "tla", "tc", "pp", "ps", "pa", "p",
		"r", "sac", "s", "pv", "nt", "vu", "vd", "sf", "sb", "/",
		"ntfy-plchanged", "ntfy-nowplaying", "aps", "exit"} {
		if !strings.Contains(out, name+"\n\t") {
			t.Errorf("help output missing %q entry", name)
		}
	}
}

func TestUnknownCommandReply(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "bogus\n")
	if out != "\nPlease type a valid command\n\n" {
		t.Errorf("unknown reply = %q", out)
	}

	// A bare newline is an empty command and gets the same reply.
	out = send(t, conn, "\n")
	if out != "\nPlease type a valid command\n\n" {
		t.Errorf("empty-line reply = %q", out)
	}

	if st, _ := be.PlaybackState(); st != backend.StateStopped {
		t.Errorf("unknown command changed playback state to %v", st)
	}
}

func TestPlaylistsAndSelection(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "pl\n")
	if !strings.Contains(out, "Playlist 1: ") || !strings.Contains(out, "(*)") {
		t.Errorf("pl output = %q", out)
	}

	out = send(t, conn, "pl 99\n")
	if !strings.Contains(out, "Playlist index out of bounds") {
		t.Errorf("pl 99 = %q", out)
	}

	if out = send(t, conn, "pl 2\n"); out != "" {
		t.Errorf("pl 2 replied %q", out)
	}
	if curr, _ := be.CurrentPlaylist(); curr != 1 {
		t.Errorf("current playlist = %d, want 1", curr)
	}
}

func TestTracklistSentinels(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "tl\n")
	if !strings.HasPrefix(out, "TRACKLIST_BEGIN\n") || !strings.HasSuffix(out, "TRACKLIST_END\n") {
		t.Fatalf("tl framing wrong: %q", out)
	}
	n, _ := be.TrackCount()
	if got := strings.Count(out, "("); got < n {
		t.Errorf("tl printed %d index prefixes, want at least %d", got, n)
	}

	out = send(t, conn, "tla\n")
	tracks, _ := be.Tracks()
	if !strings.Contains(out, tracks[0].Ref) {
		t.Errorf("tla output missing ref %q: %q", tracks[0].Ref, out)
	}
}

func TestPlaybackCommands(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	send(t, conn, "p 2\n")
	if st, _ := be.PlaybackState(); st != backend.StatePlaying {
		t.Fatalf("state after p 2 = %v", st)
	}
	tr, _ := be.CurrentTrack()
	tracks, _ := be.Tracks()
	if tr == nil || tr.Ref != tracks[1].Ref {
		t.Errorf("p 2 started %v, want track 2", tr)
	}

	send(t, conn, "p\n")
	if st, _ := be.PlaybackState(); st != backend.StatePaused {
		t.Errorf("p did not pause: %v", st)
	}
	send(t, conn, "p\n")
	if st, _ := be.PlaybackState(); st != backend.StatePlaying {
		t.Errorf("p did not resume: %v", st)
	}

	send(t, conn, "s\n")
	if st, _ := be.PlaybackState(); st != backend.StateStopped {
		t.Errorf("s did not stop: %v", st)
	}

	out := send(t, conn, "p 999\n")
	if !strings.Contains(out, "Track index out of bounds") {
		t.Errorf("p 999 = %q", out)
	}

	out = send(t, conn, "tc\n")
	if !strings.Contains(out, tr.Title) {
		t.Errorf("tc after stop = %q, want it to keep %q", out, tr.Title)
	}
}

func TestVolumeCommands(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	send(t, conn, "vd\n")
	if db, _ := be.VolumeDB(); db != -5 {
		t.Errorf("volume after vd = %v, want -5", db)
	}
	send(t, conn, "vd 10\n")
	if db, _ := be.VolumeDB(); db != -15 {
		t.Errorf("volume after vd 10 = %v, want -15", db)
	}
	send(t, conn, "vu 100\n")
	if db, _ := be.VolumeDB(); db != 0 {
		t.Errorf("volume after vu 100 = %v, want clamp to 0", db)
	}
}

func TestVolumeAndSeekRejectGarbage(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "vu abc\n")
	if !strings.Contains(out, "usage: vu [step]") {
		t.Errorf("vu abc = %q, want usage text", out)
	}
	if db, _ := be.VolumeDB(); db != 0 {
		t.Errorf("vu abc moved volume to %v", db)
	}

	if out = send(t, conn, "vd 5x\n"); !strings.Contains(out, "usage: vd [step]") {
		t.Errorf("vd 5x = %q, want usage text", out)
	}

	send(t, conn, "p 1\n")
	out = send(t, conn, "sf abc\n")
	if !strings.Contains(out, "usage: sf [step]") {
		t.Errorf("sf abc = %q, want usage text", out)
	}
	if pos := be.Position(); pos != 0 {
		t.Errorf("sf abc moved position to %v", pos)
	}

	if out = send(t, conn, "sb 0\n"); !strings.Contains(out, "usage: sb [step]") {
		t.Errorf("sb 0 = %q, want usage text", out)
	}
}

func TestSearchAndPlaySearch(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "/ nosuchtrackanywhere\n")
	if !strings.Contains(out, "(nothing was found)") {
		t.Errorf("empty search = %q", out)
	}

	tracks, _ := be.Tracks()
	out = send(t, conn, "/ "+tracks[0].Title+"\n")
	if !strings.Contains(out, "(1)\t") || !strings.Contains(out, tracks[0].Title) {
		t.Errorf("search output = %q", out)
	}

	out = send(t, conn, "ps 1\n")
	if !strings.Contains(out, "Playing ") {
		t.Errorf("ps 1 = %q", out)
	}
	if st, _ := be.PlaybackState(); st != backend.StatePlaying {
		t.Errorf("ps 1 did not start playback")
	}

	out = send(t, conn, "ps 99\n")
	if !strings.Contains(out, "Invalid search index") {
		t.Errorf("ps 99 = %q", out)
	}
	if out = send(t, conn, "ps\n"); !strings.Contains(out, "usage: ps idx") {
		t.Errorf("ps with no arg = %q", out)
	}
}

func TestPlayByReference(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	tracks, _ := be.Tracks()
	send(t, conn, "pa "+tracks[2].Ref+"\n")
	tr, _ := be.CurrentTrack()
	if tr == nil || tr.Ref != tracks[2].Ref {
		t.Errorf("pa started %v, want %v", tr, tracks[2])
	}

	out := send(t, conn, "pa 0\n")
	if !strings.Contains(out, "Invalid track reference") {
		t.Errorf("pa 0 = %q", out)
	}
	out = send(t, conn, "pa zzz\n")
	if !strings.Contains(out, "Invalid track reference") {
		t.Errorf("pa zzz = %q", out)
	}
}

func TestEnqueueFromSearch(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	tracks, _ := be.Tracks()
	send(t, conn, "/ "+tracks[1].Title+"\n")
	if out := send(t, conn, "aps 1\n"); out != "" {
		t.Errorf("aps 1 replied %q", out)
	}
	if q := be.Queue(); len(q) != 1 || q[0] != 1 {
		t.Errorf("queue = %v, want [1]", q)
	}
}

func TestNotificationToggles(t *testing.T) {
	srv, _ := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "ntfy-plchanged\n")
	if out != "\nNotification set to true.\n\n" {
		t.Errorf("toggle on = %q", out)
	}
	out = send(t, conn, "ntfy-plchanged\n")
	if out != "\nNotification set to false.\n\n" {
		t.Errorf("toggle off = %q", out)
	}

	if out = send(t, conn, "ntfy-nowplaying maybe\n"); !strings.Contains(out, "usage: ntfy-nowplaying") {
		t.Errorf("bad bool arg = %q", out)
	}
	if out = send(t, conn, "ntfy-nowplaying true\n"); out != "" {
		t.Errorf("ntfy-nowplaying true replied %q", out)
	}
}

func TestNowPlayingNotification(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	send(t, conn, "ntfy-nowplaying true\n")
	be.PlayIndex(0)
	tracks, _ := be.Tracks()

	out := readReply(t, conn)
	want := "Now playing " + tracks[0].String() + "\n\n"
	if out != want {
		t.Errorf("notification = %q, want %q", out, want)
	}
}

func TestPlaylistChangedNotification(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	send(t, conn, "ntfy-plchanged\n")
	be.SelectPlaylist(1)

	out := readReply(t, conn)
	if !strings.Contains(out, "playlist content changed") {
		t.Errorf("notification = %q", out)
	}
}

// unsupportedBackend wraps the demo library but refuses playlist-level
// operations, like a player whose control surface has no playlist API.
type unsupportedBackend struct{ backend.Backend }

func (unsupportedBackend) Playlists() ([]string, error)     { return nil, perr.ErrNotSupported }
func (unsupportedBackend) Tracks() ([]backend.Track, error) { return nil, perr.ErrNotSupported }
func (unsupportedBackend) Search(string) ([]int, error)     { return nil, perr.ErrNotSupported }

func TestUnsupportedOperationReply(t *testing.T) {
	cfg := testConfig(t)
	be := unsupportedBackend{backend.DemoLibrary()}
	srv, err := New(cfg, be, util.NewLogger(0), metrics.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	conn := dialServer(t, srv)

	for _, cmd := range []string{"tl\n", "tla\n", "pl\n", "/ query\n"} {
		out := send(t, conn, cmd)
		if out != "\nNot supported by this player\n\n" {
			t.Errorf("%q reply = %q, want the not-supported message", strings.TrimSpace(cmd), out)
		}
	}
}

func TestCurrentTrackFollowsEvents(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "tc\n")
	if !strings.Contains(out, "No current track") {
		t.Errorf("tc before playback = %q", out)
	}

	// Track changes land through the event sink, not a tc-time query.
	be.PlayIndex(2)
	tracks, _ := be.Tracks()
	out = send(t, conn, "tc\n")
	if !strings.Contains(out, tracks[2].Title) {
		t.Errorf("tc after event = %q, want %q", out, tracks[2].Title)
	}
}

func TestEventStreamMatchesSessionText(t *testing.T) {
	srv, be := startServer(t)
	ch, cancel := srv.Subscribe()
	defer cancel()

	be.PlayIndex(0)
	tracks, _ := be.Tracks()
	select {
	case line := <-ch:
		if want := "Now playing " + tracks[0].String(); line != want {
			t.Errorf("stream line = %q, want %q", line, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no track-changed line on the stream")
	}

	be.SelectPlaylist(1)
	select {
	case line := <-ch:
		if !strings.HasPrefix(line, "The current playlist content changed") {
			t.Errorf("stream line = %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("no playlist-changed line on the stream")
	}
}

func TestMultipleCommandsPerRead(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	out := send(t, conn, "vd\nvd\n")
	if out != "" {
		t.Errorf("vd;vd replied %q", out)
	}
	if db, _ := be.VolumeDB(); db != -10 {
		t.Errorf("volume = %v, want -10 after two steps", db)
	}
}

func TestExitTerminatesBackend(t *testing.T) {
	srv, be := startServer(t)
	conn := dialServer(t, srv)

	send(t, conn, "exit\n")
	if !be.Terminated() {
		t.Error("exit did not terminate the backend")
	}
	select {
	case <-srv.Terminated():
	case <-time.After(time.Second):
		t.Error("Terminated channel did not close")
	}
}

func TestSecondClientWaitsForFirst(t *testing.T) {
	srv, _ := startServer(t)
	conn := dialServer(t, srv)

	// The second connection completes the TCP handshake via the
	// backlog but gets no banner until the first session ends.
	conn2, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer conn2.Close()

	if banner := readReply(t, conn2); banner != "" {
		t.Fatalf("second client served while first active: %q", banner)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	var banner string
	for time.Now().Before(deadline) {
		banner = readReply(t, conn2)
		if banner != "" {
			break
		}
	}
	if !strings.Contains(banner, "Welcome") {
		t.Fatalf("second client banner after first left = %q", banner)
	}
}

func TestStopAfterFailedStart(t *testing.T) {
	cfg := testConfig(t)
	// Occupy the port so the bind fails.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer ln.Close()

	srv, err := New(cfg, backend.NewMemory(), util.NewLogger(0), metrics.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("Start on an occupied port should fail")
	}

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung after failed Start")
	}
}

func TestStopClosesActiveSession(t *testing.T) {
	srv, _ := startServer(t)
	conn := dialServer(t, srv)

	srv.Stop()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected read error after Stop")
	}
}
