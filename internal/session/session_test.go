package session

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"playmote/internal/backend"
	"playmote/internal/metrics"
	"playmote/util"
)

func newPipeSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	near, far := net.Pipe()
	t.Cleanup(func() {
		near.Close()
		far.Close()
	})
	return New(near, util.NewLogger(0), nil), far
}

func drain(conn net.Conn, d time.Duration) string {
	var sb strings.Builder
	buf := make([]byte, 4096)
	deadline := time.Now().Add(d)
	for {
		conn.SetReadDeadline(deadline)
		n, err := conn.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			return sb.String()
		}
	}
}

func TestSession_PrintTracklist(t *testing.T) {
	sess, far := newPipeSession(t)

	tracks := []backend.Track{
		{Ref: "0000000a", Artist: "Tool", Album: "Lateralus", Title: "Schism", Number: "05", Duration: 6*time.Minute + 48*time.Second},
		{Ref: "0000000b", Artist: "Brian Eno", Album: "Ambient 1", Title: "1/1", Number: "01", Duration: 17*time.Minute + 43*time.Second},
	}

	done := make(chan string, 1)
	go func() { done <- drain(far, 500*time.Millisecond) }()

	if n := sess.PrintTracklist(tracks, false); n != 2 {
		t.Errorf("PrintTracklist returned %d, want 2", n)
	}

	out := <-done
	want := TracklistBegin +
		"(1) [Tool - Lateralus] 05 - Schism (6:48)\n" +
		"(2) [Brian Eno - Ambient 1] 01 - 1/1 (17:43)\n" +
		TracklistEnd
	if out != want {
		t.Errorf("tracklist output:\n%q\nwant:\n%q", out, want)
	}
}

func TestSession_PrintTrackWithRef(t *testing.T) {
	sess, far := newPipeSession(t)

	done := make(chan string, 1)
	go func() { done <- drain(far, 500*time.Millisecond) }()

	sess.PrintTrack(backend.Track{Ref: "00000001", Artist: "A", Album: "B", Title: "C", Number: "01", Duration: time.Minute}, true)

	out := <-done
	if !strings.HasPrefix(out, "00000001 [A - B]") {
		t.Errorf("ref not prepended: %q", out)
	}
}

func TestSession_ConcurrentWritesDoNotInterleave(t *testing.T) {
	sess, far := newPipeSession(t)

	done := make(chan string, 1)
	go func() { done <- drain(far, time.Second) }()

	// Two writers hammering the same session; every message must come
	// out whole.
	const msgA = "aaaa-aaaa-aaaa\n"
	const msgB = "bbbb-bbbb-bbbb\n"
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		msg := msgA
		if i == 1 {
			msg = msgB
		}
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				sess.Print(msg)
			}
		}()
	}
	wg.Wait()
	sess.Close()

	out := <-done
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != strings.TrimSpace(msgA) && line != strings.TrimSpace(msgB) {
			t.Fatalf("interleaved write detected: %q", line)
		}
	}
}

func TestSession_BytesSentMetric(t *testing.T) {
	near, far := net.Pipe()
	defer near.Close()
	defer far.Close()

	m := metrics.New()
	sess := New(near, util.NewLogger(0), m)

	go drain(far, 500*time.Millisecond)
	sess.Print("hello\n")

	if got := m.TotalBytesOut(); got != 6 {
		t.Errorf("TotalBytesOut = %d, want 6", got)
	}
}
