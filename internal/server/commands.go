package server

import (
	"context"
	"strconv"
	"time"

	"playmote/internal/backend"
	"playmote/internal/errors"
	"playmote/internal/protocol"
	"playmote/internal/session"
)

// buildRegistry assembles the command table.  Registration order is
// the order help output lists the commands in.
func (s *Server) buildRegistry() (*protocol.Registry, error) {
	reg := protocol.NewRegistry()

	table := []struct {
		name string
		help string
		h    protocol.Handler
	}{
		{"h", "prints this message.", s.cmdHelp},
		{"pl", "usage: pl [idx]. If passed with no arguments, prints all playlists (" +
			"the current playlist is marked with (*)). " +
			"If passed with an index number, sets the current playlist to the " +
			"playlist with index idx.", s.cmdPlaylists},
		{"tl", "prints all the tracks in the current playlist.", s.cmdTracklist},
		{"tla", "like tl, but prepends each track by its reference.", s.cmdTracklistRef},
		{"tc", "prints the current track.", s.cmdTrackCurr},
		{"pp", "plays current track.", s.cmdPlay},
		{"ps", "usage: ps idx. Plays a track by its index in the search list.", s.cmdPlaySearch},
		{"pa", "usage: pa ref. Plays a track by its reference as printed by tla.", s.cmdPlayRef},
		{"p", "Usage: p [idx]. If passed with no arguments, pauses/resumes playback. " +
			"If passed with an index, plays the track at index idx in the current " +
			"playlist.", s.cmdPlayResume},
		{"r", "plays random track.", s.cmdRandom},
		{"sac", "stops playback after current track.", s.cmdStopAfterCurrent},
		{"s", "stops playback.", s.cmdStop},
		{"pv", "plays previous track.", s.cmdPrevious},
		{"nt", "plays next track.", s.cmdNext},
		{"vu", "usage: vu [step]. If no argument is passed, " +
			"increases volume by a default step of 5. If a number is passed, increases volume " +
			"by that amount.", s.cmdVolumeUp},
		{"vd", "usage: vd [step]. If no argument is passed, " +
			"decreases volume by a default step of 5. If a number is passed, decreases volume " +
			"by that amount.", s.cmdVolumeDown},
		{"sf", "usage: sf [step]. Seeks forward by step seconds (default 5).", s.cmdSeekForward},
		{"sb", "usage: sb [step]. Seeks backward by step seconds (default 5).", s.cmdSeekBackward},
		{"/", "usage: / str. Searches a string in the current " +
			"playlist and returns a list of matching tracks. The matched tracks can be played by using their index " +
			"number with the ps command.", s.cmdSearch},
		{"ntfy-plchanged", "Notifies when the current playlist has changed (meaning you'll probably " +
			"want to get the tracklist again).", s.cmdNotifyPlaylistChanged},
		{"ntfy-nowplaying", "usage: ntfy-nowplaying true/false. Sets whether to notify when a new track " +
			"starts to play. Default: false.", s.cmdNotifyNowPlaying},
		{"aps", "usage: aps idx. Adds a searched track to the playback queue.", s.cmdAddSearchQueue},
		{"exit", "terminates the music player.", s.cmdExit},
	}

	for _, c := range table {
		if err := reg.Register(c.name, c.help, c.h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// atoiPrefix converts the leading integer of s, ignoring whatever
// follows it.  Garbage with no leading digits yields 0, which every
// caller treats as out of range.
func atoiPrefix(s string) int {
	i, n, sign := 0, 0, 1
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		if s[i] == '-' {
			sign = -1
		}
		i++
	}
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	return sign * n
}

// printHelp writes a command's own help text, used when a required
// argument is missing or malformed.
func (s *Server) printHelp(sess *session.Session, name string) {
	sess.Newline()
	sess.Print(s.reg.Help(name))
	sess.Newline()
}

func (s *Server) cmdHelp(ctx context.Context, sess *session.Session, arg string) error {
	sess.Newline()
	for _, c := range s.reg.Commands() {
		sess.Print(c.Name + "\n\t" + c.Help + "\n")
	}
	sess.Newline()
	return nil
}

func (s *Server) cmdPlaylists(ctx context.Context, sess *session.Session, arg string) error {
	names, err := s.be.Playlists()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		sess.Print("\nNo playlists\n\n")
		return nil
	}

	if arg != "" {
		idx := atoiPrefix(arg)
		if idx < 1 || idx > len(names) {
			sess.Print("\nPlaylist index out of bounds\n\n")
			return nil
		}
		return s.be.SelectPlaylist(idx - 1)
	}

	curr, err := s.be.CurrentPlaylist()
	if err != nil {
		curr = -1
	}
	for i, name := range names {
		sess.Printf("\nPlaylist %d: %s", i+1, name)
		if i == curr {
			sess.Print(" (*)")
		}
		sess.Newline()
	}
	sess.Newline()
	return nil
}

func (s *Server) cmdTracklist(ctx context.Context, sess *session.Session, arg string) error {
	return s.printTracklist(sess, false)
}

func (s *Server) cmdTracklistRef(ctx context.Context, sess *session.Session, arg string) error {
	return s.printTracklist(sess, true)
}

func (s *Server) printTracklist(sess *session.Session, withRef bool) error {
	tracks, err := s.be.Tracks()
	if err != nil {
		if errors.Is(err, errors.ErrNoPlaylist) {
			return nil
		}
		return err
	}
	sess.PrintTracklist(tracks, withRef)
	return nil
}

// cmdTrackCurr prints the track reference the event sink maintains, so
// tc stays cheap and consistent with the notifications the client saw.
func (s *Server) cmdTrackCurr(ctx context.Context, sess *session.Session, arg string) error {
	tr := s.currentTrack.Load()
	if tr == nil {
		sess.Print("\nNo current track\n\n")
		return nil
	}
	sess.Newline()
	sess.PrintTrack(*tr, false)
	sess.Newline()
	return nil
}

func (s *Server) cmdPlay(ctx context.Context, sess *session.Session, arg string) error {
	return s.be.Play()
}

func (s *Server) cmdPlaySearch(ctx context.Context, sess *session.Session, arg string) error {
	if arg == "" {
		s.printHelp(sess, "ps")
		return nil
	}
	pos := atoiPrefix(arg)
	if pos == 0 {
		sess.Print("\nInvalid search index\n\n")
		return nil
	}
	idx, ok := s.searchResult(pos)
	if !ok {
		sess.Print("\nInvalid search index\n\n")
		return nil
	}

	tracks, err := s.be.Tracks()
	if err == nil && idx < len(tracks) {
		sess.Print("\nPlaying ")
		sess.PrintTrack(tracks[idx], false)
		sess.Newline()
	}
	return s.be.PlayIndex(idx)
}

func (s *Server) cmdPlayRef(ctx context.Context, sess *session.Session, arg string) error {
	if arg == "" {
		s.printHelp(sess, "pa")
		return nil
	}
	idx, err := s.be.ResolveRef(arg)
	if err != nil {
		sess.Print("\nInvalid track reference\n\n")
		return nil
	}
	return s.be.PlayIndex(idx)
}

func (s *Server) cmdPlayResume(ctx context.Context, sess *session.Session, arg string) error {
	if arg != "" {
		idx := atoiPrefix(arg)
		if err := s.be.PlayIndex(idx - 1); err != nil {
			if errors.Is(err, errors.ErrOutOfBounds) {
				sess.Print("\nTrack index out of bounds\n\n")
				return nil
			}
			return err
		}
		return nil
	}

	state, err := s.be.PlaybackState()
	if err != nil {
		return err
	}
	if state == backend.StatePlaying {
		return s.be.Pause()
	}
	return s.be.Play()
}

func (s *Server) cmdRandom(ctx context.Context, sess *session.Session, arg string) error {
	return s.be.PlayRandom()
}

func (s *Server) cmdStopAfterCurrent(ctx context.Context, sess *session.Session, arg string) error {
	v, err := s.be.StopAfterCurrent()
	if err != nil {
		return err
	}
	if err := s.be.SetStopAfterCurrent(!v); err != nil {
		return err
	}
	sess.Printf("\nStop after current set to %t.\n\n", !v)
	return nil
}

func (s *Server) cmdStop(ctx context.Context, sess *session.Session, arg string) error {
	return s.be.Stop()
}

func (s *Server) cmdPrevious(ctx context.Context, sess *session.Session, arg string) error {
	return s.be.Previous()
}

func (s *Server) cmdNext(ctx context.Context, sess *session.Session, arg string) error {
	return s.be.Next()
}

func (s *Server) cmdVolumeUp(ctx context.Context, sess *session.Session, arg string) error {
	return s.adjustVolume(sess, "vu", arg, 1)
}

func (s *Server) cmdVolumeDown(ctx context.Context, sess *session.Session, arg string) error {
	return s.adjustVolume(sess, "vd", arg, -1)
}

// adjustVolume moves the volume by the given or default step.  A
// non-numeric step gets the command's usage text, never a silent step
// of zero.
func (s *Server) adjustVolume(sess *session.Session, name, arg string, dir float64) error {
	step := s.cfg.VolumeStepDB
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			s.printHelp(sess, name)
			return nil
		}
		step = float64(n)
	}
	db, err := s.be.VolumeDB()
	if err != nil {
		return err
	}
	return s.be.SetVolumeDB(db + dir*step)
}

func (s *Server) cmdSeekForward(ctx context.Context, sess *session.Session, arg string) error {
	step, ok := s.seekStep(arg)
	if !ok {
		s.printHelp(sess, "sf")
		return nil
	}
	return s.be.SeekBy(step)
}

func (s *Server) cmdSeekBackward(ctx context.Context, sess *session.Session, arg string) error {
	step, ok := s.seekStep(arg)
	if !ok {
		s.printHelp(sess, "sb")
		return nil
	}
	return s.be.SeekBy(-step)
}

// seekStep returns the configured step for an empty argument and false
// for a non-numeric or non-positive one.
func (s *Server) seekStep(arg string) (time.Duration, bool) {
	if arg == "" {
		return s.cfg.SeekStep, true
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func (s *Server) cmdSearch(ctx context.Context, sess *session.Session, arg string) error {
	if arg == "" {
		s.printHelp(sess, "/")
		return nil
	}

	idxs, err := s.be.Search(arg)
	if err != nil {
		if errors.Is(err, errors.ErrNoPlaylist) {
			return nil
		}
		return err
	}
	s.setLastSearch(idxs)

	tracks, err := s.be.Tracks()
	if err != nil {
		return err
	}

	sess.Newline()
	for i, idx := range idxs {
		if idx >= len(tracks) {
			continue
		}
		sess.Printf("(%d)\t", i+1)
		sess.PrintTrack(tracks[idx], false)
	}
	if len(idxs) == 0 {
		sess.Print("(nothing was found)\n\n")
	} else {
		sess.Newline()
	}
	return nil
}

func (s *Server) cmdNotifyPlaylistChanged(ctx context.Context, sess *session.Session, arg string) error {
	v := !s.notifyPlaylistChanged.Load()
	s.notifyPlaylistChanged.Store(v)
	sess.Printf("\nNotification set to %t.\n\n", v)
	return nil
}

func (s *Server) cmdNotifyNowPlaying(ctx context.Context, sess *session.Session, arg string) error {
	switch arg {
	case "true":
		s.notifyNowPlaying.Store(true)
		s.log.Debug("now playing notification set to true")
	case "false":
		s.notifyNowPlaying.Store(false)
		s.log.Debug("now playing notification set to false")
	default:
		s.printHelp(sess, "ntfy-nowplaying")
	}
	return nil
}

func (s *Server) cmdAddSearchQueue(ctx context.Context, sess *session.Session, arg string) error {
	if arg == "" {
		s.printHelp(sess, "aps")
		return nil
	}
	pos := atoiPrefix(arg)
	if pos == 0 {
		sess.Print("\nInvalid search index\n\n")
		return nil
	}
	idx, ok := s.searchResult(pos)
	if !ok {
		sess.Print("\nInvalid search index\n\n")
		return nil
	}
	return s.be.Enqueue(idx)
}

func (s *Server) cmdExit(ctx context.Context, sess *session.Session, arg string) error {
	err := s.be.Terminate()
	s.markTerminated()
	return err
}
