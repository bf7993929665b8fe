// Package httpapi exposes a read-only observation surface over HTTP:
// health, playback status, server counters, and a websocket stream of
// playback notifications.  It never mutates the backend; control stays
// on the TCP protocol.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"playmote/internal/server"
	"playmote/util"
)

// API serves the observation endpoints for one control server.
type API struct {
	srv    *server.Server
	log    *util.Logger
	engine *gin.Engine
}

// New builds the router.  Gin's own logging middleware is skipped; the
// process logger covers request diagnostics.
func New(srv *server.Server, logger *util.Logger) *API {
	gin.SetMode(gin.ReleaseMode)

	a := &API{
		srv: srv,
		log: logger.WithTag("http"),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", a.health)
	r.GET("/status", a.status)
	r.GET("/metrics", a.metrics)
	r.GET("/events", a.events)
	a.engine = r
	return a
}

// Handler exposes the router, mainly for tests.
func (a *API) Handler() http.Handler { return a.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:    addr,
		Handler: a.engine,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("observation API on %s", addr)
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(sctx)
	}
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusReply is the /status payload.
type statusReply struct {
	State        string  `json:"state"`
	Track        string  `json:"track,omitempty"`
	Playlist     int     `json:"playlist"`
	Playlists    int     `json:"playlists"`
	TrackCount   int     `json:"track_count"`
	VolumeDB     float64 `json:"volume_db"`
	StopAfterCur bool    `json:"stop_after_current"`
}

func (a *API) status(c *gin.Context) {
	be := a.srv.Backend()

	reply := statusReply{Playlist: -1}

	if st, err := be.PlaybackState(); err == nil {
		reply.State = st.String()
	}
	if tr, err := be.CurrentTrack(); err == nil && tr != nil {
		reply.Track = tr.String()
	}
	if idx, err := be.CurrentPlaylist(); err == nil {
		reply.Playlist = idx + 1
	}
	if names, err := be.Playlists(); err == nil {
		reply.Playlists = len(names)
	}
	if n, err := be.TrackCount(); err == nil {
		reply.TrackCount = n
	}
	if db, err := be.VolumeDB(); err == nil {
		reply.VolumeDB = db
	}
	if v, err := be.StopAfterCurrent(); err == nil {
		reply.StopAfterCur = v
	}

	c.JSON(http.StatusOK, reply)
}

func (a *API) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, a.srv.Metrics().Snap())
}

// events upgrades to a websocket and relays notification lines as text
// messages until the client leaves or the server stops.
func (a *API) events(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Debug("websocket accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, cancel := a.srv.Subscribe()
	defer cancel()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(wctx, websocket.MessageText, []byte(line))
			wcancel()
			if err != nil {
				a.log.Debug("websocket write: %v", err)
				return
			}
		}
	}
}
