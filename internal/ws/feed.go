package ws

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog"

	"github.com/enigma-arcade/portalrun/internal/game"
)

const leaderboardRoom = "leaderboard"

// Feed pushes leaderboard refreshes to subscribed spectators whenever a
// completion lands. It is strictly read-only: gameplay state never moves
// over this channel.
type Feed struct {
	io        *socketio.Server
	projector *game.Projector
	log       zerolog.Logger
}

func NewFeed(projector *game.Projector, log zerolog.Logger) *Feed {
	io := socketio.NewServer(nil)
	f := &Feed{io: io, projector: projector, log: log}

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(nil)
		return nil
	})
	io.OnEvent("/", "subscribe_leaderboard", func(s socketio.Conn) {
		s.Join(leaderboardRoom)
	})
	io.OnEvent("/", "unsubscribe_leaderboard", func(s socketio.Conn) {
		s.Leave(leaderboardRoom)
	})
	io.OnError("/", func(s socketio.Conn, err error) {
		log.Debug().Err(err).Msg("socket error")
	})
	return f
}

// Mount attaches the socket.io endpoints to the router and starts serving.
// The returned server must be closed on shutdown.
func (f *Feed) Mount(r *gin.Engine) *socketio.Server {
	r.GET("/socket.io/*any", gin.WrapH(f.io))
	r.POST("/socket.io/*any", gin.WrapH(f.io))
	go func() {
		if err := f.io.Serve(); err != nil {
			f.log.Error().Err(err).Msg("socket server stopped")
		}
	}()
	return f.io
}

// CompletionRecorded implements game.CompletionNotifier. The broadcast is
// best-effort; a failed projection only drops one refresh.
func (f *Feed) CompletionRecorded(game.CompletionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := f.projector.Top(ctx, game.DefaultLeaderboardSize)
	if err != nil {
		f.log.Warn().Err(err).Msg("leaderboard refresh failed")
		return
	}
	f.io.BroadcastToRoom("/", leaderboardRoom, "leaderboard", entries)
}

var _ game.CompletionNotifier = (*Feed)(nil)
