package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/enigma-arcade/portalrun/internal/game"
)

// Deps wires the domain services behind the HTTP surface.
type Deps struct {
	Controller *game.Controller
	Engine     *game.Engine
	Projector  *game.Projector

	JWTSecret     []byte
	UpdatesPerMin int
	UpdateBurst   int
	Log           zerolog.Logger
}

// Register mounts the game API on the router.
func Register(r *gin.Engine, d Deps) {
	if d.UpdatesPerMin <= 0 {
		d.UpdatesPerMin = 120
	}
	if d.UpdateBurst <= 0 {
		d.UpdateBurst = 20
	}
	api := api{d: d}
	limiter := newRateLimiter(d.UpdatesPerMin, d.UpdateBurst)

	r.GET("/api/game/leaderboard", api.leaderboard)

	auth := r.Group("/api", RequireAuth(d.JWTSecret))
	auth.POST("/session/start", api.startSession)
	auth.GET("/session/active", api.activeSession)
	auth.GET("/session/history", api.sessionHistory)
	auth.GET("/session/:id", api.sessionDetail)
	auth.POST("/session/:id/update", RateLimit(limiter), api.pushUpdate)
	auth.POST("/game/complete", api.completeGame)
	auth.GET("/game/status", api.gameStatus)
}

type api struct {
	d Deps
}

func (a api) startSession(c *gin.Context) {
	sess, err := a.d.Controller.Start(c.Request.Context(), playerFrom(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (a api) activeSession(c *gin.Context) {
	sess, err := a.d.Controller.GetActive(c.Request.Context(), playerFrom(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (a api) pushUpdate(c *gin.Context) {
	var delta game.StateDelta
	if err := c.BindJSON(&delta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	sess, err := a.d.Engine.ApplyUpdate(c.Request.Context(), playerFrom(c), c.Param("id"), delta)
	if err != nil {
		a.fail(c, err)
		return
	}
	// The committed snapshot is the new ground truth for the client.
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (a api) completeGame(c *gin.Context) {
	var final game.FinalResult
	if err := c.BindJSON(&final); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	rec, err := a.d.Controller.Complete(c.Request.Context(), playerFrom(c), final)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completion": rec})
}

func (a api) gameStatus(c *gin.Context) {
	status, err := a.d.Controller.Status(c.Request.Context(), playerFrom(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a api) sessionHistory(c *gin.Context) {
	sessions, err := a.d.Controller.History(c.Request.Context(), playerFrom(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []game.SessionSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (a api) sessionDetail(c *gin.Context) {
	sess, err := a.d.Controller.Detail(c.Request.Context(), playerFrom(c), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (a api) leaderboard(c *gin.Context) {
	entries, err := a.d.Projector.Top(c.Request.Context(), game.DefaultLeaderboardSize)
	if err != nil {
		a.fail(c, err)
		return
	}
	if entries == nil {
		entries = []game.LeaderboardEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "totalPlayers": len(entries)})
}

// fail maps domain errors onto the response taxonomy: validation 400,
// missing preconditions 404, permanent denials 403, everything else a
// generic 500 with the cause kept out of the body.
func (a api) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, game.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
	case errors.Is(err, game.ErrNoActiveSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_active_session"})
	case errors.Is(err, game.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
	case errors.Is(err, game.ErrAlreadyCompleted):
		c.JSON(http.StatusForbidden, gin.H{"error": "already_completed"})
	case errors.Is(err, game.ErrNotSessionOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		a.d.Log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
	}
}
