package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CompletionNotifier receives the refreshed standings after a completion
// lands. Used to push the live leaderboard feed; failures are best-effort.
type CompletionNotifier interface {
	CompletionRecorded(rec CompletionRecord)
}

// Controller orchestrates session start/resume/complete transitions and
// enforces one active session per player. It never mutates score or health;
// those belong to the Engine.
type Controller struct {
	store  Store
	now    func() time.Time
	log    zerolog.Logger
	notify CompletionNotifier
}

func NewController(store Store, log zerolog.Logger) *Controller {
	return &Controller{store: store, now: func() time.Time { return time.Now().UTC() }, log: log}
}

// WithClock overrides the controller clock, used by tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// WithNotifier attaches a completion notifier.
func (c *Controller) WithNotifier(n CompletionNotifier) *Controller {
	c.notify = n
	return c
}

// Start returns the player's active session, creating one when none exists.
// The game is single-attempt: once a completion record is on file, starting
// fails permanently with ErrAlreadyCompleted.
func (c *Controller) Start(ctx context.Context, playerID string) (*Session, error) {
	rec, err := c.store.CompletionByPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("load completion record: %w", err)
	}
	if rec != nil && !rec.CanPlayAgain {
		return nil, ErrAlreadyCompleted
	}

	if existing, err := c.store.ActiveSessionByPlayer(ctx, playerID); err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	now := c.now()
	sess := &Session{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		Status:        StatusActive,
		Health:        InitialHealth,
		Score:         0,
		Difficulty:    DifficultyEasy,
		Speed:         BaseSpeed,
		TimeRemaining: SessionTimeLimit,
		StartedAt:     now,
		LastUpdatedAt: now,
	}
	err = c.store.CreateSession(ctx, sess)
	if errors.Is(err, ErrActiveSessionExists) {
		// Lost a concurrent start race; hand back the winner's session.
		winner, werr := c.store.ActiveSessionByPlayer(ctx, playerID)
		if werr != nil || winner == nil {
			return nil, fmt.Errorf("resolve concurrent start: %w", err)
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	start := Event{Action: ActionSessionStart, Timestamp: now}
	if err := c.store.UpdateSession(ctx, sess, []Event{start}); err != nil {
		return nil, fmt.Errorf("log session start: %w", err)
	}
	c.log.Info().Str("player_id", playerID).Str("session_id", sess.ID).Msg("session started")
	return sess, nil
}

// Complete marks the active session completed and writes the permanent
// completion record, permanently disabling replay for the player.
func (c *Controller) Complete(ctx context.Context, playerID string, final FinalResult) (*CompletionRecord, error) {
	sess, err := c.store.ActiveSessionByPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	if sess == nil {
		return nil, ErrNoActiveSession
	}

	now := c.now()
	sess.Status = StatusCompleted
	sess.CompletedAt = &now
	sess.LastUpdatedAt = now
	if err := c.store.UpdateSession(ctx, sess, nil); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	rec := &CompletionRecord{
		PlayerID:          playerID,
		FinalScore:        ClampScore(float64(final.Score)),
		FinalPortals:      ClampCounter(float64(final.Portals)),
		FinalTimeSurvived: final.TimeSurvived,
		CompletedAt:       now,
		CanPlayAgain:      false,
	}
	if rec.FinalTimeSurvived < 0 {
		rec.FinalTimeSurvived = 0
	}
	if err := c.store.UpsertCompletion(ctx, rec); err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	c.log.Info().
		Str("player_id", playerID).
		Str("session_id", sess.ID).
		Int("final_score", rec.FinalScore).
		Msg("game completed")
	if c.notify != nil {
		c.notify.CompletionRecorded(*rec)
	}
	return rec, nil
}

// GetActive returns the player's active session, or nil when none exists.
func (c *Controller) GetActive(ctx context.Context, playerID string) (*Session, error) {
	return c.store.ActiveSessionByPlayer(ctx, playerID)
}

// Status reports play eligibility for the client's resume-vs-fresh decision.
func (c *Controller) Status(ctx context.Context, playerID string) (PlayStatus, error) {
	rec, err := c.store.CompletionByPlayer(ctx, playerID)
	if err != nil {
		return PlayStatus{}, fmt.Errorf("load completion record: %w", err)
	}
	if rec == nil || rec.CanPlayAgain {
		return PlayStatus{CanPlay: true}, nil
	}
	completedAt := rec.CompletedAt
	return PlayStatus{CanPlay: false, CompletedAt: &completedAt}, nil
}

// History lists the player's past sessions without event logs.
func (c *Controller) History(ctx context.Context, playerID string) ([]SessionSummary, error) {
	return c.store.SessionsByPlayer(ctx, playerID)
}

// Detail returns one session including its event log. Sessions are only
// visible to their owning player.
func (c *Controller) Detail(ctx context.Context, playerID, sessionID string) (*Session, error) {
	sess, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PlayerID != playerID {
		return nil, ErrNotSessionOwner
	}
	events, err := c.store.SessionEvents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session events: %w", err)
	}
	sess.Events = events
	return sess, nil
}
