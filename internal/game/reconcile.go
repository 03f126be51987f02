package game

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Engine validates and commits client state deltas. Every mutation of an
// active session funnels through ApplyUpdate; lifecycle operations never
// touch score or health.
type Engine struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewEngine(store Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }, log: log}
}

// WithClock overrides the engine clock, used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ApplyUpdate sanitizes delta against the stored session and wall-clock time,
// commits the corrected fields, and returns the committed snapshot. The
// caller must treat the response as the new ground truth.
//
// Out-of-range values are corrected, never rejected; corrections that look
// like tampering are logged as suspicious activity and stay invisible to the
// player. The only hard failures are a missing session, a foreign session,
// and a delta without numeric health and score.
func (e *Engine) ApplyUpdate(ctx context.Context, playerID, sessionID string, delta StateDelta) (*Session, error) {
	if delta.Health == nil || delta.Score == nil {
		return nil, ErrInvalidPayload
	}
	if math.IsNaN(*delta.Health) || math.IsNaN(*delta.Score) {
		return nil, ErrInvalidPayload
	}

	sess, err := e.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.PlayerID != playerID {
		return nil, ErrNotSessionOwner
	}
	if sess.Status != StatusActive {
		return nil, ErrNoActiveSession
	}

	now := e.now()
	prev := *sess

	// Clamp everything to its domain before any rule runs.
	health := ClampHealth(*delta.Health)
	score := ClampScore(*delta.Score)
	if delta.PortalsCleared != nil {
		sess.PortalsCleared = maxInt(prev.PortalsCleared, ClampCounter(*delta.PortalsCleared))
	}
	if delta.BonusesCleared != nil {
		sess.BonusesCleared = maxInt(prev.BonusesCleared, ClampCounter(*delta.BonusesCleared))
	}
	if delta.ObstaclesHit != nil {
		sess.ObstaclesHit = maxInt(prev.ObstaclesHit, ClampCounter(*delta.ObstaclesHit))
	}
	if delta.Difficulty != "" {
		sess.Difficulty = NormalizeDifficulty(delta.Difficulty)
	}
	if delta.Speed != nil {
		sess.Speed = ClampSpeed(*delta.Speed)
	}
	if delta.TimeSurvived != nil && *delta.TimeSurvived > prev.TimeSurvived {
		sess.TimeSurvived = *delta.TimeSurvived
	}

	action, actionKnown := ParseUpdateAction(delta.Action)

	// Time-manipulation check: the countdown is re-derivable from the start
	// timestamp, so a reported value beyond expected+tolerance is replaced
	// with the server-computed one.
	if delta.TimeRemaining != nil {
		reported := ClampTimeRemaining(*delta.TimeRemaining)
		expected := math.Max(0, SessionTimeLimit-now.Sub(sess.StartedAt).Seconds())
		if reported > expected+TimeTolerance {
			e.suspicious(sess, "time_remaining", reported, expected)
			reported = math.Floor(expected)
		}
		sess.TimeRemaining = reported
	}

	// Score-increase-rate check: flag but accept. Transient absence can
	// legitimately bank score from passive time-based accrual, so rejection
	// would desync honest clients.
	if inc := score - prev.Score; inc > ScoreRateCeiling {
		e.suspicious(sess, "score", float64(score), float64(prev.Score))
	}
	if score < prev.Score && !penaltyAction(action) {
		score = prev.Score
	}
	sess.Score = score

	// Health may only rise via the bonus heal; any other increase is a
	// replay of stale or forged state.
	if health > prev.Health && action != ActionBonusCollected {
		e.suspicious(sess, "health", float64(health), float64(prev.Health))
		health = prev.Health
	}
	sess.Health = health

	sess.LastUpdatedAt = now

	var events []Event
	if actionKnown {
		events = append(events, Event{
			Action:    action,
			Timestamp: now,
			Payload: map[string]any{
				"health":        sess.Health,
				"score":         sess.Score,
				"timeRemaining": sess.TimeRemaining,
			},
		})
	}

	// Terminal check, health exhaustion first.
	if sess.Health <= 0 {
		events = append(events, Event{Action: ActionGameOver, Timestamp: now})
		sess.Status = StatusCompleted
		sess.CompletedAt = &now
	} else if sess.TimeRemaining <= 0 {
		events = append(events, Event{Action: ActionTimeOver, Timestamp: now})
		sess.Status = StatusCompleted
		sess.CompletedAt = &now
	}

	if err := e.store.UpdateSession(ctx, sess, events); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	sess.Events = append(sess.Events, events...)
	return sess, nil
}

func (e *Engine) suspicious(s *Session, field string, got, want float64) {
	e.log.Warn().
		Str("player_id", s.PlayerID).
		Str("session_id", s.ID).
		Str("field", field).
		Float64("got", got).
		Float64("want", want).
		Msg("suspicious state delta corrected")
}
