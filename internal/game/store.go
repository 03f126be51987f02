package game

import (
	"context"
	"errors"
)

var (
	ErrNoActiveSession     = errors.New("no active session")
	ErrSessionNotFound     = errors.New("session not found")
	ErrAlreadyCompleted    = errors.New("player already completed the game")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrNotSessionOwner     = errors.New("session belongs to another player")
	ErrActiveSessionExists = errors.New("an active session already exists for this player")
)

// Store is the persistent document store behind sessions and completion
// records. Implementations must make UpdateSession all-or-nothing per
// session document and enforce at most one active session per player
// (CreateSession returns ErrActiveSessionExists for the losing writer).
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	SessionByID(ctx context.Context, sessionID string) (*Session, error)
	ActiveSessionByPlayer(ctx context.Context, playerID string) (*Session, error)
	// UpdateSession persists the session fields and appends any events to
	// the session log in the same transaction.
	UpdateSession(ctx context.Context, s *Session, events []Event) error
	SessionsByPlayer(ctx context.Context, playerID string) ([]SessionSummary, error)
	SessionEvents(ctx context.Context, sessionID string) ([]Event, error)

	UpsertCompletion(ctx context.Context, rec *CompletionRecord) error
	CompletionByPlayer(ctx context.Context, playerID string) (*CompletionRecord, error)
	// TopCompletions returns completion records ordered by score desc,
	// portals desc, time survived desc. limit <= 0 means no limit.
	TopCompletions(ctx context.Context, limit int) ([]CompletionRecord, error)
}
