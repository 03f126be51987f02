package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/enigma-arcade/portalrun/internal/game"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	player_id        TEXT NOT NULL,
	status           TEXT NOT NULL,
	health           INTEGER NOT NULL,
	score            INTEGER NOT NULL,
	portals_cleared  INTEGER NOT NULL DEFAULT 0,
	bonuses_cleared  INTEGER NOT NULL DEFAULT 0,
	obstacles_hit    INTEGER NOT NULL DEFAULT 0,
	difficulty       TEXT NOT NULL,
	speed            REAL NOT NULL,
	time_remaining   REAL NOT NULL,
	time_survived    REAL NOT NULL DEFAULT 0,
	started_at       INTEGER NOT NULL,
	last_updated_at  INTEGER NOT NULL,
	completed_at     INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active
	ON sessions (player_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS sessions_by_player
	ON sessions (player_id, started_at DESC);

CREATE TABLE IF NOT EXISTS session_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL REFERENCES sessions (id),
	action      TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	payload     TEXT
);

CREATE INDEX IF NOT EXISTS session_events_by_session
	ON session_events (session_id, id);

CREATE TABLE IF NOT EXISTS completions (
	player_id            TEXT PRIMARY KEY,
	final_score          INTEGER NOT NULL,
	final_portals        INTEGER NOT NULL,
	final_time_survived  REAL NOT NULL,
	completed_at         INTEGER NOT NULL,
	can_play_again       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS completions_ranked
	ON completions (final_score DESC, final_portals DESC, final_time_survived DESC);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides SQLite-backed session and completion persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the game SQLite store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateSession inserts a new session document. The partial unique index on
// active sessions serializes concurrent starts; a losing writer gets
// game.ErrActiveSessionExists.
func (s *Store) CreateSession(ctx context.Context, sess *game.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (
	id, player_id, status, health, score,
	portals_cleared, bonuses_cleared, obstacles_hit,
	difficulty, speed, time_remaining, time_survived,
	started_at, last_updated_at, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		sess.ID, sess.PlayerID, string(sess.Status), sess.Health, sess.Score,
		sess.PortalsCleared, sess.BonusesCleared, sess.ObstaclesHit,
		string(sess.Difficulty), sess.Speed, sess.TimeRemaining, sess.TimeSurvived,
		toMillis(sess.StartedAt), toMillis(sess.LastUpdatedAt), nullableMillis(sess.CompletedAt),
	)
	if isUniqueViolation(err) {
		return game.ErrActiveSessionExists
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionByID loads one session without its event log.
func (s *Store) SessionByID(ctx context.Context, sessionID string) (*game.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, sessionQuery+` WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// ActiveSessionByPlayer loads the player's active session, nil when none.
func (s *Store) ActiveSessionByPlayer(ctx context.Context, playerID string) (*game.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, sessionQuery+` WHERE player_id = ? AND status = 'active'`, playerID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	return sess, nil
}

// UpdateSession persists session fields and appends events in one
// transaction so a partial write is never observable.
func (s *Store) UpdateSession(ctx context.Context, sess *game.Session, events []game.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE sessions SET
	status = ?, health = ?, score = ?,
	portals_cleared = ?, bonuses_cleared = ?, obstacles_hit = ?,
	difficulty = ?, speed = ?, time_remaining = ?, time_survived = ?,
	last_updated_at = ?, completed_at = ?
WHERE id = ?
`,
		string(sess.Status), sess.Health, sess.Score,
		sess.PortalsCleared, sess.BonusesCleared, sess.ObstaclesHit,
		string(sess.Difficulty), sess.Speed, sess.TimeRemaining, sess.TimeSurvived,
		toMillis(sess.LastUpdatedAt), nullableMillis(sess.CompletedAt),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return game.ErrSessionNotFound
	}

	for _, ev := range events {
		var payload any
		if ev.Payload != nil {
			raw, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("encode event payload: %w", err)
			}
			payload = string(raw)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO session_events (session_id, action, created_at, payload)
VALUES (?, ?, ?, ?)
`, sess.ID, string(ev.Action), toMillis(ev.Timestamp), payload); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// SessionsByPlayer lists the player's sessions newest-first, without events.
func (s *Store) SessionsByPlayer(ctx context.Context, playerID string) ([]game.SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, status, score, portals_cleared, time_survived, started_at, completed_at
FROM sessions
WHERE player_id = ?
ORDER BY started_at DESC, id DESC
`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []game.SessionSummary
	for rows.Next() {
		var sum game.SessionSummary
		var status string
		var startedAt int64
		var completedAt sql.NullInt64
		if err := rows.Scan(&sum.ID, &status, &sum.Score, &sum.PortalsCleared, &sum.TimeSurvived, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.Status = game.Status(status)
		sum.StartedAt = fromMillis(startedAt)
		if completedAt.Valid {
			t := fromMillis(completedAt.Int64)
			sum.CompletedAt = &t
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return summaries, nil
}

// SessionEvents lists a session's event log in append order.
func (s *Store) SessionEvents(ctx context.Context, sessionID string) ([]game.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT action, created_at, payload
FROM session_events
WHERE session_id = ?
ORDER BY id
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []game.Event
	for rows.Next() {
		var action string
		var createdAt int64
		var payload sql.NullString
		if err := rows.Scan(&action, &createdAt, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev := game.Event{Action: game.Action(action), Timestamp: fromMillis(createdAt)}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// UpsertCompletion overwrites the player's permanent completion record.
func (s *Store) UpsertCompletion(ctx context.Context, rec *game.CompletionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO completions (player_id, final_score, final_portals, final_time_survived, completed_at, can_play_again)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (player_id) DO UPDATE SET
	final_score = excluded.final_score,
	final_portals = excluded.final_portals,
	final_time_survived = excluded.final_time_survived,
	completed_at = excluded.completed_at,
	can_play_again = excluded.can_play_again
`, rec.PlayerID, rec.FinalScore, rec.FinalPortals, rec.FinalTimeSurvived, toMillis(rec.CompletedAt), boolToInt(rec.CanPlayAgain))
	if err != nil {
		return fmt.Errorf("upsert completion: %w", err)
	}
	return nil
}

// CompletionByPlayer loads the player's completion record, nil when absent.
func (s *Store) CompletionByPlayer(ctx context.Context, playerID string) (*game.CompletionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT player_id, final_score, final_portals, final_time_survived, completed_at, can_play_again
FROM completions
WHERE player_id = ?
`, playerID)
	rec, err := scanCompletion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load completion: %w", err)
	}
	return rec, nil
}

// TopCompletions lists completion records in leaderboard order.
func (s *Store) TopCompletions(ctx context.Context, limit int) ([]game.CompletionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := `
SELECT player_id, final_score, final_portals, final_time_survived, completed_at, can_play_again
FROM completions
ORDER BY final_score DESC, final_portals DESC, final_time_survived DESC, completed_at ASC
`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var recs []game.CompletionRecord
	for rows.Next() {
		rec, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return recs, nil
}

const sessionQuery = `
SELECT id, player_id, status, health, score,
	portals_cleared, bonuses_cleared, obstacles_hit,
	difficulty, speed, time_remaining, time_survived,
	started_at, last_updated_at, completed_at
FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*game.Session, error) {
	var sess game.Session
	var status, difficulty string
	var startedAt, lastUpdatedAt int64
	var completedAt sql.NullInt64
	err := row.Scan(
		&sess.ID, &sess.PlayerID, &status, &sess.Health, &sess.Score,
		&sess.PortalsCleared, &sess.BonusesCleared, &sess.ObstaclesHit,
		&difficulty, &sess.Speed, &sess.TimeRemaining, &sess.TimeSurvived,
		&startedAt, &lastUpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.Status = game.Status(status)
	sess.Difficulty = game.Difficulty(difficulty)
	sess.StartedAt = fromMillis(startedAt)
	sess.LastUpdatedAt = fromMillis(lastUpdatedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		sess.CompletedAt = &t
	}
	return &sess, nil
}

func scanCompletion(row rowScanner) (*game.CompletionRecord, error) {
	var rec game.CompletionRecord
	var completedAt int64
	var canPlayAgain int
	err := row.Scan(&rec.PlayerID, &rec.FinalScore, &rec.FinalPortals, &rec.FinalTimeSurvived, &completedAt, &canPlayAgain)
	if err != nil {
		return nil, err
	}
	rec.CompletedAt = fromMillis(completedAt)
	rec.CanPlayAgain = canPlayAgain != 0
	return &rec, nil
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *msqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ game.Store = (*Store)(nil)
