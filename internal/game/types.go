package game

import (
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

type Action string

const (
	ActionSessionStart    Action = "session_start"
	ActionAnswerCorrect   Action = "answer_correct"
	ActionAnswerIncorrect Action = "answer_incorrect"
	ActionHealthLoss      Action = "health_loss"
	ActionDemogorgonHit   Action = "demogorgon_hit"
	ActionPortalCleared   Action = "portal_cleared"
	ActionBonusCollected  Action = "bonus_collected"
	ActionGameOver        Action = "game_over"
	ActionTimeOver        Action = "time_over"
)

// Tuning constants carried over from the original game balance.
const (
	MaxHealth        = 3
	InitialHealth    = 3
	BaseSpeed        = 200.0
	SpeedCap         = 600.0
	SpeedIncrement   = 20.0
	SessionTimeLimit = 2 * 60 * 60 // seconds
)

// Anti-cheat thresholds.
const (
	// TimeTolerance absorbs network latency and brief client pauses before
	// a reported timeRemaining is overridden with the server-computed value.
	TimeTolerance = 60.0 // seconds

	// ScoreRateCeiling is the largest per-update score increase that goes
	// unflagged. Larger jumps are still accepted but logged for review.
	ScoreRateCeiling = 500
)

// Scoring values applied client-side; the server only validates outcomes.
const (
	ScoreCorrect           = 100
	ScoreFastSolveBonus    = 50
	ScoreWrong             = -50
	ScoreTimeout           = -75
	ScorePerSecondSurvived = 1
)

type Event struct {
	Action    Action         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Session struct {
	ID             string     `json:"sessionId"`
	PlayerID       string     `json:"playerId"`
	Status         Status     `json:"status"`
	Health         int        `json:"health"`
	Score          int        `json:"score"`
	PortalsCleared int        `json:"portalsCleared"`
	BonusesCleared int        `json:"bonusesCleared"`
	ObstaclesHit   int        `json:"obstaclesHit"`
	Difficulty     Difficulty `json:"difficulty"`
	Speed          float64    `json:"speed"`
	TimeRemaining  float64    `json:"timeRemaining"`
	TimeSurvived   float64    `json:"timeSurvived"`
	StartedAt      time.Time  `json:"startedAt"`
	LastUpdatedAt  time.Time  `json:"lastUpdatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Events         []Event    `json:"events,omitempty"`
}

// StateDelta is a client-reported snapshot of its local state. Health and
// score are required; the rest default to the stored values when absent.
// Every value is attacker-controlled and sanitized before persistence.
type StateDelta struct {
	Health         *float64 `json:"health"`
	Score          *float64 `json:"score"`
	PortalsCleared *float64 `json:"portalsCleared"`
	BonusesCleared *float64 `json:"bonusesCleared"`
	ObstaclesHit   *float64 `json:"obstaclesHit"`
	Difficulty     string   `json:"difficulty"`
	Speed          *float64 `json:"speed"`
	TimeRemaining  *float64 `json:"timeRemaining"`
	TimeSurvived   *float64 `json:"timeSurvived"`
	Action         string   `json:"action"`
}

// FinalResult carries the client's reported final numbers on completion.
type FinalResult struct {
	Score        int     `json:"finalScore"`
	Portals      int     `json:"finalPortals"`
	TimeSurvived float64 `json:"finalTimeSurvived"`
}

// CompletionRecord is the permanent single-attempt record for a player.
type CompletionRecord struct {
	PlayerID          string    `json:"playerId"`
	FinalScore        int       `json:"finalScore"`
	FinalPortals      int       `json:"finalPortalsCleared"`
	FinalTimeSurvived float64   `json:"finalTimeSurvived"`
	CompletedAt       time.Time `json:"completedAt"`
	CanPlayAgain      bool      `json:"canPlayAgain"`
}

type LeaderboardEntry struct {
	Rank           int       `json:"rank"`
	PlayerID       string    `json:"playerId"`
	Score          int       `json:"score"`
	PortalsCleared int       `json:"portalsCleared"`
	TimeSurvived   float64   `json:"timeSurvived"`
	CompletedAt    time.Time `json:"completedAt"`
}

// SessionSummary is the history projection without the event log.
type SessionSummary struct {
	ID             string     `json:"sessionId"`
	Status         Status     `json:"status"`
	Score          int        `json:"score"`
	PortalsCleared int        `json:"portalsCleared"`
	TimeSurvived   float64    `json:"timeSurvived"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

type PlayStatus struct {
	CanPlay     bool       `json:"canPlay"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
