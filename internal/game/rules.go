package game

import "math"

// ClampHealth floors a reported health value into [0, MaxHealth].
func ClampHealth(h float64) int {
	return clampInt(int(math.Floor(h)), 0, MaxHealth)
}

// ClampScore floors a reported score into [0, inf).
func ClampScore(s float64) int {
	v := int(math.Floor(s))
	if v < 0 {
		return 0
	}
	return v
}

// ClampCounter floors a reported progress counter into [0, inf).
func ClampCounter(c float64) int {
	return ClampScore(c)
}

// ClampSpeed keeps the scroll speed within [BaseSpeed, SpeedCap].
func ClampSpeed(s float64) float64 {
	if s < BaseSpeed {
		return BaseSpeed
	}
	if s > SpeedCap {
		return SpeedCap
	}
	return s
}

// ClampTimeRemaining keeps the countdown within [0, SessionTimeLimit].
func ClampTimeRemaining(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > SessionTimeLimit {
		return SessionTimeLimit
	}
	return t
}

// DifficultyFor derives the tier from portals cleared. The mapping is a pure
// function so recomputation is idempotent regardless of call order.
func DifficultyFor(portalsCleared int) Difficulty {
	switch {
	case portalsCleared >= 7:
		return DifficultyHard
	case portalsCleared >= 4:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}

// NormalizeDifficulty forces unknown tiers to EASY rather than rejecting.
func NormalizeDifficulty(d string) Difficulty {
	switch Difficulty(d) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(d)
	}
	return DifficultyEasy
}

// ParseUpdateAction maps a client action tag to a known event action.
// Unrecognized tags are treated as "no event": the numeric update still
// applies but nothing is appended to the log.
func ParseUpdateAction(a string) (Action, bool) {
	switch Action(a) {
	case ActionAnswerCorrect, ActionAnswerIncorrect, ActionHealthLoss,
		ActionDemogorgonHit, ActionPortalCleared, ActionBonusCollected,
		ActionGameOver, ActionTimeOver:
		return Action(a), true
	}
	return "", false
}

// penaltyAction reports whether an action legitimately lowers the score.
// Score decreases under any other tag are clamped back to the stored value.
func penaltyAction(a Action) bool {
	switch a {
	case ActionAnswerIncorrect, ActionHealthLoss, ActionDemogorgonHit, ActionTimeOver:
		return true
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
