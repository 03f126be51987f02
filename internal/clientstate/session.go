package clientstate

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/enigma-arcade/portalrun/internal/game"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

const (
	speedStepInterval = 30.0 // seconds of play per speed increment
	powerUpDropChance = 0.2

	// Accumulated simulated seconds between server pushes. Ticks are
	// throttled into batches instead of pushing every frame.
	pushInterval = 0.1
)

// ClientSession is the single owner of local game state. It replaces the
// ambient shared context of the original client: every mutation funnels
// through this object and uses the same clamp/difficulty vocabulary as the
// server-side reconciliation engine.
//
// Timing is cooperative. The caller drives Tick with simulated elapsed
// seconds; a paused session ignores ticks entirely, so no server-chargeable
// time elapses while a question overlay is up.
type ClientSession struct {
	mu       sync.Mutex
	playerID string
	vault    *Vault
	clock    func() time.Time
	roll     func() float64
	log      zerolog.Logger

	status          Status
	health          int
	score           int
	portalsCleared  int
	bonusesCleared  int
	obstaclesHit    int
	difficulty      game.Difficulty
	speed           float64
	timeRemaining   float64
	timeSurvived    float64
	speedMultiplier float64
	scoreMultiplier float64

	effects       effectScheduler
	distanceDebt  float64
	speedStepDebt float64
	pushDebt      float64
	lastAction    game.Action
}

func NewClientSession(playerID string, vault *Vault, log zerolog.Logger) *ClientSession {
	return &ClientSession{
		playerID: playerID,
		vault:    vault,
		clock:    func() time.Time { return time.Now().UTC() },
		roll:     rand.Float64,
		log:      log,
		status:   StatusIdle,
	}
}

// WithClock overrides the wall clock, used by tests.
func (cs *ClientSession) WithClock(now func() time.Time) *ClientSession {
	cs.clock = now
	return cs
}

// WithRoll overrides the power-up drop roll, used by tests.
func (cs *ClientSession) WithRoll(roll func() float64) *ClientSession {
	cs.roll = roll
	return cs
}

// Start resets to a fresh run and discards any stale cached state.
func (cs *ClientSession) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.reset()
	cs.status = StatusPlaying
	if cs.vault != nil {
		cs.vault.Discard(cs.playerID)
	}
}

// Restore resumes from the persisted snapshot with server-corrected elapsed
// time, or reports false for a fresh start. Time spent away counts against
// the remaining budget and toward time survived, but never earns score.
func (cs *ClientSession) Restore(now time.Time) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.vault == nil {
		return false
	}
	snap := cs.vault.Load(cs.playerID)
	if snap == nil {
		return false
	}

	cs.adoptSnapshot(snap)

	if snap.Status != string(StatusPlaying) && snap.Status != string(StatusPaused) {
		// Completed or idle snapshots restore as-is.
		cs.status = Status(snap.Status)
		return true
	}

	elapsedAway := now.Sub(time.UnixMilli(snap.LastSavedAt)).Seconds()
	if elapsedAway < 0 {
		elapsedAway = 0
	}
	adjusted := snap.TimeRemaining - elapsedAway
	if adjusted <= 0 {
		// The run expired while away; no further play.
		cs.timeRemaining = 0
		cs.timeSurvived = snap.TimeSurvived + snap.TimeRemaining
		cs.status = StatusEnded
		cs.lastAction = game.ActionTimeOver
		cs.vault.Discard(cs.playerID)
		return true
	}
	cs.timeRemaining = adjusted
	cs.timeSurvived = snap.TimeSurvived + elapsedAway
	cs.status = Status(snap.Status)
	// Multipliers never survive a reload; only their already-applied
	// numeric consequences do.
	cs.speedMultiplier = 1
	cs.scoreMultiplier = 1
	cs.effects.clear()
	return true
}

// Pause freezes all local timers, typically while a question overlay shows.
func (cs *ClientSession) Pause() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.status == StatusPlaying {
		cs.status = StatusPaused
		cs.persist()
	}
}

// Resume restarts timers from the frozen values.
func (cs *ClientSession) Resume() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.status == StatusPaused {
		cs.status = StatusPlaying
		cs.persist()
	}
}

// Tick advances the run by dt simulated seconds: global countdown, survival
// score accrual, speed ramp, and power-up expiry. Returns false once the
// run has ended.
func (cs *ClientSession) Tick(dt float64) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.status != StatusPlaying || dt <= 0 {
		return cs.status == StatusPlaying || cs.status == StatusPaused
	}

	cs.timeRemaining -= dt
	cs.timeSurvived += dt
	cs.pushDebt += dt

	cs.distanceDebt += dt * game.ScorePerSecondSurvived
	if cs.distanceDebt >= 1 {
		earned := int(cs.distanceDebt)
		cs.distanceDebt -= float64(earned)
		cs.score = game.ClampScore(float64(cs.score + earned))
	}

	cs.speedStepDebt += dt
	for cs.speedStepDebt >= speedStepInterval {
		cs.speedStepDebt -= speedStepInterval
		cs.speed = game.ClampSpeed(cs.speed + game.SpeedIncrement)
	}

	cs.effects.tick(cs.clock())

	if cs.timeRemaining <= 0 {
		cs.timeRemaining = 0
		cs.status = StatusEnded
		cs.lastAction = game.ActionTimeOver
		cs.persist()
		return false
	}
	cs.persist()
	return true
}

// AnswerCorrect awards the question score, advances the portal count, and
// rolls for a power-up drop. Returns the dropped power-up, if any.
func (cs *ClientSession) AnswerCorrect(fastSolve bool) *PowerUp {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delta := float64(game.ScoreCorrect) * cs.scoreMultiplier
	if fastSolve {
		delta += game.ScoreFastSolveBonus
	}
	cs.score = game.ClampScore(float64(cs.score) + delta)
	cs.portalsCleared++
	cs.difficulty = game.DifficultyFor(cs.portalsCleared)
	cs.lastAction = game.ActionAnswerCorrect

	var dropped *PowerUp
	if cs.roll() < powerUpDropChance {
		kinds := []PowerUp{PowerUpHawkinsStabilizer, PowerUpLabMedkit, PowerUpSignalBooster}
		kind := kinds[int(cs.roll()*float64(len(kinds)))%len(kinds)]
		cs.applyPowerUp(kind)
		dropped = &kind
	}
	cs.persist()
	return dropped
}

// AnswerIncorrect applies the wrong-answer penalty and costs one health.
func (cs *ClientSession) AnswerIncorrect() {
	cs.answerPenalty(game.ScoreWrong, game.ActionAnswerIncorrect)
}

// AnswerTimeout applies the harsher timeout penalty and costs one health.
func (cs *ClientSession) AnswerTimeout() {
	cs.answerPenalty(game.ScoreTimeout, game.ActionAnswerIncorrect)
}

func (cs *ClientSession) answerPenalty(penalty int, action game.Action) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.score = game.ClampScore(float64(cs.score + penalty))
	cs.health = game.ClampHealth(float64(cs.health - 1))
	cs.lastAction = action
	cs.checkGameOver()
	cs.persist()
}

// ObstacleHit records a collision and costs one health.
func (cs *ClientSession) ObstacleHit() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.obstaclesHit++
	cs.health = game.ClampHealth(float64(cs.health - 1))
	cs.lastAction = game.ActionDemogorgonHit
	cs.checkGameOver()
	cs.persist()
}

// BonusCollected records a bonus pickup, the sole legitimate heal trigger.
func (cs *ClientSession) BonusCollected() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.bonusesCleared++
	cs.lastAction = game.ActionBonusCollected
	cs.persist()
}

// ApplyPowerUp applies a time-boxed effect; expiry is handled by the
// scheduler on the next tick past the deadline.
func (cs *ClientSession) ApplyPowerUp(kind PowerUp) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.applyPowerUp(kind)
	cs.persist()
}

func (cs *ClientSession) applyPowerUp(kind PowerUp) {
	now := cs.clock()
	switch kind {
	case PowerUpHawkinsStabilizer:
		cs.speedMultiplier = 0.5
		cs.effects.add(kind, now.Add(stabilizerDuration), func() { cs.speedMultiplier = 1 })
	case PowerUpLabMedkit:
		cs.health = game.ClampHealth(float64(cs.health + 1))
		cs.lastAction = game.ActionBonusCollected
	case PowerUpSignalBooster:
		cs.scoreMultiplier = 2
		cs.effects.add(kind, now.Add(boosterDuration), func() { cs.scoreMultiplier = 1 })
	}
}

// TakePushDue reports whether enough simulated time accumulated to batch a
// server push, and resets the accumulator when it did.
func (cs *ClientSession) TakePushDue() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.pushDebt < pushInterval {
		return false
	}
	cs.pushDebt = 0
	return true
}

// Delta builds the state push for the reconciliation endpoint.
func (cs *ClientSession) Delta() game.StateDelta {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	health := float64(cs.health)
	score := float64(cs.score)
	portals := float64(cs.portalsCleared)
	bonuses := float64(cs.bonusesCleared)
	obstacles := float64(cs.obstaclesHit)
	speed := cs.speed
	remaining := cs.timeRemaining
	survived := cs.timeSurvived
	return game.StateDelta{
		Health:         &health,
		Score:          &score,
		PortalsCleared: &portals,
		BonusesCleared: &bonuses,
		ObstaclesHit:   &obstacles,
		Difficulty:     string(cs.difficulty),
		Speed:          &speed,
		TimeRemaining:  &remaining,
		TimeSurvived:   &survived,
		Action:         string(cs.lastAction),
	}
}

// AdoptServerState overwrites local optimistic state with the corrected
// snapshot returned by the server; the response is the new ground truth.
func (cs *ClientSession) AdoptServerState(sess *game.Session) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.health = sess.Health
	cs.score = sess.Score
	cs.portalsCleared = sess.PortalsCleared
	cs.bonusesCleared = sess.BonusesCleared
	cs.obstaclesHit = sess.ObstaclesHit
	cs.difficulty = sess.Difficulty
	cs.speed = sess.Speed
	cs.timeRemaining = sess.TimeRemaining
	cs.timeSurvived = sess.TimeSurvived
	if sess.Status == game.StatusCompleted {
		cs.status = StatusEnded
	}
	cs.persist()
}

// Shutdown persists a final snapshot, covering the page-hide/unload case
// where periodic persistence lagged.
func (cs *ClientSession) Shutdown() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.persist()
}

// View returns a copy of the current local state.
func (cs *ClientSession) View() Snapshot {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.snapshot()
}

// Status returns the client-observed run status.
func (cs *ClientSession) Status() Status {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.status
}

// ActivePowerUps lists the effects still in flight.
func (cs *ClientSession) ActivePowerUps() []PowerUp {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.effects.active()
}

func (cs *ClientSession) checkGameOver() {
	if cs.health <= 0 {
		cs.status = StatusEnded
		cs.lastAction = game.ActionGameOver
	}
}

func (cs *ClientSession) reset() {
	cs.status = StatusIdle
	cs.health = game.InitialHealth
	cs.score = 0
	cs.portalsCleared = 0
	cs.bonusesCleared = 0
	cs.obstaclesHit = 0
	cs.difficulty = game.DifficultyEasy
	cs.speed = game.BaseSpeed
	cs.timeRemaining = game.SessionTimeLimit
	cs.timeSurvived = 0
	cs.speedMultiplier = 1
	cs.scoreMultiplier = 1
	cs.effects.clear()
	cs.distanceDebt = 0
	cs.speedStepDebt = 0
	cs.pushDebt = 0
	cs.lastAction = ""
}

func (cs *ClientSession) snapshot() Snapshot {
	return Snapshot{
		Status:          string(cs.status),
		Health:          cs.health,
		Score:           cs.score,
		PortalsCleared:  cs.portalsCleared,
		BonusesCleared:  cs.bonusesCleared,
		ObstaclesHit:    cs.obstaclesHit,
		Difficulty:      string(cs.difficulty),
		Speed:           cs.speed,
		TimeRemaining:   cs.timeRemaining,
		TimeSurvived:    cs.timeSurvived,
		SpeedMultiplier: cs.speedMultiplier,
		ScoreMultiplier: cs.scoreMultiplier,
	}
}

func (cs *ClientSession) adoptSnapshot(snap *Snapshot) {
	cs.reset()
	cs.health = game.ClampHealth(float64(snap.Health))
	cs.score = game.ClampScore(float64(snap.Score))
	cs.portalsCleared = game.ClampCounter(float64(snap.PortalsCleared))
	cs.bonusesCleared = game.ClampCounter(float64(snap.BonusesCleared))
	cs.obstaclesHit = game.ClampCounter(float64(snap.ObstaclesHit))
	cs.difficulty = game.NormalizeDifficulty(snap.Difficulty)
	cs.speed = game.ClampSpeed(snap.Speed)
	cs.timeRemaining = game.ClampTimeRemaining(snap.TimeRemaining)
	cs.timeSurvived = snap.TimeSurvived
}

// persist saves best-effort while a run is live; callers hold the lock.
func (cs *ClientSession) persist() {
	if cs.vault == nil {
		return
	}
	if cs.status != StatusPlaying && cs.status != StatusPaused {
		return
	}
	if err := cs.vault.Save(cs.playerID, cs.snapshot(), cs.clock()); err != nil {
		cs.log.Warn().Err(err).Msg("snapshot save failed")
	}
}
