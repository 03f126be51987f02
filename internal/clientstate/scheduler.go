package clientstate

import "time"

type PowerUp string

const (
	PowerUpHawkinsStabilizer PowerUp = "hawkins_stabilizer"
	PowerUpLabMedkit         PowerUp = "lab_medkit"
	PowerUpSignalBooster     PowerUp = "signal_booster"
)

const (
	stabilizerDuration = 10 * time.Second
	boosterDuration    = 20 * time.Second
)

type activeEffect struct {
	Kind      PowerUp
	ExpiresAt time.Time
	Revert    func()
}

// effectScheduler records time-boxed effects as {effect, expiresAt} pairs
// and reverts them when ticked past their deadline. Expiry is driven by the
// injected clock, so tests run without wall-clock waits.
type effectScheduler struct {
	effects []activeEffect
}

func (s *effectScheduler) add(kind PowerUp, expiresAt time.Time, revert func()) {
	s.effects = append(s.effects, activeEffect{Kind: kind, ExpiresAt: expiresAt, Revert: revert})
}

func (s *effectScheduler) tick(now time.Time) {
	kept := s.effects[:0]
	for _, e := range s.effects {
		if now.Before(e.ExpiresAt) {
			kept = append(kept, e)
			continue
		}
		e.Revert()
	}
	s.effects = kept
}

func (s *effectScheduler) active() []PowerUp {
	kinds := make([]PowerUp, 0, len(s.effects))
	for _, e := range s.effects {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (s *effectScheduler) clear() {
	s.effects = nil
}
