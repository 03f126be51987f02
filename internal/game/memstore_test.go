package game

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory Store fake for domain tests. It mirrors the real
// store's contract: one active session per player and atomic updates.
type memStore struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	events      map[string][]Event
	completions map[string]*CompletionRecord

	// beforeCreate, when set, runs ahead of the insert's uniqueness check.
	// Tests use it to interleave a racing writer.
	beforeCreate func()
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    make(map[string]*Session),
		events:      make(map[string][]Event),
		completions: make(map[string]*CompletionRecord),
	}
}

func (m *memStore) CreateSession(_ context.Context, s *Session) error {
	if m.beforeCreate != nil {
		hook := m.beforeCreate
		m.beforeCreate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.PlayerID == s.PlayerID && existing.Status == StatusActive {
			return ErrActiveSessionExists
		}
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) SessionByID(_ context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ActiveSessionByPlayer(_ context.Context, playerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.PlayerID == playerID && s.Status == StatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateSession(_ context.Context, s *Session, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	cp := *s
	cp.Events = nil
	m.sessions[s.ID] = &cp
	m.events[s.ID] = append(m.events[s.ID], events...)
	return nil
}

func (m *memStore) SessionsByPlayer(_ context.Context, playerID string) ([]SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SessionSummary
	for _, s := range m.sessions {
		if s.PlayerID != playerID {
			continue
		}
		out = append(out, SessionSummary{
			ID:             s.ID,
			Status:         s.Status,
			Score:          s.Score,
			PortalsCleared: s.PortalsCleared,
			TimeSurvived:   s.TimeSurvived,
			StartedAt:      s.StartedAt,
			CompletedAt:    s.CompletedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memStore) SessionEvents(_ context.Context, sessionID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events[sessionID]...), nil
}

func (m *memStore) UpsertCompletion(_ context.Context, rec *CompletionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.completions[rec.PlayerID] = &cp
	return nil
}

func (m *memStore) CompletionByPlayer(_ context.Context, playerID string) (*CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.completions[playerID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) TopCompletions(_ context.Context, limit int) ([]CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRecord, 0, len(m.completions))
	for _, rec := range m.completions {
		out = append(out, *rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		if out[i].FinalPortals != out[j].FinalPortals {
			return out[i].FinalPortals > out[j].FinalPortals
		}
		return out[i].FinalTimeSurvived > out[j].FinalTimeSurvived
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*memStore)(nil)
