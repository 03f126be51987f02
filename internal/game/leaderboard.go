package game

import (
	"context"
	"fmt"
)

// DefaultLeaderboardSize bounds the public leaderboard view.
const DefaultLeaderboardSize = 100

// Projector is the read-only leaderboard view over completion records.
type Projector struct {
	store Store
}

func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// Top returns up to limit ranked entries ordered by score desc, portals
// desc, time survived desc. Ranks are sequential sorted positions; ties get
// no special handling.
func (p *Projector) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	recs, err := p.store.TopCompletions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}
	entries := make([]LeaderboardEntry, 0, len(recs))
	for i, rec := range recs {
		entries = append(entries, LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       rec.PlayerID,
			Score:          rec.FinalScore,
			PortalsCleared: rec.FinalPortals,
			TimeSurvived:   rec.FinalTimeSurvived,
			CompletedAt:    rec.CompletedAt,
		})
	}
	return entries, nil
}

// PlayerRank finds the player's entry in the full ordering, or nil when the
// player has no completion yet.
func (p *Projector) PlayerRank(ctx context.Context, playerID string) (*LeaderboardEntry, error) {
	recs, err := p.store.TopCompletions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}
	for i, rec := range recs {
		if rec.PlayerID != playerID {
			continue
		}
		return &LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       rec.PlayerID,
			Score:          rec.FinalScore,
			PortalsCleared: rec.FinalPortals,
			TimeSurvived:   rec.FinalTimeSurvived,
			CompletedAt:    rec.CompletedAt,
		}, nil
	}
	return nil, nil
}
