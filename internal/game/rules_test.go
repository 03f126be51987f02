package game

import "testing"

func TestClampHealth(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{-5, 0},
		{-0.1, 0},
		{0, 0},
		{1.9, 1},
		{3, 3},
		{3.7, 3},
		{99, 3},
	}
	for _, c := range cases {
		if got := ClampHealth(c.in); got != c.want {
			t.Fatalf("ClampHealth(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestClampScoreFloorsAndBounds(t *testing.T) {
	if got := ClampScore(-10); got != 0 {
		t.Fatalf("negative score should clamp to 0, got %d", got)
	}
	if got := ClampScore(150.9); got != 150 {
		t.Fatalf("score should floor, got %d", got)
	}
}

func TestClampSpeed(t *testing.T) {
	if got := ClampSpeed(10); got != BaseSpeed {
		t.Fatalf("speed below base should clamp to base, got %v", got)
	}
	if got := ClampSpeed(9999); got != SpeedCap {
		t.Fatalf("speed above cap should clamp to cap, got %v", got)
	}
	if got := ClampSpeed(300); got != 300 {
		t.Fatalf("in-range speed should pass through, got %v", got)
	}
}

func TestClampTimeRemaining(t *testing.T) {
	if got := ClampTimeRemaining(-1); got != 0 {
		t.Fatalf("negative time should clamp to 0, got %v", got)
	}
	if got := ClampTimeRemaining(SessionTimeLimit + 500); got != SessionTimeLimit {
		t.Fatalf("time above limit should clamp to limit, got %v", got)
	}
}

func TestDifficultyForBoundaries(t *testing.T) {
	cases := []struct {
		portals int
		want    Difficulty
	}{
		{0, DifficultyEasy},
		{3, DifficultyEasy},
		{4, DifficultyMedium},
		{6, DifficultyMedium},
		{7, DifficultyHard},
		{50, DifficultyHard},
	}
	for _, c := range cases {
		if got := DifficultyFor(c.portals); got != c.want {
			t.Fatalf("DifficultyFor(%d) = %s, want %s", c.portals, got, c.want)
		}
		// Recomputation is idempotent regardless of call order.
		if again := DifficultyFor(c.portals); again != c.want {
			t.Fatalf("DifficultyFor(%d) second call = %s, want %s", c.portals, again, c.want)
		}
	}
}

func TestNormalizeDifficultyFailsSafe(t *testing.T) {
	if got := NormalizeDifficulty("NIGHTMARE"); got != DifficultyEasy {
		t.Fatalf("unknown tier should force EASY, got %s", got)
	}
	if got := NormalizeDifficulty("MEDIUM"); got != DifficultyMedium {
		t.Fatalf("known tier should pass through, got %s", got)
	}
}

func TestParseUpdateAction(t *testing.T) {
	if _, ok := ParseUpdateAction("portal_cleared"); !ok {
		t.Fatal("portal_cleared should be a recognized action")
	}
	if _, ok := ParseUpdateAction("grant_myself_points"); ok {
		t.Fatal("unknown action should not be recognized")
	}
	if _, ok := ParseUpdateAction(""); ok {
		t.Fatal("empty action should not be recognized")
	}
}
