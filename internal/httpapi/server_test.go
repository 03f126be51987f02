package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/enigma-arcade/portalrun/internal/game"
	"github.com/enigma-arcade/portalrun/internal/storage/sqlite"
)

var testSecret = []byte("test-secret")

func newTestRouter(t *testing.T, mutate func(*Deps)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.Open(t.TempDir() + "/portalrun.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	deps := Deps{
		Controller: game.NewController(store, zerolog.Nop()),
		Engine:     game.NewEngine(store, zerolog.Nop()),
		Projector:  game.NewProjector(store),
		JWTSecret:  testSecret,
		Log:        zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	r := gin.New()
	Register(r, deps)
	return r
}

func mintToken(t *testing.T, secret []byte, playerID string) string {
	t.Helper()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: playerID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return body
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) *game.Session {
	t.Helper()
	var sess game.Session
	if err := json.Unmarshal(decodeBody(t, w)["session"], &sess); err != nil {
		t.Fatalf("decode session: %v (%s)", err, w.Body.String())
	}
	return &sess
}

func updateBody(health, score float64, action string) map[string]any {
	return map[string]any{"health": health, "score": score, "action": action}
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/api/session/start", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	forged := mintToken(t, []byte("wrong-secret"), "player-1")
	w = doJSON(t, r, http.MethodPost, "/api/session/start", forged, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", w.Code)
	}
}

func TestLeaderboardIsPublic(t *testing.T) {
	r := newTestRouter(t, nil)
	w := doJSON(t, r, http.MethodGet, "/api/game/leaderboard", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	var entries []game.LeaderboardEntry
	if err := json.Unmarshal(body["leaderboard"], &entries); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty board, got %v", entries)
	}
}

func TestFullGameFlow(t *testing.T) {
	r := newTestRouter(t, nil)
	token := mintToken(t, testSecret, "player-1")

	// No session yet.
	w := doJSON(t, r, http.MethodGet, "/api/session/active", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("active: expected 200, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/game/status", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	var status game.PlayStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.CanPlay {
		t.Fatal("fresh player should be allowed to play")
	}

	// Start, then start again: same session both times.
	w = doJSON(t, r, http.MethodPost, "/api/session/start", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	sess := decodeSession(t, w)
	if sess.Health != game.InitialHealth || sess.Status != game.StatusActive {
		t.Fatalf("unexpected fresh session: %+v", sess)
	}
	w = doJSON(t, r, http.MethodPost, "/api/session/start", token, nil)
	if again := decodeSession(t, w); again.ID != sess.ID {
		t.Fatalf("repeat start handed out a new session: %s != %s", again.ID, sess.ID)
	}

	// Push a state update; the response is the corrected snapshot.
	body := updateBody(3, 250, string(game.ActionPortalCleared))
	body["portalsCleared"] = 2
	w = doJSON(t, r, http.MethodPost, "/api/session/"+sess.ID+"/update", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated := decodeSession(t, w)
	if updated.Score != 250 || updated.PortalsCleared != 2 {
		t.Fatalf("update not applied: %+v", updated)
	}

	// Out-of-range numbers come back sanitized, not rejected.
	w = doJSON(t, r, http.MethodPost, "/api/session/"+sess.ID+"/update", token, updateBody(99, -10, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated = decodeSession(t, w)
	if updated.Health != game.MaxHealth || updated.Score != 250 {
		t.Fatalf("expected sanitized snapshot, got %+v", updated)
	}

	// Complete and verify the permanent record.
	w = doJSON(t, r, http.MethodPost, "/api/game/complete", token, game.FinalResult{Score: 250, Portals: 2, TimeSurvived: 120})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rec game.CompletionRecord
	if err := json.Unmarshal(decodeBody(t, w)["completion"], &rec); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if rec.FinalScore != 250 || rec.CanPlayAgain {
		t.Fatalf("unexpected completion: %+v", rec)
	}

	// Permanently done: no restart, status says so.
	w = doJSON(t, r, http.MethodPost, "/api/session/start", token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("restart: expected 403, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/game/status", token, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.CanPlay || status.CompletedAt == nil {
		t.Fatalf("expected locked status, got %+v", status)
	}

	// The run shows up in history and the leaderboard.
	w = doJSON(t, r, http.MethodGet, "/api/session/history", token, nil)
	var sessions []game.SessionSummary
	if err := json.Unmarshal(decodeBody(t, w)["sessions"], &sessions); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != game.StatusCompleted {
		t.Fatalf("unexpected history: %v", sessions)
	}

	w = doJSON(t, r, http.MethodGet, "/api/game/leaderboard", "", nil)
	var entries []game.LeaderboardEntry
	if err := json.Unmarshal(decodeBody(t, w)["leaderboard"], &entries); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(entries) != 1 || entries[0].PlayerID != "player-1" || entries[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard: %v", entries)
	}

	// Session detail includes the event log.
	w = doJSON(t, r, http.MethodGet, "/api/session/"+sess.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("detail: expected 200, got %d", w.Code)
	}
	detail := decodeSession(t, w)
	if len(detail.Events) == 0 || detail.Events[0].Action != game.ActionSessionStart {
		t.Fatalf("expected event log starting with session_start, got %v", detail.Events)
	}
}

func TestUpdateErrorMapping(t *testing.T) {
	r := newTestRouter(t, nil)
	token := mintToken(t, testSecret, "player-1")

	w := doJSON(t, r, http.MethodPost, "/api/session/start", token, nil)
	sess := decodeSession(t, w)

	// Missing required fields.
	w = doJSON(t, r, http.MethodPost, "/api/session/"+sess.ID+"/update", token, map[string]any{"score": 100})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing health, got %d", w.Code)
	}

	// Unknown session.
	w = doJSON(t, r, http.MethodPost, "/api/session/ghost/update", token, updateBody(3, 0, ""))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", w.Code)
	}

	// Someone else's session.
	other := mintToken(t, testSecret, "player-2")
	w = doJSON(t, r, http.MethodPost, "/api/session/"+sess.ID+"/update", other, updateBody(3, 0, ""))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign session, got %d", w.Code)
	}

	// Completing with no session in flight.
	w = doJSON(t, r, http.MethodPost, "/api/game/complete", other, game.FinalResult{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for no active session, got %d", w.Code)
	}
}

func TestSessionDetailOwnership(t *testing.T) {
	r := newTestRouter(t, nil)
	owner := mintToken(t, testSecret, "player-1")
	stranger := mintToken(t, testSecret, "player-2")

	w := doJSON(t, r, http.MethodPost, "/api/session/start", owner, nil)
	sess := decodeSession(t, w)

	w = doJSON(t, r, http.MethodGet, "/api/session/"+sess.ID, stranger, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign detail, got %d", w.Code)
	}
}

func TestUpdateRateLimit(t *testing.T) {
	r := newTestRouter(t, func(d *Deps) {
		d.UpdatesPerMin = 60
		d.UpdateBurst = 2
	})
	token := mintToken(t, testSecret, "player-1")

	w := doJSON(t, r, http.MethodPost, "/api/session/start", token, nil)
	sess := decodeSession(t, w)

	for i := 0; i < 2; i++ {
		w = doJSON(t, r, http.MethodPost, "/api/session/"+sess.ID+"/update", token, updateBody(3, 0, ""))
		if w.Code != http.StatusOK {
			t.Fatalf("update %d: expected 200, got %d", i, w.Code)
		}
	}
	w = doJSON(t, r, http.MethodPost, "/api/session/"+sess.ID+"/update", token, updateBody(3, 0, ""))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}

	// Another player has an independent budget.
	other := mintToken(t, testSecret, "player-2")
	doJSON(t, r, http.MethodPost, "/api/session/start", other, nil)
	w = doJSON(t, r, http.MethodPost, "/api/session/"+sess.ID+"/update", other, updateBody(3, 0, ""))
	if w.Code == http.StatusTooManyRequests {
		t.Fatal("rate limit should be per player")
	}
}
