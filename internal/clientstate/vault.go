package clientstate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the locally persisted view of a live session. Multiplier
// fields are informational only; resumption never re-applies them, it keeps
// just the numeric consequences already baked into score and speed.
type Snapshot struct {
	Status          string  `json:"status"`
	Health          int     `json:"health"`
	Score           int     `json:"score"`
	PortalsCleared  int     `json:"portalsCleared"`
	BonusesCleared  int     `json:"bonusesCleared"`
	ObstaclesHit    int     `json:"obstaclesHit"`
	Difficulty      string  `json:"difficulty"`
	Speed           float64 `json:"speed"`
	TimeRemaining   float64 `json:"timeRemaining"`
	TimeSurvived    float64 `json:"timeSurvived"`
	SpeedMultiplier float64 `json:"speedMultiplier"`
	ScoreMultiplier float64 `json:"scoreMultiplier"`
	LastSavedAt     int64   `json:"lastSavedTimestamp"` // unix millis
}

// Vault is the player-scoped, encrypted-at-rest resumption cache. Blobs are
// sealed with AES-GCM under a key derived from the install key and the
// player identifier, wrapping {payload, integrityChecksum}; any decrypt or
// checksum failure reads as a cache miss, never as garbage data.
type Vault struct {
	dir        string
	installKey []byte
}

func NewVault(dir string, installKey []byte) *Vault {
	return &Vault{dir: dir, installKey: installKey}
}

type sealedPayload struct {
	Payload  string `json:"payload"`
	Checksum string `json:"integrityChecksum"`
}

// Save persists the snapshot for the player, stamping the save time.
func (v *Vault) Save(playerID string, snap Snapshot, now time.Time) error {
	snap.LastSavedAt = now.UTC().UnixMilli()
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	wrapped, err := json.Marshal(sealedPayload{
		Payload:  string(payload),
		Checksum: v.checksum(payload, playerID),
	})
	if err != nil {
		return fmt.Errorf("wrap snapshot: %w", err)
	}

	gcm, err := v.cipherFor(playerID)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	blob := gcm.Seal(nonce, nonce, wrapped, nil)

	if err := os.MkdirAll(v.dir, 0o700); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.WriteFile(v.path(playerID), blob, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load reads the player's snapshot. A missing, corrupted, or foreign blob
// returns nil with no error: resumption treats all of those as a fresh
// start rather than erroring the player.
func (v *Vault) Load(playerID string) *Snapshot {
	blob, err := os.ReadFile(v.path(playerID))
	if err != nil {
		return nil
	}
	gcm, err := v.cipherFor(playerID)
	if err != nil {
		return nil
	}
	if len(blob) < gcm.NonceSize() {
		v.Discard(playerID)
		return nil
	}
	wrapped, err := gcm.Open(nil, blob[:gcm.NonceSize()], blob[gcm.NonceSize():], nil)
	if err != nil {
		v.Discard(playerID)
		return nil
	}
	var sealed sealedPayload
	if err := json.Unmarshal(wrapped, &sealed); err != nil {
		v.Discard(playerID)
		return nil
	}
	if sealed.Checksum != v.checksum([]byte(sealed.Payload), playerID) {
		v.Discard(playerID)
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(sealed.Payload), &snap); err != nil {
		v.Discard(playerID)
		return nil
	}
	return &snap
}

// Discard drops the player's cached snapshot.
func (v *Vault) Discard(playerID string) {
	_ = os.Remove(v.path(playerID))
}

func (v *Vault) path(playerID string) string {
	// File names are derived, not player-controlled.
	name := sha256.Sum256([]byte(playerID))
	return filepath.Join(v.dir, hex.EncodeToString(name[:8])+".bin")
}

func (v *Vault) cipherFor(playerID string) (cipher.AEAD, error) {
	key := sha256.Sum256(append(append([]byte{}, v.installKey...), playerID...))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("derive cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("derive gcm: %w", err)
	}
	return gcm, nil
}

func (v *Vault) checksum(payload []byte, playerID string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(playerID))
	h.Write(v.installKey)
	return hex.EncodeToString(h.Sum(nil))
}
