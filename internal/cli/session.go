package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Session remembers who plays from this profile directory and when they last
// ran a command.
type Session struct {
	PlayerID    string `json:"player_id"`
	CreatedAtMs int64  `json:"created_at_ms"`
	LastSeenMs  int64  `json:"last_seen_ms"`
}

func EnsureHome(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("profile directory is empty")
	}
	return os.MkdirAll(dir, 0o700)
}

func sessionPath(dir string) string {
	return filepath.Join(dir, "session.json")
}

func SaveSession(dir string, s Session) error {
	if err := EnsureHome(dir); err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sessionPath(dir), body, 0o600)
}

func LoadSession(dir string) (Session, error) {
	body, err := os.ReadFile(sessionPath(dir))
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// TouchSession records now as the latest visit and returns how long the
// player was away. A missing or unreadable session starts a fresh one.
func TouchSession(dir, playerID string, now time.Time) (Session, time.Duration, error) {
	s, err := LoadSession(dir)
	if err != nil || s.PlayerID != playerID {
		s = Session{PlayerID: playerID, CreatedAtMs: now.UnixMilli()}
	}
	var away time.Duration
	if s.LastSeenMs > 0 && now.UnixMilli() > s.LastSeenMs {
		away = time.Duration(now.UnixMilli()-s.LastSeenMs) * time.Millisecond
	}
	s.LastSeenMs = now.UnixMilli()
	if err := SaveSession(dir, s); err != nil {
		return s, away, err
	}
	return s, away, nil
}

func ClearSession(dir string) error {
	if err := os.Remove(sessionPath(dir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
