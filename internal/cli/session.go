package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forge/internal/auth"
	"forge/internal/game"
)

// refreshLeeway renews tokens a little before the provider would reject them.
const refreshLeeway = 30 * time.Second

var ErrNotGM = errors.New("this account is not a game master")

// Session is what `forge login` leaves on disk.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	APIBase      string    `json:"api_base,omitempty"`
	Email        string    `json:"email"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	Role         game.Role `json:"role,omitempty"`
}

func NewSession(s auth.Session, apiBase string, now time.Time) Session {
	out := Session{
		APIBase:  normalizeBase(apiBase),
		Email:    s.User.Email,
		UserID:   s.User.ID,
		Username: s.User.Metadata.Username,
	}
	out.Renew(s, now)
	return out
}

// Renew swaps in freshly issued tokens. Providers may omit the refresh token
// on refresh; the old one is kept then.
func (s *Session) Renew(fresh auth.Session, now time.Time) {
	s.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		s.RefreshToken = fresh.RefreshToken
	}
	s.ExpiresAt = time.Time{}
	if fresh.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(fresh.ExpiresIn) * time.Second).UTC()
	}
}

// Expiring reports whether the access token should be renewed before use.
// Sessions without a known expiry never expire locally.
func (s Session) Expiring(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.Add(refreshLeeway).After(s.ExpiresAt)
}

// ServedBy reports whether the session was issued through apiBase.
// Older sessions without a recorded base match any server.
func (s Session) ServedBy(apiBase string) bool {
	return s.APIBase == "" || s.APIBase == normalizeBase(apiBase)
}

// RequireGM fails fast when the cached role rules out GM commands. An unknown
// role is left for the server to decide.
func (s Session) RequireGM() error {
	if s.Role == "" || s.Role == game.RoleGM {
		return nil
	}
	return fmt.Errorf("%w (role %s)", ErrNotGM, s.Role)
}

func normalizeBase(apiBase string) string {
	return strings.TrimRight(strings.TrimSpace(apiBase), "/")
}

// FORGE_HOME overrides the session directory, mainly for tests.
func baseDir() (string, error) {
	dir := strings.TrimSpace(os.Getenv("FORGE_HOME"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".forge")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func sessionPath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

func SaveSession(s Session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

func LoadSession() (Session, error) {
	path, err := sessionPath()
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return Session{}, fmt.Errorf("no access token found in session")
	}
	return s, nil
}

func ClearSession() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
