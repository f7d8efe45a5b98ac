package auth

import (
	"errors"
	"fmt"
	"strings"

	"forge/internal/game"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidAccessCode = errors.New("invalid access code")

// AccessCodes grants elevated roles at signup. Only bcrypt hashes of the
// codes are configured, in the form "role:hash,role:hash".
type AccessCodes struct {
	entries []accessCode
}

type accessCode struct {
	role game.Role
	hash []byte
}

func ParseAccessCodes(list string) (AccessCodes, error) {
	var out AccessCodes
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		roleName, hash, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(hash) == "" {
			return AccessCodes{}, fmt.Errorf("access code entry %q: want role:bcrypt-hash", raw)
		}
		role, err := game.ParseRole(roleName)
		if err != nil {
			return AccessCodes{}, err
		}
		if role == game.RolePlayer {
			return AccessCodes{}, fmt.Errorf("access code entry %q: player needs no code", raw)
		}
		if _, err := bcrypt.Cost([]byte(strings.TrimSpace(hash))); err != nil {
			return AccessCodes{}, fmt.Errorf("access code entry for %s: %w", role, err)
		}
		out.entries = append(out.entries, accessCode{role: role, hash: []byte(strings.TrimSpace(hash))})
	}
	return out, nil
}

// Redeem resolves a signup code to a role. An empty code is a plain player.
func (a AccessCodes) Redeem(code string) (game.Role, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return game.RolePlayer, nil
	}
	for _, e := range a.entries {
		if bcrypt.CompareHashAndPassword(e.hash, []byte(code)) == nil {
			return e.role, nil
		}
	}
	return "", ErrInvalidAccessCode
}

func (a AccessCodes) Len() int {
	return len(a.entries)
}

// HashAccessCode produces the hash half of an access code entry.
func HashAccessCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) < 8 {
		return "", fmt.Errorf("access code must be at least 8 characters")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
