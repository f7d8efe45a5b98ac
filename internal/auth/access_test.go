package auth

import (
	"errors"
	"testing"

	"forge/internal/game"

	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, code string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(b)
}

func TestAccessCodesRedeem(t *testing.T) {
	list := "gm:" + mustHash(t, "open-sesame") + ", beta_tester:" + mustHash(t, "early-bird")
	codes, err := ParseAccessCodes(list)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if codes.Len() != 2 {
		t.Fatalf("entries %d", codes.Len())
	}

	cases := []struct {
		code string
		want game.Role
		err  error
	}{
		{"", game.RolePlayer, nil},
		{"open-sesame", game.RoleGM, nil},
		{" early-bird ", game.RoleBetaTester, nil},
		{"guess", "", ErrInvalidAccessCode},
	}
	for _, tc := range cases {
		got, err := codes.Redeem(tc.code)
		if !errors.Is(err, tc.err) || got != tc.want {
			t.Fatalf("redeem %q: got %q, %v", tc.code, got, err)
		}
	}
}

func TestParseAccessCodesRejectsBadEntries(t *testing.T) {
	for _, list := range []string{
		"gm",
		"gm:not-a-hash",
		"wizard:" + mustHash(t, "whatever1"),
		"player:" + mustHash(t, "whatever1"),
	} {
		if _, err := ParseAccessCodes(list); err == nil {
			t.Fatalf("accepted %q", list)
		}
	}
	codes, err := ParseAccessCodes("")
	if err != nil || codes.Len() != 0 {
		t.Fatalf("empty list: %v", err)
	}
}

func TestHashAccessCode(t *testing.T) {
	if _, err := HashAccessCode("short"); err == nil {
		t.Fatal("short code accepted")
	}
	h, err := HashAccessCode("long-enough-code")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	codes, err := ParseAccessCodes("gm:" + h)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if role, err := codes.Redeem("long-enough-code"); err != nil || role != game.RoleGM {
		t.Fatalf("redeem: %q %v", role, err)
	}
}
