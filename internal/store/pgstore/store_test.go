package pgstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"forge/internal/game"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: "40001"}, true},
		{&pgconn.PgError{Code: "40P01"}, true},
		{fmt.Errorf("lock weapon: %w", &pgconn.PgError{Code: "40001"}), true},
		{&pgconn.PgError{Code: "23505"}, false},
		{&pgconn.PgError{Code: "23514"}, false},
		{game.ErrInsufficientFunds, false},
		{errors.New("connection reset"), false},
	}
	for _, tc := range tests {
		if got := isRetryable(tc.err); got != tc.want {
			t.Fatalf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestTranslate(t *testing.T) {
	check := &pgconn.PgError{Code: "23514", ConstraintName: "accounts_gold_check"}
	err := translate(check)
	if !errors.Is(err, game.ErrInvariant) {
		t.Fatalf("check violation: got %v", err)
	}
	if game.KindOf(err) != game.KindInternal {
		t.Fatalf("check violation kind %v", game.KindOf(err))
	}

	for _, in := range []error{
		game.ErrWeaponNotFound,
		&pgconn.PgError{Code: "23505"},
		errors.New("boom"),
	} {
		if got := translate(in); got != in {
			t.Fatalf("translate(%v) = %v, want unchanged", in, got)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "weapons_account_id_base_name_key"}) {
		t.Fatal("23505 should be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23514"}) || isUniqueViolation(errors.New("23505")) {
		t.Fatal("only pg 23505 is a unique violation")
	}
}

func TestSleepWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if err := sleepWithContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("got %v", err)
	}
}
