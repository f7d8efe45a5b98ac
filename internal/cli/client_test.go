package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"forge/internal/auth"
	"forge/internal/game"
)

func TestEnhanceSendsAuthAndIdempotency(t *testing.T) {
	var gotAuth, gotIdem, gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "success", "new_level": 1})
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL+"/").Enhance(context.Background(), "tok", 12, "key-1")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/weapons/12/enhance" {
		t.Fatalf("request %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok" || gotIdem != "key-1" {
		t.Fatalf("headers auth=%q idem=%q", gotAuth, gotIdem)
	}
	if out["result"] != "success" {
		t.Fatalf("out %v", out)
	}
}

func TestErrorBodyBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token: expired"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Me(context.Background(), "old")
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err.Error() != "api status 401: invalid token: expired" {
		t.Fatalf("message %q", err.Error())
	}
}

func TestGMAdjustOmitsNilAmounts(t *testing.T) {
	var body map[string]any
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"balances":{}}`))
	}))
	defer srv.Close()

	gold := int64(500)
	if _, err := NewClient(srv.URL).GMAdjust(context.Background(), "tok", "acct 1", "delta", &gold, nil, nil); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if gotPath != "/v1/gm/accounts/acct 1/balances" {
		t.Fatalf("path %q", gotPath)
	}
	if body["mode"] != "delta" || body["gold"] != float64(500) {
		t.Fatalf("body %v", body)
	}
	if _, ok := body["choco"]; ok {
		t.Fatalf("choco should be omitted: %v", body)
	}
}

func TestLimitQuery(t *testing.T) {
	if limitQuery(0) != "" || limitQuery(-3) != "" {
		t.Fatal("non-positive limits should be dropped")
	}
	if limitQuery(25) != "?limit=25" {
		t.Fatalf("got %q", limitQuery(25))
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("FORGE_HOME", t.TempDir())
	if _, err := LoadSession(); err == nil {
		t.Fatal("expected missing session error")
	}
	want := Session{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		APIBase:      "http://localhost:8080",
		Email:        "e@x.io",
		UserID:       "u",
		Username:     "smith",
		Role:         game.RoleGM,
	}
	if err := SaveSession(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("expiry %v want %v", got.ExpiresAt, want.ExpiresAt)
	}
	got.ExpiresAt = want.ExpiresAt
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatal("expected cleared session")
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clearing twice: %v", err)
	}
}

func TestNewSessionAndRenew(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sess := NewSession(auth.Session{
		AccessToken:  "a1",
		RefreshToken: "r1",
		ExpiresIn:    3600,
		User:         auth.Identity{ID: "u", Email: "e@x.io", Metadata: auth.Metadata{Username: "smith"}},
	}, " http://localhost:8080/ ", now)
	if sess.APIBase != "http://localhost:8080" || sess.Username != "smith" || sess.UserID != "u" {
		t.Fatalf("session %+v", sess)
	}
	if sess.Expiring(now) || !sess.Expiring(now.Add(59*time.Minute+45*time.Second)) {
		t.Fatalf("expiry window wrong: %v", sess.ExpiresAt)
	}

	sess.Renew(auth.Session{AccessToken: "a2", ExpiresIn: 60}, now.Add(time.Hour))
	if sess.AccessToken != "a2" || sess.RefreshToken != "r1" {
		t.Fatalf("renew lost tokens: %+v", sess)
	}
	if !sess.ExpiresAt.Equal(now.Add(time.Hour + time.Minute)) {
		t.Fatalf("renewed expiry %v", sess.ExpiresAt)
	}

	sess.Renew(auth.Session{AccessToken: "a3", RefreshToken: "r3"}, now)
	if sess.RefreshToken != "r3" || !sess.ExpiresAt.IsZero() || sess.Expiring(now.Add(24*time.Hour)) {
		t.Fatalf("unknown expiry should never expire locally: %+v", sess)
	}
}

func TestSessionServedBy(t *testing.T) {
	sess := Session{APIBase: "https://forge.example.com"}
	if !sess.ServedBy("https://forge.example.com/") {
		t.Fatal("trailing slash should match")
	}
	if sess.ServedBy("http://localhost:8080") {
		t.Fatal("other server should not match")
	}
	if !(Session{}).ServedBy("http://anything") {
		t.Fatal("legacy session without a base should match")
	}
}

func TestSessionRequireGM(t *testing.T) {
	tests := []struct {
		role game.Role
		ok   bool
	}{
		{"", true},
		{game.RoleGM, true},
		{game.RolePlayer, false},
		{game.RoleBetaTester, false},
	}
	for _, tc := range tests {
		err := Session{Role: tc.role}.RequireGM()
		if (err == nil) != tc.ok {
			t.Fatalf("role %q: %v", tc.role, err)
		}
		if err != nil && !errors.Is(err, ErrNotGM) {
			t.Fatalf("role %q: want ErrNotGM, got %v", tc.role, err)
		}
	}
}
