package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"forge/internal/auth"
	"forge/internal/game"
	"forge/internal/store/sqlitestore"

	"golang.org/x/crypto/bcrypt"
)

type fakeProvider struct {
	users map[string]auth.Identity // access token -> identity
	// confirmEmail withholds tokens from signup responses.
	confirmEmail bool
}

func (f *fakeProvider) SignUp(_ context.Context, email, _, username string) (auth.Session, error) {
	id := auth.Identity{ID: "id-" + email, Email: email, Metadata: auth.Metadata{Username: username}}
	token := "tok-" + email
	f.users[token] = id
	if f.confirmEmail {
		return auth.Session{User: id}, nil
	}
	return auth.Session{AccessToken: token, TokenType: "bearer", User: id}, nil
}

func (f *fakeProvider) Login(_ context.Context, email, _ string) (auth.Session, error) {
	token := "tok-" + email
	id, ok := f.users[token]
	if !ok {
		return auth.Session{}, errors.New("invalid login credentials")
	}
	return auth.Session{AccessToken: token, User: id}, nil
}

func (f *fakeProvider) Refresh(context.Context, string) (auth.Session, error) {
	return auth.Session{}, errors.New("refresh not supported")
}

func (f *fakeProvider) VerifyAccessToken(_ context.Context, token string) (auth.Identity, error) {
	id, ok := f.users[token]
	if !ok {
		return auth.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

type fixedRoll float64

func (f fixedRoll) Float64() float64 { return float64(f) }

type testServer struct {
	t    *testing.T
	srv  *httptest.Server
	prov *fakeProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := sqlitestore.Open(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("gm-secret-code"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	codes, err := auth.ParseAccessCodes("gm:" + string(hash))
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	svc := game.NewService(st, logger, game.WithRandomSource(fixedRoll(0)))
	prov := &fakeProvider{users: map[string]auth.Identity{}}
	s := New(logger, prov, codes, svc, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, prov: prov}
}

func (ts *testServer) do(method, path, token string, body any, headers map[string]string) (int, map[string]any) {
	ts.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	if err != nil {
		ts.t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (ts *testServer) signup(email, username, code string) string {
	ts.t.Helper()
	status, out := ts.do(http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": email, "password": "pw", "username": username, "access_code": code,
	}, nil)
	if status != http.StatusCreated {
		ts.t.Fatalf("signup %s: %d %v", email, status, out)
	}
	return out["access_token"].(string)
}

func TestHealthzAndRates(t *testing.T) {
	ts := newTestServer(t)
	if status, out := ts.do(http.MethodGet, "/healthz", "", nil, nil); status != http.StatusOK || out["ok"] != true {
		t.Fatalf("healthz %d %v", status, out)
	}
	status, out := ts.do(http.MethodGet, "/v1/rates", "", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("rates %d", status)
	}
	if rates, _ := out["rates"].([]any); len(rates) != game.MaxLevel {
		t.Fatalf("rates %v", out["rates"])
	}
}

func TestSignupBindsRoleBeforeEmailConfirmation(t *testing.T) {
	ts := newTestServer(t)
	ts.prov.confirmEmail = true

	status, out := ts.do(http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "gm@example.com", "password": "pw", "username": "warden", "access_code": "gm-secret-code",
	}, nil)
	if status != http.StatusCreated || out["access_token"] != "" {
		t.Fatalf("signup %d %v", status, out)
	}

	status, out = ts.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "gm@example.com", "password": "pw",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("login %d %v", status, out)
	}
	tok := out["access_token"].(string)
	status, me := ts.do(http.MethodGet, "/v1/me", tok, nil, nil)
	acct := me["account"].(map[string]any)
	if status != http.StatusOK || acct["role"] != string(game.RoleGM) {
		t.Fatalf("role after confirmed login %d %v", status, acct)
	}
	if bal := acct["balances"].(map[string]any); bal["gold"].(float64) != float64(game.GMStarterGold) {
		t.Fatalf("gm starter gold %v", bal)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	if status, _ := ts.do(http.MethodGet, "/v1/me", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("no token: %d", status)
	}
	if status, _ := ts.do(http.MethodGet, "/v1/me", "bogus", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", status)
	}
}

func TestWeaponFlow(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.signup("alice@example.com", "alice", "")

	status, me := ts.do(http.MethodGet, "/v1/me", tok, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("me %d %v", status, me)
	}
	acct := me["account"].(map[string]any)
	if acct["role"] != "player" || acct["username"] != "alice" {
		t.Fatalf("account %v", acct)
	}

	status, created := ts.do(http.MethodPost, "/v1/weapons", tok, map[string]any{"name": "Sword"}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create %d %v", status, created)
	}
	id := int64(created["id"].(float64))

	if status, _ := ts.do(http.MethodPost, "/v1/weapons", tok, map[string]any{"name": "Sword"}, nil); status != http.StatusConflict {
		t.Fatalf("duplicate weapon: %d", status)
	}
	if status, _ := ts.do(http.MethodPost, "/v1/weapons", tok, map[string]any{"name": "Ghost", "hidden": true}, nil); status != http.StatusForbidden {
		t.Fatalf("player hidden weapon: %d", status)
	}

	enhancePath := fmt.Sprintf("/v1/weapons/%d/enhance", id)
	key := map[string]string{"Idempotency-Key": "attempt-1"}
	status, res := ts.do(http.MethodPost, enhancePath, tok, nil, key)
	if status != http.StatusOK || res["result"] != "success" || res["new_level"].(float64) != 1 {
		t.Fatalf("enhance %d %v", status, res)
	}
	if status, _ := ts.do(http.MethodPost, enhancePath, tok, nil, key); status != http.StatusConflict {
		t.Fatalf("replayed key: %d", status)
	}

	status, list := ts.do(http.MethodGet, "/v1/weapons", tok, nil, nil)
	weapons, _ := list["weapons"].([]any)
	if status != http.StatusOK || len(weapons) != 1 {
		t.Fatalf("list %d %v", status, list)
	}
	if name := weapons[0].(map[string]any)["display_name"]; name != "Sword +1" {
		t.Fatalf("display name %v", name)
	}

	status, hist := ts.do(http.MethodGet, fmt.Sprintf("/v1/weapons/%d/history", id), tok, nil, nil)
	if attempts, _ := hist["attempts"].([]any); status != http.StatusOK || len(attempts) != 1 {
		t.Fatalf("history %d %v", status, hist)
	}

	sellPath := fmt.Sprintf("/v1/weapons/%d/sell", id)
	if status, _ := ts.do(http.MethodPost, sellPath, tok, map[string]any{"confirm": false}, nil); status != http.StatusBadRequest {
		t.Fatalf("unconfirmed sale: %d", status)
	}
	status, sold := ts.do(http.MethodPost, sellPath, tok, map[string]any{"confirm": true}, nil)
	if status != http.StatusOK || sold["gold_earned"].(float64) != 10 {
		t.Fatalf("sell %d %v", status, sold)
	}
	if status, _ := ts.do(http.MethodPost, enhancePath, tok, nil, nil); status != http.StatusNotFound {
		t.Fatalf("enhance sold weapon: %d", status)
	}
}

func TestConvertAndCheckIn(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.signup("bob@example.com", "bob", "")

	status, out := ts.do(http.MethodPost, "/v1/currency/convert", tok, map[string]any{"from": "money", "to": "gold", "amount": 1}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unsupported conversion %d %v", status, out)
	}
	status, _ = ts.do(http.MethodPost, "/v1/currency/convert", tok, map[string]any{"from": "gold", "to": "choco", "amount": 120_000}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unfunded conversion %d", status)
	}

	status, out = ts.do(http.MethodPost, "/v1/checkin", tok, nil, nil)
	if status != http.StatusOK || out["reward"].(float64) != float64(game.CheckInBaseGold) {
		t.Fatalf("checkin %d %v", status, out)
	}
	if status, _ := ts.do(http.MethodPost, "/v1/checkin", tok, nil, nil); status != http.StatusConflict {
		t.Fatalf("second checkin %d", status)
	}

	status, out = ts.do(http.MethodPost, "/v1/currency/convert", tok, map[string]any{"from": "gold", "to": "choco", "amount": 70_000}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("below minimum conversion %d %v", status, out)
	}
	status, me := ts.do(http.MethodGet, "/v1/me", tok, nil, nil)
	bal := me["account"].(map[string]any)["balances"].(map[string]any)
	if status != http.StatusOK || bal["gold"].(float64) != float64(game.StarterGold+game.CheckInBaseGold) || bal["choco"].(float64) != 0 {
		t.Fatalf("balances after rejected conversions %d %v", status, bal)
	}
}

func TestBattleEndpoint(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup("alice@example.com", "alice", "")
	bob := ts.signup("bob@example.com", "bob", "")

	_, a := ts.do(http.MethodPost, "/v1/weapons", alice, map[string]any{"name": "Sword"}, nil)
	_, b := ts.do(http.MethodPost, "/v1/weapons", bob, map[string]any{"name": "Axe"}, nil)
	body := map[string]any{"attacker_weapon_id": a["id"], "defender_weapon_id": b["id"]}

	if status, _ := ts.do(http.MethodPost, "/v1/battles", bob, body, nil); status != http.StatusForbidden {
		t.Fatalf("battle with foreign weapon: %d", status)
	}
	status, out := ts.do(http.MethodPost, "/v1/battles", alice, body, nil)
	if status != http.StatusOK || out["gold_exchanged"].(float64) != 1_000 {
		t.Fatalf("battle %d %v", status, out)
	}

	status, out = ts.do(http.MethodGet, "/v1/battles", bob, nil, nil)
	if battles, _ := out["battles"].([]any); status != http.StatusOK || len(battles) != 1 {
		t.Fatalf("history %d %v", status, out)
	}
	status, out = ts.do(http.MethodGet, "/v1/rankings?limit=5", "", nil, nil)
	rows, _ := out["rankings"].([]any)
	if status != http.StatusOK || len(rows) != 2 || rows[0].(map[string]any)["username"] != "alice" {
		t.Fatalf("rankings %d %v", status, out)
	}
}

func TestGMEndpoints(t *testing.T) {
	ts := newTestServer(t)
	player := ts.signup("p@example.com", "player1", "")

	status, _ := ts.do(http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "x@example.com", "password": "pw", "access_code": "wrong-code",
	}, nil)
	if status != http.StatusForbidden {
		t.Fatalf("bad access code: %d", status)
	}
	gm := ts.signup("gm@example.com", "keeper", "gm-secret-code")

	if status, _ := ts.do(http.MethodPost, "/v1/gm/grant", player, map[string]any{"denomination": "gold", "amount": 5}, nil); status != http.StatusForbidden {
		t.Fatalf("player grant: %d", status)
	}
	status, out := ts.do(http.MethodPost, "/v1/gm/grant", gm, map[string]any{"denomination": "choco", "amount": 5}, nil)
	if status != http.StatusOK || out["accounts"].(float64) != 2 {
		t.Fatalf("grant %d %v", status, out)
	}

	target := "id-p@example.com"
	status, out = ts.do(http.MethodPatch, "/v1/gm/accounts/"+target+"/balances", gm, map[string]any{"mode": "set", "gold": 1}, nil)
	if status != http.StatusOK || out["balances"].(map[string]any)["gold"].(float64) != 1 {
		t.Fatalf("adjust %d %v", status, out)
	}
	status, _ = ts.do(http.MethodPatch, "/v1/gm/accounts/"+target+"/balances", gm, map[string]any{"mode": "delta", "money": -1}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("negative adjust %d", status)
	}
	status, _ = ts.do(http.MethodPatch, "/v1/gm/accounts/nobody/balances", gm, map[string]any{"mode": "set", "gold": 1}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("missing account %d", status)
	}

	status, out = ts.do(http.MethodPost, "/v1/weapons", gm, map[string]any{"name": "Phantom Edge", "hidden": true}, nil)
	if status != http.StatusCreated || out["hidden"] != true {
		t.Fatalf("gm hidden weapon %d %v", status, out)
	}
}

func TestWriteDomainErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, fmt.Errorf("%w: ledger drift", game.ErrInvariant))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "drift") {
		t.Fatalf("invariant leaked: %d %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	writeDomainError(rec, game.ErrTxConflict)
	if rec.Code != http.StatusConflict {
		t.Fatalf("tx conflict status %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"Basic abc":      "",
		"Bearerabc":      "",
	}
	for in, want := range cases {
		if got := bearerToken(in); got != want {
			t.Fatalf("bearerToken(%q) = %q want %q", in, got, want)
		}
	}
}
