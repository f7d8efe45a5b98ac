package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"forge/internal/game"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/websocket"
)

func sample() game.Announcement {
	return game.Announcement{
		AccountID:  "acct-1",
		Username:   "alice",
		WeaponID:   7,
		WeaponName: "Relic",
		Level:      12,
		At:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestHeadline(t *testing.T) {
	if got := Headline(sample()); got != "alice forged Relic to +12!" {
		t.Fatalf("headline %q", got)
	}
}

func TestHubDeliversToSpectators(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Announce(context.Background(), sample()); err != nil {
		t.Fatalf("announce: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Level    int    `json:"level"`
		Headline string `json:"headline"`
	}
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != "enhancement" || got.Username != "alice" || got.Level != 12 || got.Headline == "" {
		t.Fatalf("message %+v", got)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type stubSink struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSink) Announce(context.Context, game.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func TestFanoutReachesEverySink(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &stubSink{}, &stubSink{err: boom}, &stubSink{}
	err := Fanout{a, b, c}.Announce(context.Background(), sample())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Fatalf("calls %d %d %d", a.calls, b.calls, c.calls)
	}
	if err := (Fanout{a}).Announce(context.Background(), sample()); err != nil {
		t.Fatalf("clean fanout: %v", err)
	}
}

type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestDiscordSinkExecutesWebhook(t *testing.T) {
	var gotPath string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewDiscordSink("123", "secret")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	target, _ := url.Parse(srv.URL)
	sink.session.Client = &http.Client{Transport: rewriteTransport{target: target}}

	if err := sink.Announce(context.Background(), sample()); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/webhooks/123/secret") {
		t.Fatalf("path %q", gotPath)
	}
	embeds, _ := body["embeds"].([]any)
	if len(embeds) != 1 {
		t.Fatalf("embeds %v", body)
	}
}

func TestTelegramSinkSendsMessage(t *testing.T) {
	var sent url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"forge","username":"forge_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			sent = r.PostForm
			io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"group"},"text":"ok"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bot, err := tgbotapi.NewBotAPIWithClient("tok", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	sink := NewTelegramSinkWithBot(bot, 42)
	if err := sink.Announce(context.Background(), sample()); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if sent.Get("chat_id") != "42" || sent.Get("text") != Headline(sample()) {
		t.Fatalf("sent %v", sent)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Announce(ctx, sample()); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled announce: %v", err)
	}
}
