package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignUpReadsUserWithoutSession(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		token string
	}{
		{
			name:  "confirmation pending",
			body:  `{"id":"u-1","email":"a@example.com","user_metadata":{"username":"ash"}}`,
			token: "",
		},
		{
			name:  "session issued",
			body:  `{"access_token":"at","refresh_token":"rt","token_type":"bearer","user":{"id":"u-1","email":"a@example.com","user_metadata":{"username":"ash"}}}`,
			token: "at",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/auth/v1/signup" || r.Header.Get("apikey") != "anon" {
					t.Errorf("unexpected request %s apikey=%q", r.URL.Path, r.Header.Get("apikey"))
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s, err := NewSupabaseClient(srv.URL, "anon").SignUp(context.Background(), "a@example.com", "pw", "ash")
			if err != nil {
				t.Fatalf("signup: %v", err)
			}
			if s.User.ID != "u-1" || s.User.Metadata.Username != "ash" || s.AccessToken != tc.token {
				t.Fatalf("session %+v", s)
			}
		})
	}
}
