package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestAuthenticator(t *testing.T, now time.Time) *TokenAuthenticator {
	t.Helper()
	a, err := NewTokenAuthenticator("test-secret-0123456789")
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	a.now = func() time.Time { return now }
	return a
}

func TestNewTokenAuthenticatorRequiresSecret(t *testing.T) {
	if _, err := NewTokenAuthenticator("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, now)

	token, err := a.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := a.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != "alice" {
		t.Fatalf("player = %q, want %q", got, "alice")
	}

	if _, err := a.Issue("", time.Hour); err == nil {
		t.Fatal("expected error for empty player")
	}
	if _, err := a.Issue("alice", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, now)
	valid, err := a.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := newTestAuthenticator(t, now)
	other.secret = []byte("a-different-secret")
	wrongKey, _ := other.Issue("alice", time.Hour)

	foreign := newTestAuthenticator(t, now)
	foreign.issuer = "someone-else"
	wrongIssuer, _ := foreign.Issue("alice", time.Hour)

	past := newTestAuthenticator(t, now.Add(-2*time.Hour))
	expired, _ := past.Issue("alice", time.Hour)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: DefaultIssuer, Subject: "alice",
	}).SignedString(a.secret)

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: DefaultIssuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(a.secret)

	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Issuer: DefaultIssuer, Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(a.secret)

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"malformed", "not-a-token", "malformed"},
		{"tampered", valid[:len(valid)-2] + "xx", "signature"},
		{"wrong key", wrongKey, "signature"},
		{"wrong issuer", wrongIssuer, "issuer"},
		{"expired", expired, "expired"},
		{"no expiry", noExp, "invalid"},
		{"no subject", noSubject, "subject"},
		{"other algorithm", hs512, "signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(tt.token)
			if !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("err = %v, want ErrUnauthenticated", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestTokenAuthenticate(t *testing.T) {
	now := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, now)
	token, _ := a.Issue("bob", time.Hour)

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    string
		wantErr bool
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "bob", false},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, "bob", false},
		{"query token", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, "bob", false},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, "", true},
		{"missing", func(r *http.Request) {}, "", true},
		{"header ignored", func(r *http.Request) { r.Header.Set(PlayerHeader, "mallory") }, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
			tt.prepare(r)
			got, err := a.Authenticate(r)
			if tt.wantErr {
				if !errors.Is(err, ErrUnauthenticated) {
					t.Fatalf("err = %v, want ErrUnauthenticated", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if got != tt.want {
				t.Errorf("player = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeaderAuthenticate(t *testing.T) {
	var a HeaderAuthenticator

	r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	r.Header.Set(PlayerHeader, "  carol ")
	if got, err := a.Authenticate(r); err != nil || got != "carol" {
		t.Fatalf("player = %q, %v; want carol", got, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws?player_id=dave", nil)
	if got, err := a.Authenticate(r); err != nil || got != "dave" {
		t.Fatalf("player = %q, %v; want dave", got, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	if _, err := a.Authenticate(r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}
