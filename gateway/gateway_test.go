package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/visual-alchemy/blackgate-project/session"
)

type countingNavigator struct {
	n atomic.Int32
}

func (c *countingNavigator) NavigateToLogin() { c.n.Add(1) }

func testGateway(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Gateway, *session.Store, *countingNavigator) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := session.New(session.NewMemoryBackend())
	nav := &countingNavigator{}
	g := New(Config{
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
		Session:   store,
		Navigator: nav,
		LogFunc:   func(string, ...any) {},
	})
	return srv, g, store, nav
}

func TestAuthFetchInjectsBearerAndJSON(t *testing.T) {
	_, g, store, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc123" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer abc123")
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID missing")
		}
		w.WriteHeader(http.StatusOK)
	})
	store.SetToken("abc123")

	resp, err := g.AuthFetch(context.Background(), "/api/routes", nil)
	if err != nil {
		t.Fatalf("AuthFetch: %v", err)
	}
	resp.Body.Close()
}

func TestAuthFetchWithoutTokenOmitsAuthorization(t *testing.T) {
	_, g, _, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
	})
	resp, err := g.AuthFetch(context.Background(), "/api/nodes", nil)
	if err != nil {
		t.Fatalf("AuthFetch: %v", err)
	}
	resp.Body.Close()
}

func TestAuthFetchRawBodyKeepsCallerContentType(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff}
	_, g, store, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/octet-stream" {
			t.Errorf("Content-Type = %q, want application/octet-stream", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !bytes.Equal(body, payload) {
			t.Errorf("body = %v, want %v", body, payload)
		}
	})
	store.SetToken("abc123")

	resp, err := g.AuthFetch(context.Background(), "/api/restore", &Options{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {"application/octet-stream"}},
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("AuthFetch: %v", err)
	}
	resp.Body.Close()
}

func TestAuthFetchRawBodyNeverGetsJSONDefault(t *testing.T) {
	_, g, _, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); strings.Contains(got, "json") {
			t.Errorf("Content-Type = %q, raw body must not be JSON", got)
		}
	})
	resp, err := g.AuthFetch(context.Background(), "/api/upload", &Options{
		Method: http.MethodPost,
		Body:   strings.NewReader("raw"),
	})
	if err != nil {
		t.Fatalf("AuthFetch: %v", err)
	}
	resp.Body.Close()
}

func TestAuthFetchJSONBody(t *testing.T) {
	_, g, _, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var got map[string]map[string]string
		json.NewDecoder(r.Body).Decode(&got)
		if got["route"]["name"] != "cam-1" {
			t.Errorf("body = %v", got)
		}
	})
	resp, err := g.AuthFetch(context.Background(), "/api/routes", &Options{
		Method: http.MethodPost,
		JSON:   map[string]any{"route": map[string]string{"name": "cam-1"}},
	})
	if err != nil {
		t.Fatalf("AuthFetch: %v", err)
	}
	resp.Body.Close()

	if _, err := g.AuthFetch(context.Background(), "/x", &Options{JSON: 1, Body: strings.NewReader("")}); err == nil {
		t.Error("expected error when both JSON and Body are set")
	}
}

func TestAuthFetchUnauthorizedClearsSession(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		_, g, store, nav := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		store.SetToken("stale")
		store.SetUser(session.UserName("admin"))

		resp, err := g.AuthFetch(context.Background(), "/api/routes", nil)
		if resp != nil {
			t.Errorf("status %d: response should be nil", status)
		}
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("status %d: err = %v, want ErrUnauthorized", status, err)
		}
		var ae *AuthError
		if !errors.As(err, &ae) || ae.StatusCode != status {
			t.Errorf("AuthError = %+v", ae)
		}
		if tok, _ := store.Token(); tok != "" {
			t.Errorf("token = %q after %d", tok, status)
		}
		if u, _ := store.User(); u != nil {
			t.Errorf("user = %s after %d", u, status)
		}
		if nav.n.Load() != 1 {
			t.Errorf("navigations = %d, want 1", nav.n.Load())
		}
	}
}

func TestConcurrentUnauthorizedIsIdempotent(t *testing.T) {
	_, g, store, nav := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	store.SetToken("stale")
	store.SetUser(session.UserName("admin"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = g.AuthFetch(context.Background(), "/api/routes", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("call %d: err = %v", i, err)
		}
	}
	if store.IsAuthenticated() {
		t.Error("still authenticated")
	}
	if u, _ := store.User(); u != nil {
		t.Errorf("user = %s", u)
	}
	if nav.n.Load() != 2 {
		t.Errorf("navigations = %d, want 2", nav.n.Load())
	}
}

func TestAuthFetchPassesOtherErrorsThrough(t *testing.T) {
	_, g, _, nav := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"already_started"}`))
	})
	resp, err := g.AuthFetch(context.Background(), "/api/routes/42/start", nil)
	if err != nil {
		t.Fatalf("AuthFetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if nav.n.Load() != 0 {
		t.Error("409 must not navigate")
	}
}

func TestAuthFetchNetworkFailure(t *testing.T) {
	srv, g, store, nav := testGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	store.SetToken("abc123")
	srv.Close()

	_, err := g.AuthFetch(context.Background(), "/api/routes", nil)
	if err == nil {
		t.Fatal("expected network error")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("network failure must not look like an auth error")
	}
	if !store.IsAuthenticated() {
		t.Error("network failure must not clear the session")
	}
	if nav.n.Load() != 0 {
		t.Error("network failure must not navigate")
	}
}

func TestResolve(t *testing.T) {
	g := New(Config{BaseURL: "http://127.0.0.1:4000/", Session: session.New(session.NewMemoryBackend())})
	tests := []struct {
		in, want string
	}{
		{"/api/routes", "http://127.0.0.1:4000/api/routes"},
		{"api/routes", "http://127.0.0.1:4000/api/routes"},
		{"https://cdn.example/backup.bin", "https://cdn.example/backup.bin"},
		{"http://other:4000/api/nodes", "http://other:4000/api/nodes"},
	}
	for _, tt := range tests {
		if got := g.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogin(t *testing.T) {
	_, g, store, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" || r.Method != http.MethodPost {
			t.Errorf("%s %s, want POST /api/login", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must be unauthenticated")
		}
		var req struct {
			Login struct {
				User     string `json:"user"`
				Password string `json:"password"`
			} `json:"login"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Login.User != "admin" || req.Login.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"abc123","user":"admin"}`))
	})
	store.SetToken("previous")

	res, err := g.Login(context.Background(), "admin", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "abc123" {
		t.Errorf("result token = %q", res.Token)
	}
	if tok, _ := store.Token(); tok != "abc123" {
		t.Errorf("stored token = %q, want %q", tok, "abc123")
	}
	u, _ := store.User()
	if u.Name() != "admin" {
		t.Errorf("stored user = %s, want admin", u)
	}
	if string(u) != `"admin"` {
		t.Errorf("raw user = %s, want %q", u, `"admin"`)
	}
}

func TestLoginFailure(t *testing.T) {
	_, g, store, nav := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := g.Login(context.Background(), "admin", "wrong")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}
	if store.IsAuthenticated() {
		t.Error("failed login must not authenticate")
	}
	if nav.n.Load() != 0 {
		t.Error("failed login must not navigate")
	}
}

func TestLogout(t *testing.T) {
	_, g, store, nav := testGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	store.SetToken("abc123")
	g.Logout()
	if store.IsAuthenticated() {
		t.Error("still authenticated after logout")
	}
	if nav.n.Load() != 1 {
		t.Errorf("navigations = %d, want 1", nav.n.Load())
	}
}
