package www

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/visual-alchemy/blackgate-project/config"
	"github.com/visual-alchemy/blackgate-project/engine"
	"github.com/visual-alchemy/blackgate-project/metrics"
	"github.com/visual-alchemy/blackgate-project/session"
	"github.com/visual-alchemy/blackgate-project/store"
	"github.com/visual-alchemy/blackgate-project/views"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func routeJSON(id, status string) map[string]any {
	return map[string]any{
		"id":     id,
		"name":   "cam-" + id,
		"status": status,
		"schema": "SRT",
		"destinations": []map[string]any{
			{"id": "d1", "name": "studio", "schema": "SRT", "type": "srtsink"},
		},
	}
}

type testConsole struct {
	srv *httptest.Server
	eng *engine.Engine
	db  *store.DB
	c   *http.Client
}

// browser returns a client with its own cookie jar, as a second operator.
func (tc *testConsole) browser() *testConsole {
	jar, _ := cookiejar.New(nil)
	other := *tc
	other.c = &http.Client{
		Jar:           jar,
		CheckRedirect: tc.c.CheckRedirect,
	}
	return &other
}

// newTestConsole serves the console in front of a fake gateway backend.
// /api/login accepts any user with password "secret" and issues a new token
// per login; every other path needs the latest token and is answered by
// backend. opts adjust the engine config.
func newTestConsole(t *testing.T, backend http.HandlerFunc, opts ...func(*engine.Config)) *testConsole {
	t.Helper()
	var logins atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/login" {
			var body struct {
				Login struct {
					User     string `json:"user"`
					Password string `json:"password"`
				} `json:"login"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.Login.Password != "secret" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad credentials"})
				return
			}
			n := logins.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"token": fmt.Sprintf("tok-%d", n), "user": body.Login.User})
			return
		}
		if r.Header.Get("Authorization") != fmt.Sprintf("Bearer tok-%d", logins.Load()) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		backend(w, r)
	}))
	t.Cleanup(api.Close)

	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	cfg.API.BaseURL = api.URL
	cfg.API.Timeout = 5 * time.Second
	cfg.Web.SessionSecret = "test-secret"

	ec := engine.Config{
		AppConfig: cfg,
		DB:        db,
		Session:   session.New(session.NewMemoryBackend()),
		LogFunc:   func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(&ec)
	}
	eng := engine.New(ec)
	eng.Start()
	t.Cleanup(eng.Stop)

	handler, stop := NewRouter(eng)
	t.Cleanup(stop)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	c := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testConsole{srv: srv, eng: eng, db: db, c: c}
}

func (tc *testConsole) login(t *testing.T) {
	t.Helper()
	resp, err := tc.c.PostForm(tc.srv.URL+"/login", url.Values{"username": {"admin"}, "password": {"secret"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("login = %d %q, want 303 /", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func (tc *testConsole) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := tc.c.Get(tc.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (tc *testConsole) post(t *testing.T, path, contentType string, body []byte) *http.Response {
	t.Helper()
	resp, err := tc.c.Post(tc.srv.URL+path, contentType, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

type testPage struct {
	Page        string               `json:"page"`
	User        string               `json:"user"`
	Breadcrumbs []views.Crumb        `json:"breadcrumbs"`
	Flashes     []views.Notification `json:"flashes"`
	Data        json.RawMessage      `json:"data"`
}

func crumbTitles(c []views.Crumb) string {
	titles := make([]string, len(c))
	for i := range c {
		titles[i] = c[i].Title
	}
	return strings.Join(titles, " > ")
}

func TestProtectedPagesRedirectToLogin(t *testing.T) {
	tc := newTestConsole(t, http.NotFound)
	for _, path := range []string{"/", "/routes", "/routes/42", "/settings", "/system/nodes", "/events"} {
		resp := tc.get(t, path)
		resp.Body.Close()
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
			t.Errorf("GET %s = %d %q, want 303 /login", path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}
}

func TestLoginFailure(t *testing.T) {
	tc := newTestConsole(t, http.NotFound)
	resp, err := tc.c.PostForm(tc.srv.URL+"/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	if err != nil {
		t.Fatal(err)
	}
	body := decode[map[string]string](t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if body["error"] != "Invalid username or password" {
		t.Errorf("error = %q", body["error"])
	}
	if tc.eng.Session().IsAuthenticated() {
		t.Error("session authenticated after failed login")
	}
}

func TestRouteDetailPage(t *testing.T) {
	tc := newTestConsole(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/routes/42":
			writeJSON(w, http.StatusOK, map[string]any{"data": routeJSON("42", "stopped")})
		default:
			http.NotFound(w, r)
		}
	})
	tc.login(t)

	resp := tc.get(t, "/routes/42")
	page := decode[testPage](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := crumbTitles(page.Breadcrumbs); got != "Home > Routes > cam-42" {
		t.Errorf("breadcrumbs = %q", got)
	}
	if page.User != "admin" {
		t.Errorf("user = %q, want admin", page.User)
	}
	var data struct {
		Route struct {
			Name string `json:"name"`
		} `json:"route"`
		History []json.RawMessage `json:"history"`
	}
	json.Unmarshal(page.Data, &data)
	if data.Route.Name != "cam-42" {
		t.Errorf("route name = %q", data.Route.Name)
	}
}

func TestRouteStartFlashesOnRedirect(t *testing.T) {
	status := "stopped"
	tc := newTestConsole(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/routes/42":
			writeJSON(w, http.StatusOK, map[string]any{"data": routeJSON("42", status)})
		case "/api/routes/42/start":
			status = "started"
			writeJSON(w, http.StatusOK, map[string]any{"data": routeJSON("42", status)})
		case "/api/routes":
			writeJSON(w, http.StatusOK, map[string]any{"data": []any{routeJSON("42", status)}})
		default:
			http.NotFound(w, r)
		}
	})
	tc.login(t)

	resp := tc.post(t, "/routes/42/start?next=/routes", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/routes" {
		t.Fatalf("start = %d %q, want 303 /routes", resp.StatusCode, resp.Header.Get("Location"))
	}

	page := decode[testPage](t, tc.get(t, "/routes"))
	if len(page.Flashes) != 1 || page.Flashes[0].Level != views.LevelSuccess {
		t.Fatalf("flashes = %+v, want one success", page.Flashes)
	}

	// Flashes are shown once.
	page = decode[testPage](t, tc.get(t, "/routes"))
	if len(page.Flashes) != 0 {
		t.Errorf("flashes after reload = %+v", page.Flashes)
	}

	entries, err := tc.db.ListEntityAudit("route", "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].NewValue != "started" {
		t.Errorf("audit = %+v", entries)
	}
}

func TestRouteSaveValidation(t *testing.T) {
	tc := newTestConsole(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected backend call %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})
	tc.login(t)

	resp := tc.post(t, "/routes/new/edit", "application/json", []byte(`{"name":"","schema":"SRT"}`))
	body := decode[actionResponse](t, resp)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if body.OK || len(body.Errors) == 0 {
		t.Errorf("body = %+v, want field errors", body)
	}
	if len(body.Notifications) != 1 || body.Notifications[0].Message != "Please check the form for errors" {
		t.Errorf("notifications = %+v", body.Notifications)
	}
}

func TestNewRouteBreadcrumbs(t *testing.T) {
	tc := newTestConsole(t, http.NotFound)
	tc.login(t)

	page := decode[testPage](t, tc.get(t, "/routes/new/edit"))
	if got := crumbTitles(page.Breadcrumbs); got != "Home > Routes > New Route" {
		t.Errorf("breadcrumbs = %q", got)
	}
}

func TestBackendUnauthorizedLogsBrowserOut(t *testing.T) {
	tc := newTestConsole(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	tc.login(t)

	resp := tc.get(t, "/routes")
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("GET /routes = %d %q, want 303 /login", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp = tc.get(t, "/settings")
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("GET /settings after expiry = %d, want 303", resp.StatusCode)
	}
}

func TestStaleCookieNeedsNewLogin(t *testing.T) {
	var expired atomic.Bool
	expired.Store(true)
	tc := newTestConsole(t, func(w http.ResponseWriter, r *http.Request) {
		if expired.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{routeJSON("42", "stopped")}})
	})
	tc.login(t)
	resp := tc.get(t, "/routes")
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("GET /routes after backend 401 = %d, want 303", resp.StatusCode)
	}

	other := tc.browser()
	other.login(t)
	resp = other.get(t, "/routes")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second browser GET /routes = %d, want 200", resp.StatusCode)
	}

	resp = tc.get(t, "/routes")
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("first browser GET /routes = %d %q, want 303 /login", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestBackupDownloadReturnsLink(t *testing.T) {
	tc := newTestConsole(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/backup/create-backup-download-link" {
			writeJSON(w, http.StatusOK, map[string]string{"download_link": "/api/backup/download/abc"})
			return
		}
		http.NotFound(w, r)
	})
	tc.login(t)

	resp := tc.post(t, "/settings/backup", "application/json", nil)
	body := decode[actionResponse](t, resp)
	data, _ := body.Data.(map[string]any)
	want := tc.eng.Client().BaseURL() + "/api/backup/download/abc"
	if data["download_url"] != want {
		t.Errorf("download_url = %v, want %s", data["download_url"], want)
	}
}

func TestRestoreRejectsOtherFiles(t *testing.T) {
	tc := newTestConsole(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected backend call %s", r.URL.Path)
	})
	tc.login(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "routes.json")
	fw.Write([]byte("{}"))
	mw.Close()

	resp := tc.post(t, "/settings/restore", mw.FormDataContentType(), buf.Bytes())
	body := decode[actionResponse](t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(body.Notifications) != 1 || body.Notifications[0].Message != "You can only upload .backup files!" {
		t.Errorf("notifications = %+v", body.Notifications)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	tc := newTestConsole(t, http.NotFound, func(c *engine.Config) {
		c.Metrics = metrics.New()
	})

	health := decode[map[string]any](t, tc.get(t, "/healthz"))
	if health["status"] != "ok" || health["authenticated"] != false {
		t.Errorf("health = %+v", health)
	}

	resp := tc.get(t, "/metrics")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics = %d", resp.StatusCode)
	}
}

func TestEventsStreamEngineEvents(t *testing.T) {
	tc := newTestConsole(t, http.NotFound)
	tc.login(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, tc.srv.URL+"/events", nil)
	resp, err := tc.c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// The client registers once the handler runs; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hubClients(t, tc) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	tc.eng.Events.Emit(engine.Event{Type: engine.EventPipelineKilled, Payload: engine.PipelineKilledEvent{PID: 7, Command: "gst", Actor: "admin"}})

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if event != "pipeline.killed" {
		t.Errorf("event = %q, want pipeline.killed", event)
	}
	if !strings.Contains(data, `"pid":7`) {
		t.Errorf("data = %s", data)
	}
}

func hubClients(t *testing.T, tc *testConsole) int {
	health := decode[map[string]any](t, tc.get(t, "/healthz"))
	n, _ := health["sse_clients"].(float64)
	return int(n)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"/routes", true},
		{"/", true},
		{"/routes/42?tab=stats", true},
		{"", false},
		{"routes", false},
		{"//evil.example", false},
		{`/\evil.example`, false},
		{"https://evil.example", false},
		{"/routes\r\nLocation: x", false},
	}
	for _, tt := range tests {
		if got := localPath(tt.in); got != tt.want {
			t.Errorf("localPath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBackslashNextIsNotFollowed(t *testing.T) {
	tc := newTestConsole(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": routeJSON("42", "started")})
	})
	tc.login(t)

	resp := tc.post(t, "/routes/42/start?next="+url.QueryEscape(`/\evil.example`), "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode == http.StatusSeeOther {
		t.Errorf("redirected to %q, want an inline response", resp.Header.Get("Location"))
	}
}
