// Package gateway issues authenticated requests against the SRT Gateway backend.
//
// It owns the session side effects of HTTP traffic: every request carries the
// stored bearer token, and a 401 or 403 tears the session down and sends the
// operator back to the login view before the caller sees a rejection.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/visual-alchemy/blackgate-project/session"
)

var (
	// ErrUnauthorized matches every *AuthError.
	ErrUnauthorized = errors.New("authentication error")
	// ErrLoginFailed is returned by Login on any non-2xx answer.
	ErrLoginFailed = errors.New("login failed")
)

// AuthError reports a 401/403 answer. By the time it is returned the session
// has been cleared and the navigator invoked.
type AuthError struct {
	StatusCode int
	Path       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication error: HTTP %d on %s", e.StatusCode, e.Path)
}

func (e *AuthError) Is(target error) bool { return target == ErrUnauthorized }

// Navigator moves the operator to the login view.
type Navigator interface {
	NavigateToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) NavigateToLogin() { f() }

// Observer is told about every completed exchange. Used for metrics.
type Observer interface {
	ObserveResponse(method, path string, status int)
}

type LogFunc func(format string, args ...any)

// Options describes one request. JSON and Body are mutually exclusive: JSON is
// encoded and sent as application/json, Body is sent as-is and never receives
// the JSON content type.
type Options struct {
	Method string
	Header http.Header
	JSON   any
	Body   io.Reader
}

// LoginResult is the payload of POST /api/login.
type LoginResult struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Session   *session.Store
	Navigator Navigator
	Observer  Observer
	LogFunc   LogFunc
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

type Gateway struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Store
	nav        Navigator
	observer   Observer
	logFn      LogFunc
}

func New(c Config) *Gateway {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	nav := c.Navigator
	if nav == nil {
		nav = NavigatorFunc(func() {})
	}
	return &Gateway{
		baseURL:    strings.TrimRight(c.BaseURL, "/"),
		httpClient: hc,
		session:    c.Session,
		nav:        nav,
		observer:   c.Observer,
		logFn:      logFn,
	}
}

// BaseURL returns the configured backend base URL.
func (g *Gateway) BaseURL() string { return g.baseURL }

// Session returns the store the gateway reads tokens from.
func (g *Gateway) Session() *session.Store { return g.session }

// Resolve turns a backend path into a full URL. Absolute URLs pass through.
func (g *Gateway) Resolve(path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return g.baseURL + path
}

// AuthFetch performs an authenticated request. A 401/403 answer clears the
// session, navigates to login and returns an *AuthError; every other status is
// handed back to the caller with an open body.
func (g *Gateway) AuthFetch(ctx context.Context, path string, opts *Options) (*http.Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	raw := false
	switch {
	case opts.JSON != nil && opts.Body != nil:
		return nil, fmt.Errorf("gateway %s %s: both JSON and Body set", method, path)
	case opts.JSON != nil:
		data, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, fmt.Errorf("gateway marshal: %w", err)
		}
		body = bytes.NewReader(data)
	case opts.Body != nil:
		body = opts.Body
		raw = true
	}

	req, err := http.NewRequestWithContext(ctx, method, g.Resolve(path), body)
	if err != nil {
		return nil, fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if tok, err := g.session.Token(); err != nil {
		g.logFn("gateway: %v", err)
	} else if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if !raw && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	if g.observer != nil {
		g.observer.ObserveResponse(method, path, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		g.expire()
		return nil, &AuthError{StatusCode: resp.StatusCode, Path: path}
	}
	return resp, nil
}

// expire clears the session and navigates to login. Safe to call concurrently.
func (g *Gateway) expire() {
	if err := g.session.Clear(); err != nil {
		g.logFn("gateway: clear session: %v", err)
	}
	g.nav.NavigateToLogin()
}

// Login posts credentials without authentication and persists the returned
// token and user, replacing any previous session.
func (g *Gateway) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	payload := map[string]any{
		"login": map[string]string{
			"user":     username,
			"password": password,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gateway marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Resolve("/api/login"), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway login: %w", err)
	}
	defer resp.Body.Close()
	if g.observer != nil {
		g.observer.ObserveResponse(http.MethodPost, "/api/login", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrLoginFailed
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("gateway login decode: %w", err)
	}
	if err := g.session.SetToken(result.Token); err != nil {
		return nil, err
	}
	if err := g.session.SetUser(result.User); err != nil {
		return nil, err
	}
	g.logFn("gateway: logged in as %s", result.User.Name())
	return &result, nil
}

// Logout clears the session and navigates to login.
func (g *Gateway) Logout() {
	g.expire()
}
