package www

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/visual-alchemy/blackgate-project/gateway"
)

const sessionName = "srtconsole-session"

func newSessionStore(secret string) *sessions.CookieStore {
	if secret == "" {
		secret = "srtconsole-default-secret-change-me"
	}
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.HttpOnly = true
	s.Options.Secure = false // the console usually runs on plain HTTP next to the gateway
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

// tokenFingerprint identifies a gateway token in the browser cookie without
// storing the token itself.
func tokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// isAuthenticated requires a browser cookie issued for the gateway token the
// session holds now. A gateway 401 clears the token, and a later login by
// someone else stores a different one, so an old cookie never comes back.
func (h *Handlers) isAuthenticated(r *http.Request) bool {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return false
	}
	auth, _ := session.Values["authenticated"].(bool)
	fp, _ := session.Values["token_fp"].(string)
	if !auth || fp == "" {
		return false
	}
	token, err := h.engine.Session().Token()
	if err != nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(fp), []byte(tokenFingerprint(token))) == 1
}

func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.isAuthenticated(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) getUsername(r *http.Request) string {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return ""
	}
	username, _ := session.Values["username"].(string)
	return username
}

func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "login", map[string]any{
		"authenticated": h.isAuthenticated(r),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin accepts a form post or a JSON body.
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	res, err := h.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, gateway.ErrLoginFailed) {
			h.jsonError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		log.Printf("auth: login: %v", err)
		h.jsonError(w, "Login failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	name := res.User.Name()
	if name == "" {
		name = req.Username
	}
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["username"] = name
	session.Values["token_fp"] = tokenFingerprint(res.Token)
	if err := session.Save(r, w); err != nil {
		log.Printf("auth: session save error: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.engine.Logout()
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Values["username"] = ""
	delete(session.Values, "token_fp")
	session.Save(r, w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
