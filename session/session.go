// Package session persists the console's auth token and user record.
//
// A Store is process-wide: every request gateway and view in the process shares
// one, and clearing it is idempotent so concurrent auth failures can race freely.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Fixed storage keys. There is no schema versioning.
const (
	TokenKey = "token"
	UserKey  = "user"
)

// Backend is durable key/value storage for session values.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// User is the backend's user record kept as raw JSON. The login endpoint
// currently returns a bare string ("admin"), older builds an object.
type User json.RawMessage

// UserName builds a User holding a JSON string.
func UserName(name string) User {
	b, _ := json.Marshal(name)
	return User(b)
}

// Name extracts a display name from the record.
func (u User) Name() string {
	if len(u) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(u, &s) == nil {
		return s
	}
	var obj map[string]any
	if json.Unmarshal(u, &obj) == nil {
		for _, k := range []string{"user", "username", "login", "name"} {
			if v, ok := obj[k].(string); ok {
				return v
			}
		}
	}
	return ""
}

func (u User) MarshalJSON() ([]byte, error) {
	if len(u) == 0 {
		return []byte("null"), nil
	}
	return u, nil
}

func (u *User) UnmarshalJSON(data []byte) error {
	if u == nil {
		return errors.New("session: UnmarshalJSON on nil User")
	}
	*u = append((*u)[0:0], data...)
	return nil
}

type Store struct {
	mu      sync.Mutex
	backend Backend
}

func New(b Backend) *Store {
	return &Store{backend: b}
}

// Backend returns the underlying storage.
func (s *Store) Backend() Backend { return s.backend }

// Token returns the stored token, or "" when none is stored.
func (s *Store) Token() (string, error) {
	v, ok, err := s.backend.Get(context.Background(), TokenKey)
	if err != nil {
		return "", fmt.Errorf("session: get token: %w", err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Set(context.Background(), TokenKey, token); err != nil {
		return fmt.Errorf("session: set token: %w", err)
	}
	return nil
}

func (s *Store) RemoveToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(context.Background(), TokenKey); err != nil {
		return fmt.Errorf("session: remove token: %w", err)
	}
	return nil
}

// User returns the stored user record, or nil when absent.
func (s *Store) User() (User, error) {
	v, ok, err := s.backend.Get(context.Background(), UserKey)
	if err != nil {
		return nil, fmt.Errorf("session: get user: %w", err)
	}
	if !ok || v == "" || v == "null" {
		return nil, nil
	}
	if !json.Valid([]byte(v)) {
		return nil, fmt.Errorf("session: stored user is not valid JSON")
	}
	return User(v), nil
}

func (s *Store) SetUser(u User) error {
	var buf bytes.Buffer
	if len(u) == 0 {
		buf.WriteString("null")
	} else if err := json.Compact(&buf, u); err != nil {
		return fmt.Errorf("session: set user: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Set(context.Background(), UserKey, buf.String()); err != nil {
		return fmt.Errorf("session: set user: %w", err)
	}
	return nil
}

func (s *Store) RemoveUser() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(context.Background(), UserKey); err != nil {
		return fmt.Errorf("session: remove user: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a non-empty token is stored.
func (s *Store) IsAuthenticated() bool {
	tok, err := s.Token()
	return err == nil && tok != ""
}

// Clear removes both token and user.
func (s *Store) Clear() error {
	return errors.Join(s.RemoveToken(), s.RemoveUser())
}

// Close releases the backend if it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
