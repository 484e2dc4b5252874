// Package sessions keeps per user-agent state across requests. A Session is
// addressed by an opaque id carried in a cookie and stores JSON values in a
// Backend. The authorization flow uses a Stash, a namespaced view of a session
// that can be cleared without touching the rest of the session.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const userIDKey = "_auth_user_id"

// Backend stores raw values per session. Implementations must isolate sessions
// from each other.
type Backend interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, bool, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID string, keys ...string) error
	DeletePrefix(ctx context.Context, sessionID, prefix string) error
	Destroy(ctx context.Context, sessionID string) error
	// Exists reports whether the session has a live entry.
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Rename moves a session's values to a new id. Renaming an absent session is a no-op.
	Rename(ctx context.Context, oldID, newID string) error
}

type Session struct {
	ID      string
	backend Backend
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.New().String()
}

func New(backend Backend, id string) *Session {
	return &Session{ID: id, backend: backend}
}

// Get decodes the value stored under key into out. It reports false when the key is absent.
func (s *Session) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, s.ID, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding session key %s: %w", key, err)
	}
	return true, nil
}

func (s *Session) Put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding session key %s: %w", key, err)
	}
	return s.backend.Set(ctx, s.ID, key, raw)
}

func (s *Session) Delete(ctx context.Context, keys ...string) error {
	return s.backend.Delete(ctx, s.ID, keys...)
}

// UserID returns the logged in resource owner, or "" when nobody is logged in.
func (s *Session) UserID(ctx context.Context) (string, error) {
	var id string
	if _, err := s.Get(ctx, userIDKey, &id); err != nil {
		return "", err
	}
	return id, nil
}

// Login moves the session to a fresh id, keeping its values, and records the
// resource owner. Callers must hand the new ID to the user agent.
func (s *Session) Login(ctx context.Context, userID string) error {
	if err := s.Cycle(ctx); err != nil {
		return err
	}
	return s.Put(ctx, userIDKey, userID)
}

// Cycle gives the session a new id so an id known before login is worthless after it.
func (s *Session) Cycle(ctx context.Context) error {
	newID := NewID()
	if err := s.backend.Rename(ctx, s.ID, newID); err != nil {
		return fmt.Errorf("cycling session id: %w", err)
	}
	s.ID = newID
	return nil
}

// Logout destroys the whole session including any stashed authorization state.
func (s *Session) Logout(ctx context.Context) error {
	return s.backend.Destroy(ctx, s.ID)
}

func (s *Session) Stash(prefix string) *Stash {
	return &Stash{session: s, prefix: prefix + ":"}
}
