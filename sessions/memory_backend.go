package sessions

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Backend = (*MemoryBackend)(nil)

type memoryEntry struct {
	values  map[string][]byte
	expires time.Time
}

// MemoryBackend keeps sessions in process. Each write pushes the session expiry out by ttl.
type MemoryBackend struct {
	sessions map[string]*memoryEntry
	ttl      time.Duration
	nowTime  func() time.Time
	mu       sync.RWMutex
}

type MemoryOption func(*MemoryBackend)

func WithMemoryNowTime(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		b.nowTime = now
	}
}

func NewMemoryBackend(ttl time.Duration, options ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *MemoryBackend) Get(_ context.Context, sessionID, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e := b.live(sessionID)
	if e == nil {
		return nil, false, nil
	}
	v, ok := e.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, sessionID, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.live(sessionID)
	if e == nil {
		b.purgeExpired()
		e = &memoryEntry{values: make(map[string][]byte)}
		b.sessions[sessionID] = e
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	e.values[key] = stored
	e.expires = b.nowTime().Add(b.ttl)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, sessionID string, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.live(sessionID)
	if e == nil {
		return nil
	}
	for _, k := range keys {
		delete(e.values, k)
	}
	return nil
}

func (b *MemoryBackend) DeletePrefix(_ context.Context, sessionID, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.live(sessionID)
	if e == nil {
		return nil
	}
	for k := range e.values {
		if strings.HasPrefix(k, prefix) {
			delete(e.values, k)
		}
	}
	return nil
}

func (b *MemoryBackend) Destroy(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
	return nil
}

func (b *MemoryBackend) Exists(_ context.Context, sessionID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live(sessionID) != nil, nil
}

func (b *MemoryBackend) Rename(_ context.Context, oldID, newID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.live(oldID)
	delete(b.sessions, oldID)
	if e == nil {
		return nil
	}
	e.expires = b.nowTime().Add(b.ttl)
	b.sessions[newID] = e
	return nil
}

// Len returns the number of sessions held, expired or not.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Cleanup drops expired sessions. Starting a new session does the same.
func (b *MemoryBackend) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeExpired()
}

// purgeExpired must be called with the write lock held.
func (b *MemoryBackend) purgeExpired() {
	now := b.nowTime()
	for id, e := range b.sessions {
		if !e.expires.After(now) {
			delete(b.sessions, id)
		}
	}
}

func (b *MemoryBackend) live(sessionID string) *memoryEntry {
	e, ok := b.sessions[sessionID]
	if !ok || !e.expires.After(b.nowTime()) {
		return nil
	}
	return e
}
