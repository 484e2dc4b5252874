package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const TokenType = "Bearer"

// Grant is an authorization code issued on consent and exchanged exactly once.
type Grant struct {
	ID          string
	Code        string
	Expires     time.Time
	RedirectURI string
	Scope       int
	ClientID    string
	UserID      string
}

type AccessToken struct {
	ID        string
	Token     string
	Expires   time.Time
	Scope     int
	ClientID  string
	UserID    string // Empty for client credentials tokens
	CreatedAt time.Time
}

// ExpiresIn returns the whole seconds left before the token expires.
func (at *AccessToken) ExpiresIn(now time.Time) int {
	d := at.Expires.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Seconds())
}

func (at *AccessToken) IsExpired(now time.Time) bool {
	return !at.Expires.After(now)
}

// RefreshToken is bound to a single AccessToken and carries its scope so that it
// survives the access token being purged.
type RefreshToken struct {
	ID            string
	Token         string
	Expired       bool
	Scope         int
	ClientID      string
	UserID        string
	AccessTokenID string
	CreatedAt     time.Time
}

// Generate returns n random bytes hex encoded.
func Generate(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
