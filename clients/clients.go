package clients

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

type Client struct {
	ID           string     `json:"id"`
	Secret       string     `json:"secret"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	RedirectURIs []string   `json:"redirectURIs"` // First entry is the default callback
	Type         ClientType `json:"type"`         // public or confidential
	Status       Status     `json:"status"`
	UserID       string     `json:"userId,omitempty"` // Optional owner
}

// New creates a client with a generated client_id and client_secret.
func New(name, url string, clientType ClientType, redirectURIs ...string) (*Client, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	return &Client{
		ID:           uuid.New().String(),
		Secret:       secret,
		Name:         name,
		URL:          url,
		RedirectURIs: redirectURIs,
		Type:         clientType,
		Status:       StatusEnabled,
	}, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

func (c *Client) IsDisabled() bool {
	return c.Status == StatusDisabled
}

// DefaultRedirectURI returns the first registered callback.
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}

// HasRedirectURI checks the uri against the registered callbacks.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return true
		}
	}
	return false
}
