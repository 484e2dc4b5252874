package clients

import (
	"encoding/json"
	"errors"
	"fmt"
)

const snapshotVersion = 1

var ErrSnapshotVersion = errors.New("unsupported client snapshot version")

// Snapshot is the part of a client that survives the authorize to redirect round trip.
type Snapshot struct {
	Version      int      `json:"v"`
	ID           string   `json:"id"`
	RedirectURIs []string `json:"redirect_uri"`
}

func (c *Client) Snapshot() Snapshot {
	uris := make([]string, len(c.RedirectURIs))
	copy(uris, c.RedirectURIs)
	return Snapshot{Version: snapshotVersion, ID: c.ID, RedirectURIs: uris}
}

// Serialize encodes the client snapshot as versioned JSON.
func (c *Client) Serialize() (string, error) {
	b, err := json.Marshal(c.Snapshot())
	if err != nil {
		return "", fmt.Errorf("serializing client %s: %w", c.ID, err)
	}
	return string(b), nil
}

// Deserialize restores a snapshot produced by Serialize.
func Deserialize(data string) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decoding client snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	return &s, nil
}

func (s Snapshot) DefaultRedirectURI() string {
	if len(s.RedirectURIs) == 0 {
		return ""
	}
	return s.RedirectURIs[0]
}
