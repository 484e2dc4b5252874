package clients

import "context"

// Repo stores registered clients. Get returns errors.ErrClientNotFound for an unknown id.
type Repo interface {
	Upsert(ctx context.Context, client *Client) error
	Delete(ctx context.Context, clientID string) error
	Get(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context, offset, limit int) ([]*Client, error)
}
