package auth

import (
	"context"
	"crypto/subtle"
	"net/url"

	"github.com/jrsteele09/go-oauth-provider/clients"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/pkg/errors"
)

// TokenEndpointRequest is what the token endpoint needs from an HTTP request.
type TokenEndpointRequest struct {
	Method string
	Secure bool
	Form   url.Values

	// HasBasic is set when an Authorization: Basic header was sent.
	HasBasic      bool
	BasicUser     string
	BasicPassword string
}

// ClientBackend authenticates the client of a token request. A nil client with a
// nil error means the backend could not authenticate it and the next one is tried.
type ClientBackend interface {
	Authenticate(ctx context.Context, req *TokenEndpointRequest) (*clients.Client, error)
}

// BasicClientBackend authenticates with HTTP Basic credentials.
type BasicClientBackend struct {
	clients       clients.Repo
	enforceSecure bool
}

func NewBasicClientBackend(repo clients.Repo, enforceSecure bool) *BasicClientBackend {
	return &BasicClientBackend{clients: repo, enforceSecure: enforceSecure}
}

func (b *BasicClientBackend) Authenticate(ctx context.Context, req *TokenEndpointRequest) (*clients.Client, error) {
	if !req.HasBasic || (b.enforceSecure && !req.Secure) {
		return nil, nil
	}
	return secretClient(ctx, b.clients, req.BasicUser, req.BasicPassword)
}

// RequestParamsClientBackend authenticates with client_id and client_secret form fields.
type RequestParamsClientBackend struct {
	clients       clients.Repo
	enforceSecure bool
}

func NewRequestParamsClientBackend(repo clients.Repo, enforceSecure bool) *RequestParamsClientBackend {
	return &RequestParamsClientBackend{clients: repo, enforceSecure: enforceSecure}
}

func (b *RequestParamsClientBackend) Authenticate(ctx context.Context, req *TokenEndpointRequest) (*clients.Client, error) {
	if b.enforceSecure && !req.Secure {
		return nil, nil
	}
	return secretClient(ctx, b.clients, req.Form.Get("client_id"), req.Form.Get("client_secret"))
}

// PublicPasswordClientBackend lets public clients use the password grants with
// only their client_id, since they cannot keep a secret.
type PublicPasswordClientBackend struct {
	clients clients.Repo
}

func NewPublicPasswordClientBackend(repo clients.Repo) *PublicPasswordClientBackend {
	return &PublicPasswordClientBackend{clients: repo}
}

func (b *PublicPasswordClientBackend) Authenticate(ctx context.Context, req *TokenEndpointRequest) (*clients.Client, error) {
	switch oauthmodel.GrantType(req.Form.Get("grant_type")) {
	case oauthmodel.PasswordGrant, oauthmodel.EmailAndPasswordGrant:
	default:
		return nil, nil
	}
	client, err := lookupClient(ctx, b.clients, req.Form.Get("client_id"))
	if client == nil || err != nil {
		return nil, err
	}
	if !client.IsPublic() {
		return nil, nil
	}
	return client, nil
}

// DefaultClientBackends is the backend chain used by the token endpoint.
func DefaultClientBackends(repo clients.Repo, enforceClientSecure bool) []ClientBackend {
	return []ClientBackend{
		NewBasicClientBackend(repo, enforceClientSecure),
		NewRequestParamsClientBackend(repo, enforceClientSecure),
		NewPublicPasswordClientBackend(repo),
	}
}

func secretClient(ctx context.Context, repo clients.Repo, clientID, secret string) (*clients.Client, error) {
	if secret == "" {
		return nil, nil
	}
	client, err := lookupClient(ctx, repo, clientID)
	if client == nil || err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) != 1 {
		return nil, nil
	}
	return client, nil
}

// lookupClient returns nil for unknown and disabled clients.
func lookupClient(ctx context.Context, repo clients.Repo, clientID string) (*clients.Client, error) {
	if clientID == "" {
		return nil, nil
	}
	client, err := repo.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrClientNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "loading client %s", clientID)
	}
	if client.IsDisabled() {
		return nil, nil
	}
	return client, nil
}
