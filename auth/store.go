package auth

import (
	"context"

	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/token"
)

// Store is the persistence contract of the authorization flow and the token
// endpoint. *token.Manager implements it.
type Store interface {
	CreateGrant(ctx context.Context, client *clients.Client, userID string, scope int, redirectURI string) (*token.Grant, error)
	GetGrant(ctx context.Context, client *clients.Client, code, redirectURI string) (*token.Grant, error)
	InvalidateGrant(ctx context.Context, grant *token.Grant) error

	CreateAccessToken(ctx context.Context, client *clients.Client, userID string, scope int) (*token.AccessToken, error)
	GetAccessToken(ctx context.Context, client *clients.Client, userID string, scope int, refreshable bool) (*token.AccessToken, *token.RefreshToken, error)
	GetAccessTokenByID(ctx context.Context, id string) (*token.AccessToken, error)
	FindActiveAccessToken(ctx context.Context, clientID, userID string, scope int) (*token.AccessToken, error)
	InvalidateAccessToken(ctx context.Context, at *token.AccessToken) error

	CreateRefreshToken(ctx context.Context, client *clients.Client, userID string, scope int, at *token.AccessToken) (*token.RefreshToken, error)
	GetRefreshToken(ctx context.Context, client *clients.Client, refreshToken string) (*token.RefreshToken, error)
	UpdateRefreshToken(ctx context.Context, rt *token.RefreshToken, at *token.AccessToken) error
	InvalidateRefreshToken(ctx context.Context, rt *token.RefreshToken) error
	InvalidateRefreshTokensOverLimit(ctx context.Context, client *clients.Client, userID string, scope int, limit int) error
}

var _ Store = (*token.Manager)(nil)
