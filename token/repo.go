package token

import (
	"context"
	"time"
)

// Repo persists grants, access tokens and refresh tokens.
//
// The Invalidate methods are conditional: invalidating a grant or refresh token
// that is no longer live must fail (errors.ErrGrantAlreadyUsed /
// errors.ErrTokenRevoked) so that concurrent replays lose. When remove is true
// the row is deleted instead of being marked.
type Repo interface {
	CreateGrant(ctx context.Context, grant *Grant) error
	GetGrant(ctx context.Context, code string) (*Grant, error)
	InvalidateGrant(ctx context.Context, id string, now time.Time, remove bool) error

	CreateAccessToken(ctx context.Context, at *AccessToken) error
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	GetAccessTokenByID(ctx context.Context, id string) (*AccessToken, error)
	// FindAccessToken returns the most recent access token for the exact
	// client, user and scope that expires after now.
	FindAccessToken(ctx context.Context, clientID, userID string, scope int, now time.Time) (*AccessToken, error)
	InvalidateAccessToken(ctx context.Context, id string, now time.Time, remove bool) error
	DeleteExpiredAccessTokens(ctx context.Context, clientID, userID string, now time.Time) (int64, error)

	CreateRefreshToken(ctx context.Context, rt *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	GetRefreshTokenByAccessToken(ctx context.Context, accessTokenID string) (*RefreshToken, error)
	// BindRefreshToken points a live refresh token at a new access token.
	BindRefreshToken(ctx context.Context, id, accessTokenID string) error
	InvalidateRefreshToken(ctx context.Context, id string, remove bool) error
	// ListRefreshTokens returns the live refresh tokens for the triple, oldest first.
	ListRefreshTokens(ctx context.Context, clientID, userID string, scope int) ([]*RefreshToken, error)
}
