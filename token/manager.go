package token

import (
	"context"
	"time"

	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/internal/config"
	"github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultExpireDelta       = 365 * 24 * time.Hour
	defaultExpireDeltaPublic = 30 * 24 * time.Hour
	defaultExpireCodeDelta   = 10 * time.Minute
	defaultTokenLength       = 32
)

// Manager issues, looks up and invalidates grants and tokens on top of a Repo.
type Manager struct {
	repo              Repo
	expireDelta       time.Duration // confidential clients
	expireDeltaPublic time.Duration
	expireCodeDelta   time.Duration
	refreshTokenTTL   time.Duration // 0 never expires by age
	deleteExpired     bool
	tokenLength       int
	nowTime           func() time.Time
}

type ManagerOption func(*Manager)

func WithNowTime(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = now
	}
}

func WithTokenExpiry(confidential, public time.Duration) ManagerOption {
	return func(m *Manager) {
		m.expireDelta = confidential
		m.expireDeltaPublic = public
	}
}

func WithCodeExpiry(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.expireCodeDelta = d
	}
}

func WithRefreshTokenTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshTokenTTL = d
	}
}

// WithDeleteExpired removes invalidated rows instead of marking them.
func WithDeleteExpired(deleteExpired bool) ManagerOption {
	return func(m *Manager) {
		m.deleteExpired = deleteExpired
	}
}

func WithTokenLength(n int) ManagerOption {
	return func(m *Manager) {
		m.tokenLength = n
	}
}

// WithConfig applies the lifetimes and storage policy from the OAuth configuration.
func WithConfig(cfg config.OAuthConfig) ManagerOption {
	return func(m *Manager) {
		m.expireDelta = cfg.GetExpireDelta()
		m.expireDeltaPublic = cfg.GetExpireDeltaPublic()
		m.expireCodeDelta = cfg.GetExpireCodeDelta()
		m.refreshTokenTTL = cfg.GetRefreshTokenTTL()
		m.deleteExpired = cfg.GetDeleteExpired()
		m.tokenLength = cfg.GetTokenLength()
	}
}

func New(repo Repo, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:              repo,
		expireDelta:       defaultExpireDelta,
		expireDeltaPublic: defaultExpireDeltaPublic,
		expireCodeDelta:   defaultExpireCodeDelta,
		tokenLength:       defaultTokenLength,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.nowTime == nil {
		m.nowTime = time.Now
	}
	if m.tokenLength <= 0 {
		m.tokenLength = defaultTokenLength
	}
	return m
}

func (m *Manager) Now() time.Time {
	return m.nowTime()
}

// CreateGrant stores a new authorization code for the client and user.
func (m *Manager) CreateGrant(ctx context.Context, client *clients.Client, userID string, scope int, redirectURI string) (*Grant, error) {
	code, err := Generate(m.tokenLength)
	if err != nil {
		return nil, err
	}
	g := &Grant{
		Code:        code,
		Expires:     m.nowTime().Add(m.expireCodeDelta),
		RedirectURI: redirectURI,
		Scope:       scope,
		ClientID:    client.ID,
		UserID:      userID,
	}
	if err := m.repo.CreateGrant(ctx, g); err != nil {
		return nil, errors.Wrapf(err, "storing grant for client %s", client.ID)
	}
	return g, nil
}

// GetGrant resolves a live grant issued to client. When the grant was created with a
// redirect URI the same URI must be presented.
func (m *Manager) GetGrant(ctx context.Context, client *clients.Client, code, redirectURI string) (*Grant, error) {
	if code == "" {
		return nil, errors.ErrGrantNotFound
	}
	g, err := m.repo.GetGrant(ctx, code)
	if err != nil {
		return nil, err
	}
	if g.ClientID != client.ID {
		return nil, errors.ErrGrantClientMismatch
	}
	if !g.Expires.After(m.nowTime()) {
		return nil, errors.ErrGrantExpired
	}
	if g.RedirectURI != "" && g.RedirectURI != redirectURI {
		return nil, errors.ErrInvalidRedirectURI
	}
	return g, nil
}

// InvalidateGrant fails with errors.ErrGrantAlreadyUsed when another request consumed the grant first.
func (m *Manager) InvalidateGrant(ctx context.Context, g *Grant) error {
	return m.repo.InvalidateGrant(ctx, g.ID, m.nowTime(), m.deleteExpired)
}

// CreateAccessToken issues a new token whose lifetime depends on the client type.
func (m *Manager) CreateAccessToken(ctx context.Context, client *clients.Client, userID string, scope int) (*AccessToken, error) {
	now := m.nowTime()
	if m.deleteExpired {
		n, err := m.repo.DeleteExpiredAccessTokens(ctx, client.ID, userID, now)
		if err != nil {
			return nil, errors.Wrapf(err, "purging expired tokens for client %s", client.ID)
		}
		if n > 0 {
			log.Debug().Str("client_id", client.ID).Int64("purged", n).Msg("deleted expired access tokens")
		}
	}

	value, err := Generate(m.tokenLength)
	if err != nil {
		return nil, err
	}
	ttl := m.expireDelta
	if client.IsPublic() {
		ttl = m.expireDeltaPublic
	}
	at := &AccessToken{
		Token:     value,
		Expires:   now.Add(ttl),
		Scope:     scope,
		ClientID:  client.ID,
		UserID:    userID,
		CreatedAt: now,
	}
	if err := m.repo.CreateAccessToken(ctx, at); err != nil {
		return nil, errors.Wrapf(err, "storing access token for client %s", client.ID)
	}
	return at, nil
}

// GetAccessToken returns a live token for the exact client, user and scope, creating
// one when none exists. A newly created token for a confidential client and a user
// also gets a refresh token when refreshable is set. The returned refresh token is
// nil when none is bound.
func (m *Manager) GetAccessToken(ctx context.Context, client *clients.Client, userID string, scope int, refreshable bool) (*AccessToken, *RefreshToken, error) {
	at, err := m.repo.FindAccessToken(ctx, client.ID, userID, scope, m.nowTime())
	if err == nil {
		rt, err := m.repo.GetRefreshTokenByAccessToken(ctx, at.ID)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return at, nil, nil
			}
			return nil, nil, err
		}
		return at, rt, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, nil, err
	}

	at, err = m.CreateAccessToken(ctx, client, userID, scope)
	if err != nil {
		return nil, nil, err
	}
	if !refreshable || userID == "" || client.IsPublic() {
		return at, nil, nil
	}
	rt, err := m.CreateRefreshToken(ctx, client, userID, scope, at)
	if err != nil {
		return nil, nil, err
	}
	return at, rt, nil
}

// FindActiveAccessToken reports the live token held by user for exactly this client and scope.
func (m *Manager) FindActiveAccessToken(ctx context.Context, clientID, userID string, scope int) (*AccessToken, error) {
	return m.repo.FindAccessToken(ctx, clientID, userID, scope, m.nowTime())
}

func (m *Manager) GetAccessTokenByID(ctx context.Context, id string) (*AccessToken, error) {
	return m.repo.GetAccessTokenByID(ctx, id)
}

func (m *Manager) InvalidateAccessToken(ctx context.Context, at *AccessToken) error {
	return m.repo.InvalidateAccessToken(ctx, at.ID, m.nowTime(), m.deleteExpired)
}

// ResolveAccessToken returns the token only while it is live.
func (m *Manager) ResolveAccessToken(ctx context.Context, value string) (*AccessToken, error) {
	if value == "" {
		return nil, errors.ErrInvalidToken
	}
	at, err := m.repo.GetAccessToken(ctx, value)
	if err != nil {
		return nil, err
	}
	if at.IsExpired(m.nowTime()) {
		return nil, errors.ErrTokenExpired
	}
	return at, nil
}

func (m *Manager) CreateRefreshToken(ctx context.Context, client *clients.Client, userID string, scope int, at *AccessToken) (*RefreshToken, error) {
	value, err := Generate(m.tokenLength)
	if err != nil {
		return nil, err
	}
	rt := &RefreshToken{
		Token:         value,
		Scope:         scope,
		ClientID:      client.ID,
		UserID:        userID,
		AccessTokenID: at.ID,
		CreatedAt:     m.nowTime(),
	}
	if err := m.repo.CreateRefreshToken(ctx, rt); err != nil {
		return nil, errors.Wrapf(err, "storing refresh token for client %s", client.ID)
	}
	return rt, nil
}

// GetRefreshToken resolves a live refresh token issued to client.
func (m *Manager) GetRefreshToken(ctx context.Context, client *clients.Client, value string) (*RefreshToken, error) {
	if value == "" {
		return nil, errors.ErrInvalidRefreshToken
	}
	rt, err := m.repo.GetRefreshToken(ctx, value)
	if err != nil {
		return nil, err
	}
	if rt.ClientID != client.ID {
		return nil, errors.ErrInvalidRefreshToken
	}
	if rt.Expired {
		return nil, errors.ErrTokenRevoked
	}
	if m.refreshTokenTTL > 0 && !rt.CreatedAt.Add(m.refreshTokenTTL).After(m.nowTime()) {
		return nil, errors.ErrRefreshTokenExpired
	}
	return rt, nil
}

// UpdateRefreshToken binds an existing refresh token to a new access token.
func (m *Manager) UpdateRefreshToken(ctx context.Context, rt *RefreshToken, at *AccessToken) error {
	if err := m.repo.BindRefreshToken(ctx, rt.ID, at.ID); err != nil {
		return err
	}
	rt.AccessTokenID = at.ID
	return nil
}

// InvalidateRefreshToken fails with errors.ErrTokenRevoked when the token was already used.
func (m *Manager) InvalidateRefreshToken(ctx context.Context, rt *RefreshToken) error {
	if err := m.repo.InvalidateRefreshToken(ctx, rt.ID, m.deleteExpired); err != nil {
		return err
	}
	rt.Expired = true
	return nil
}

// InvalidateRefreshTokensOverLimit keeps only the newest limit live refresh tokens for
// the user, client and scope.
func (m *Manager) InvalidateRefreshTokensOverLimit(ctx context.Context, client *clients.Client, userID string, scope int, limit int) error {
	if limit <= 0 {
		return nil
	}
	tokens, err := m.repo.ListRefreshTokens(ctx, client.ID, userID, scope)
	if err != nil {
		return err
	}
	for i := 0; i < len(tokens)-limit; i++ {
		err := m.repo.InvalidateRefreshToken(ctx, tokens[i].ID, m.deleteExpired)
		if err != nil && !errors.Is(err, errors.ErrTokenRevoked) {
			return err
		}
	}
	return nil
}

// Revoke invalidates an access token and the refresh token bound to it.
func (m *Manager) Revoke(ctx context.Context, value string) error {
	at, err := m.repo.GetAccessToken(ctx, value)
	if err != nil {
		return err
	}
	if rt, err := m.repo.GetRefreshTokenByAccessToken(ctx, at.ID); err == nil {
		if err := m.repo.InvalidateRefreshToken(ctx, rt.ID, m.deleteExpired); err != nil && !errors.Is(err, errors.ErrTokenRevoked) {
			return err
		}
	}
	return m.repo.InvalidateAccessToken(ctx, at.ID, m.nowTime(), m.deleteExpired)
}
