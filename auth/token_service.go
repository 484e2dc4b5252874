package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/internal/config"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/internal/metrics"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/jrsteele09/go-oauth-provider/scope"
	"github.com/jrsteele09/go-oauth-provider/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TokenService implements the token endpoint: client authentication followed by
// one handler per grant type.
type TokenService struct {
	store             Store
	backends          []ClientBackend
	verifier          CredentialVerifier
	registry          *scope.Registry
	enforceSecure     bool
	singleAccessToken bool
	keepRefreshToken  bool
	refreshTokenLimit int
	metrics           metrics.Recorder
	nowTime           func() time.Time
}

// TokenServiceOption defines a function type to modify the TokenService instance.
type TokenServiceOption func(*TokenService)

// WithTokenNowTime sets the now time function (primarily for testing)
func WithTokenNowTime(nowFunc func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		ts.nowTime = nowFunc
	}
}

// WithTokenScopeRegistry sets the scope names token requests are parsed against.
func WithTokenScopeRegistry(registry *scope.Registry) TokenServiceOption {
	return func(ts *TokenService) {
		ts.registry = registry
	}
}

// WithTokenEnforceSecure makes the token endpoint refuse requests that did not arrive over TLS.
func WithTokenEnforceSecure(enforce bool) TokenServiceOption {
	return func(ts *TokenService) {
		ts.enforceSecure = enforce
	}
}

// WithSingleAccessToken reuses a live token for the same client, user and scope
// instead of issuing a new one.
func WithSingleAccessToken(single bool) TokenServiceOption {
	return func(ts *TokenService) {
		ts.singleAccessToken = single
	}
}

// WithKeepRefreshToken lets a refresh token be used again after a refresh.
func WithKeepRefreshToken(keep bool) TokenServiceOption {
	return func(ts *TokenService) {
		ts.keepRefreshToken = keep
	}
}

// WithRefreshTokenLimit caps the live refresh tokens per client, user and scope. 0 is unlimited.
func WithRefreshTokenLimit(limit int) TokenServiceOption {
	return func(ts *TokenService) {
		ts.refreshTokenLimit = limit
	}
}

// WithTokenMetrics sets the recorder for issued tokens and token errors.
func WithTokenMetrics(recorder metrics.Recorder) TokenServiceOption {
	return func(ts *TokenService) {
		ts.metrics = recorder
	}
}

// WithTokenPolicy applies the token issuance policy from configuration.
func WithTokenPolicy(oauthCfg config.OAuthConfig, securityCfg config.SecurityConfig) TokenServiceOption {
	return func(ts *TokenService) {
		ts.singleAccessToken = oauthCfg.GetSingleAccessToken()
		ts.keepRefreshToken = oauthCfg.GetKeepRefreshToken()
		ts.refreshTokenLimit = oauthCfg.GetLimitNumRefreshToken()
		ts.enforceSecure = securityCfg.GetEnforceSecure()
	}
}

// NewTokenService initializes a TokenService issuing tokens through store.
func NewTokenService(store Store, backends []ClientBackend, verifier CredentialVerifier, options ...TokenServiceOption) (*TokenService, error) {
	if store == nil {
		return nil, errors.New("[NewTokenService] store is required")
	}
	if len(backends) == 0 {
		return nil, errors.New("[NewTokenService] at least one client backend is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewTokenService] credential verifier is required")
	}

	ts := &TokenService{
		store:    store,
		backends: backends,
		verifier: verifier,
		registry: scope.Default(),
		metrics:  metrics.NewNoopMetrics(),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(ts)
	}
	return ts, nil
}

// Exchange handles one token request. Protocol failures are returned as
// *oauthmodel.Error; any other error is an internal failure.
func (ts *TokenService) Exchange(ctx context.Context, req *TokenEndpointRequest) (*oauthmodel.TokenResponse, error) {
	tr := oauthmodel.ParseTokenRequest(req.Form)
	resp, err := ts.exchange(ctx, req, tr)
	if err != nil {
		var oerr *oauthmodel.Error
		if errors.As(err, &oerr) {
			ts.metrics.RecordTokenError(string(tr.GrantType), string(oerr.Code))
			log.Debug().Str("grant_type", string(tr.GrantType)).Str("error", string(oerr.Code)).Msg("token request rejected")
		} else {
			ts.metrics.RecordTokenError(string(tr.GrantType), string(oauthmodel.UnknownError))
		}
		return nil, err
	}
	return resp, nil
}

func (ts *TokenService) exchange(ctx context.Context, req *TokenEndpointRequest, tr oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	if req.Method != http.MethodPost {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, "Only POST requests allowed.")
	}
	if ts.enforceSecure && !req.Secure {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, "A secure connection is required.")
	}
	if tr.GrantType == "" {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, "No 'grant_type' included in the request.")
	}

	handler := ts.handler(tr.GrantType)
	if handler == nil {
		return nil, oauthmodel.NewError(oauthmodel.UnsupportedGrantType, "")
	}

	client, err := ts.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, oauthmodel.NewError(oauthmodel.InvalidClient, "").WithStatus(http.StatusNotFound)
	}

	return handler(ctx, client, tr)
}

type grantHandler func(ctx context.Context, client *clients.Client, tr oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error)

func (ts *TokenService) handler(grantType oauthmodel.GrantType) grantHandler {
	switch grantType {
	case oauthmodel.AuthorizationCodeGrant:
		return ts.authorizationCode
	case oauthmodel.RefreshTokenGrant:
		return ts.refreshToken
	case oauthmodel.PasswordGrant:
		return ts.password
	case oauthmodel.EmailAndPasswordGrant:
		return ts.emailAndPassword
	case oauthmodel.ClientCredentialsGrant:
		return ts.clientCredentials
	}
	return nil
}

// authenticate returns the client from the first backend that recognises it.
func (ts *TokenService) authenticate(ctx context.Context, req *TokenEndpointRequest) (*clients.Client, error) {
	for _, backend := range ts.backends {
		client, err := backend.Authenticate(ctx, req)
		if err != nil {
			return nil, errors.Wrap(err, "[authenticate] client backend")
		}
		if client != nil {
			return client, nil
		}
	}
	return nil, nil
}

func (ts *TokenService) authorizationCode(ctx context.Context, client *clients.Client, tr oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	grant, err := ts.store.GetGrant(ctx, client, tr.Code, tr.RedirectURI)
	if err != nil {
		return nil, grantError(err, "[authorizationCode] get grant")
	}
	// Consume the code before issuing so a replay racing this request fails.
	if err := ts.store.InvalidateGrant(ctx, grant); err != nil {
		return nil, grantError(err, "[authorizationCode] invalidate grant")
	}

	at, rt, err := ts.issue(ctx, client, grant.UserID, grant.Scope, true)
	if err != nil {
		return nil, errors.Wrap(err, "[authorizationCode] issue")
	}
	return ts.respond(oauthmodel.AuthorizationCodeGrant, at, rt), nil
}

func (ts *TokenService) refreshToken(ctx context.Context, client *clients.Client, tr oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	rt, err := ts.store.GetRefreshToken(ctx, client, tr.RefreshToken)
	if err != nil {
		return nil, grantError(err, "[refreshToken] get refresh token")
	}

	// The new access token may carry less than the refresh token, never more.
	issued := rt.Scope
	if tr.Scope != "" {
		narrowed, err := ts.registry.Parse(tr.Scope, rt.Scope)
		if err != nil || !scope.Check(narrowed, rt.Scope) {
			return nil, oauthmodel.Errorf(oauthmodel.InvalidScope, "'%s' is not a valid scope.", tr.Scope)
		}
		issued = narrowed
	}

	if !ts.keepRefreshToken {
		if err := ts.store.InvalidateRefreshToken(ctx, rt); err != nil {
			return nil, grantError(err, "[refreshToken] invalidate refresh token")
		}
		ts.metrics.RecordTokenRevoked("rotation")
	}
	if rt.AccessTokenID != "" {
		previous, err := ts.store.GetAccessTokenByID(ctx, rt.AccessTokenID)
		switch {
		case err == nil:
			if err := ts.store.InvalidateAccessToken(ctx, previous); err != nil {
				return nil, errors.Wrap(err, "[refreshToken] invalidate access token")
			}
		case errors.Is(err, apperrors.ErrInvalidToken), errors.Is(err, apperrors.ErrNotFound):
			// already purged
		default:
			return nil, errors.Wrap(err, "[refreshToken] get access token")
		}
	}

	at, err := ts.store.CreateAccessToken(ctx, client, rt.UserID, issued)
	if err != nil {
		return nil, errors.Wrap(err, "[refreshToken] create access token")
	}
	if ts.keepRefreshToken {
		if err := ts.store.UpdateRefreshToken(ctx, rt, at); err != nil {
			return nil, grantError(err, "[refreshToken] update refresh token")
		}
	} else {
		rt, err = ts.store.CreateRefreshToken(ctx, client, rt.UserID, rt.Scope, at)
		if err != nil {
			return nil, errors.Wrap(err, "[refreshToken] create refresh token")
		}
		ts.metrics.RecordTokenIssued("refresh", string(oauthmodel.RefreshTokenGrant))
	}
	ts.metrics.RecordTokenIssued("access", string(oauthmodel.RefreshTokenGrant))
	return ts.response(at, rt), nil
}

func (ts *TokenService) password(ctx context.Context, client *clients.Client, tr oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	user, requested, err := ts.verifier.VerifyPassword(ctx, client, credentials(tr))
	if err != nil {
		return nil, err
	}
	at, rt, err := ts.issue(ctx, client, user.ID, requested, true)
	if err != nil {
		return nil, errors.Wrap(err, "[password] issue")
	}
	return ts.respond(oauthmodel.PasswordGrant, at, rt), nil
}

func (ts *TokenService) emailAndPassword(ctx context.Context, client *clients.Client, tr oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	user, requested, err := ts.verifier.VerifyEmailAndPassword(ctx, client, credentials(tr))
	if err != nil {
		return nil, err
	}
	at, rt, err := ts.issue(ctx, client, user.ID, requested, false)
	if err != nil {
		return nil, errors.Wrap(err, "[emailAndPassword] issue")
	}
	return ts.respond(oauthmodel.EmailAndPasswordGrant, at, rt), nil
}

// clientCredentials issues a token that belongs to the client alone and is never refreshable.
func (ts *TokenService) clientCredentials(ctx context.Context, client *clients.Client, tr oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	requested, err := ts.registry.Parse(tr.Scope, ts.registry.Default())
	if err != nil {
		return nil, oauthmodel.Errorf(oauthmodel.InvalidScope, "'%s' is not a valid scope.", tr.Scope)
	}

	var at *token.AccessToken
	if ts.singleAccessToken {
		at, _, err = ts.store.GetAccessToken(ctx, client, "", requested, false)
	} else {
		at, err = ts.store.CreateAccessToken(ctx, client, "", requested)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[clientCredentials] issue")
	}
	return ts.respond(oauthmodel.ClientCredentialsGrant, at, nil), nil
}

// issue creates or reuses the access token of a user grant. Confidential clients
// also get a refresh token; prune applies the refresh token cap.
func (ts *TokenService) issue(ctx context.Context, client *clients.Client, userID string, requested int, prune bool) (*token.AccessToken, *token.RefreshToken, error) {
	if ts.singleAccessToken {
		return ts.store.GetAccessToken(ctx, client, userID, requested, true)
	}

	at, err := ts.store.CreateAccessToken(ctx, client, userID, requested)
	if err != nil {
		return nil, nil, err
	}
	if client.IsPublic() {
		return at, nil, nil
	}
	rt, err := ts.store.CreateRefreshToken(ctx, client, userID, requested, at)
	if err != nil {
		return nil, nil, err
	}
	if prune && ts.refreshTokenLimit > 0 {
		if err := ts.store.InvalidateRefreshTokensOverLimit(ctx, client, userID, requested, ts.refreshTokenLimit); err != nil {
			return nil, nil, err
		}
	}
	return at, rt, nil
}

func (ts *TokenService) respond(grantType oauthmodel.GrantType, at *token.AccessToken, rt *token.RefreshToken) *oauthmodel.TokenResponse {
	ts.metrics.RecordTokenIssued("access", string(grantType))
	if rt != nil {
		ts.metrics.RecordTokenIssued("refresh", string(grantType))
	}
	return ts.response(at, rt)
}

func (ts *TokenService) response(at *token.AccessToken, rt *token.RefreshToken) *oauthmodel.TokenResponse {
	resp := &oauthmodel.TokenResponse{
		AccessToken: at.Token,
		TokenType:   token.TokenType,
		ExpiresIn:   at.ExpiresIn(ts.nowTime()),
		Scope:       ts.registry.Join(at.Scope),
	}
	if rt != nil {
		resp.RefreshToken = rt.Token
	}
	return resp
}

func credentials(tr oauthmodel.TokenRequest) Credentials {
	return Credentials{
		Username: tr.Username,
		Email:    tr.Email,
		Password: tr.Password,
		Scope:    tr.Scope,
	}
}

// grantError maps a store failure on a grant or refresh token to invalid_grant.
func grantError(err error, msg string) error {
	switch {
	case errors.Is(err, apperrors.ErrGrantNotFound),
		errors.Is(err, apperrors.ErrGrantExpired),
		errors.Is(err, apperrors.ErrGrantAlreadyUsed),
		errors.Is(err, apperrors.ErrGrantClientMismatch):
		return oauthmodel.NewError(oauthmodel.InvalidGrant, "The authorization code is invalid or has expired.")
	case errors.Is(err, apperrors.ErrInvalidRedirectURI):
		return oauthmodel.NewError(oauthmodel.InvalidGrant, "The redirect_uri does not match the authorization request.")
	case errors.Is(err, apperrors.ErrInvalidRefreshToken),
		errors.Is(err, apperrors.ErrTokenRevoked),
		errors.Is(err, apperrors.ErrRefreshTokenExpired):
		return oauthmodel.NewError(oauthmodel.InvalidGrant, "The refresh token is invalid or has expired.")
	}
	return errors.Wrap(err, msg)
}
