package auth_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-oauth-provider/auth"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/jrsteele09/go-oauth-provider/scope"
	"github.com/stretchr/testify/require"
)

func postForm(values url.Values) *auth.TokenEndpointRequest {
	return &auth.TokenEndpointRequest{Method: http.MethodPost, Form: values}
}

func confidentialForm(grantType string, extra url.Values) url.Values {
	values := url.Values{
		"grant_type":    {grantType},
		"client_id":     {testConfidentialID},
		"client_secret": {testConfidentialSecret},
	}
	for k, v := range extra {
		values[k] = v
	}
	return values
}

func (f *testFixture) issueCode(t *testing.T, scopeMask int) string {
	t.Helper()
	grant, err := f.manager.CreateGrant(context.Background(), f.confidential, testUserID, scopeMask, testRedirectURI)
	require.NoError(t, err)
	return grant.Code
}

func TestTokenEndpointRequestErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		req        *auth.TokenEndpointRequest
		options    []auth.TokenServiceOption
		wantCode   oauthmodel.ErrorCode
		wantStatus int
	}{
		{
			name:       "GET is rejected",
			req:        &auth.TokenEndpointRequest{Method: http.MethodGet, Form: confidentialForm("client_credentials", nil)},
			wantCode:   oauthmodel.InvalidRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing grant type",
			req:        postForm(url.Values{"client_id": {testConfidentialID}, "client_secret": {testConfidentialSecret}}),
			wantCode:   oauthmodel.InvalidRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported grant type",
			req:        postForm(confidentialForm("implicit", nil)),
			wantCode:   oauthmodel.UnsupportedGrantType,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "insecure request",
			req:        postForm(confidentialForm("client_credentials", nil)),
			options:    []auth.TokenServiceOption{auth.WithTokenEnforceSecure(true)},
			wantCode:   oauthmodel.InvalidRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong client secret",
			req:        postForm(url.Values{"grant_type": {"client_credentials"}, "client_id": {testConfidentialID}, "client_secret": {"wrong"}}),
			wantCode:   oauthmodel.InvalidClient,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "disabled client",
			req:        postForm(url.Values{"grant_type": {"client_credentials"}, "client_id": {testDisabledID}, "client_secret": {"disabled-secret"}}),
			wantCode:   oauthmodel.InvalidClient,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "public client outside password grants",
			req:        postForm(url.Values{"grant_type": {"client_credentials"}, "client_id": {testPublicID}}),
			wantCode:   oauthmodel.InvalidClient,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, fixtureOptions{token: tt.options})
			_, err := f.tokenService.Exchange(ctx, tt.req)
			requireOAuthError(t, err, tt.wantCode, tt.wantStatus)
		})
	}
}

func TestBasicClientAuthentication(t *testing.T) {
	ctx := context.Background()
	req := &auth.TokenEndpointRequest{
		Method:        http.MethodPost,
		Form:          url.Values{"grant_type": {"client_credentials"}},
		HasBasic:      true,
		BasicUser:     testConfidentialID,
		BasicPassword: testConfidentialSecret,
	}

	f := setupTestFixture(t, fixtureOptions{})
	resp, err := f.tokenService.Exchange(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)

	t.Run("insecure request when client security is enforced", func(t *testing.T) {
		backend := auth.NewBasicClientBackend(f.clientRepo, true)
		client, err := backend.Authenticate(ctx, req)
		require.NoError(t, err)
		require.Nil(t, client)

		secure := *req
		secure.Secure = true
		client, err = backend.Authenticate(ctx, &secure)
		require.NoError(t, err)
		require.Equal(t, testConfidentialID, client.ID)
	})
}

func TestAuthorizationCodeGrant(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, fixtureOptions{})
	code := f.issueCode(t, scope.Read)

	form := confidentialForm("authorization_code", url.Values{"code": {code}, "redirect_uri": {testRedirectURI}})
	resp, err := f.tokenService.Exchange(ctx, postForm(form))
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, "read", resp.Scope)
	require.Equal(t, int((365 * 24 * time.Hour).Seconds()), resp.ExpiresIn)

	at, err := f.manager.ResolveAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, at.UserID)

	t.Run("code cannot be replayed", func(t *testing.T) {
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		requireOAuthError(t, err, oauthmodel.InvalidGrant, http.StatusBadRequest)
	})

	t.Run("redirect uri must match", func(t *testing.T) {
		code := f.issueCode(t, scope.Read)
		form := confidentialForm("authorization_code", url.Values{"code": {code}, "redirect_uri": {"https://app.example/other"}})
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		requireOAuthError(t, err, oauthmodel.InvalidGrant, http.StatusBadRequest)
	})

	t.Run("expired code", func(t *testing.T) {
		code := f.issueCode(t, scope.Read)
		f.clock.Advance(11 * time.Minute)
		form := confidentialForm("authorization_code", url.Values{"code": {code}, "redirect_uri": {testRedirectURI}})
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		requireOAuthError(t, err, oauthmodel.InvalidGrant, http.StatusBadRequest)
	})
}

func TestAuthorizationCodeGrantConcurrentUse(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, fixtureOptions{})
	form := confidentialForm("authorization_code", url.Values{"code": {f.issueCode(t, scope.Read)}, "redirect_uri": {testRedirectURI}})

	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.tokenService.Exchange(ctx, postForm(form)); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), successes.Load())
}

func TestAuthorizationCodeGrantSingleAccessToken(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, fixtureOptions{token: []auth.TokenServiceOption{auth.WithSingleAccessToken(true)}})

	exchange := func() *oauthmodel.TokenResponse {
		form := confidentialForm("authorization_code", url.Values{"code": {f.issueCode(t, scope.Read)}, "redirect_uri": {testRedirectURI}})
		resp, err := f.tokenService.Exchange(ctx, postForm(form))
		require.NoError(t, err)
		return resp
	}

	first := exchange()
	second := exchange()
	require.Equal(t, first.AccessToken, second.AccessToken)
	require.Equal(t, first.RefreshToken, second.RefreshToken)
}

func TestRefreshTokenGrant(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, fixtureOptions{})
	form := confidentialForm("authorization_code", url.Values{"code": {f.issueCode(t, scope.ReadWrite)}, "redirect_uri": {testRedirectURI}})
	first, err := f.tokenService.Exchange(ctx, postForm(form))
	require.NoError(t, err)

	refreshForm := confidentialForm("refresh_token", url.Values{"refresh_token": {first.RefreshToken}})
	second, err := f.tokenService.Exchange(ctx, postForm(refreshForm))
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, first.Scope, second.Scope)

	_, err = f.manager.ResolveAccessToken(ctx, first.AccessToken)
	require.Error(t, err, "previous access token must be invalidated")

	t.Run("used refresh token is rejected", func(t *testing.T) {
		_, err := f.tokenService.Exchange(ctx, postForm(refreshForm))
		requireOAuthError(t, err, oauthmodel.InvalidGrant, http.StatusBadRequest)
	})

	t.Run("refresh token of another client", func(t *testing.T) {
		form := url.Values{"grant_type": {"refresh_token"}, "client_id": {testPublicID}, "refresh_token": {second.RefreshToken}}
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		requireOAuthError(t, err, oauthmodel.InvalidClient, http.StatusNotFound)
	})
}

func TestRefreshTokenGrantNarrowsScope(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, fixtureOptions{})
	form := confidentialForm("authorization_code", url.Values{"code": {f.issueCode(t, scope.Read)}, "redirect_uri": {testRedirectURI}})
	first, err := f.tokenService.Exchange(ctx, postForm(form))
	require.NoError(t, err)

	widened := confidentialForm("refresh_token", url.Values{"refresh_token": {first.RefreshToken}, "scope": {"read write"}})
	_, err = f.tokenService.Exchange(ctx, postForm(widened))
	requireOAuthError(t, err, oauthmodel.InvalidScope, http.StatusBadRequest)

	// A rejected scope must not consume the refresh token.
	narrowed := confidentialForm("refresh_token", url.Values{"refresh_token": {first.RefreshToken}, "scope": {"read"}})
	second, err := f.tokenService.Exchange(ctx, postForm(narrowed))
	require.NoError(t, err)
	require.Equal(t, "read", second.Scope)
}

func TestRefreshTokenGrantConcurrentUse(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, fixtureOptions{})
	form := confidentialForm("authorization_code", url.Values{"code": {f.issueCode(t, scope.Read)}, "redirect_uri": {testRedirectURI}})
	first, err := f.tokenService.Exchange(ctx, postForm(form))
	require.NoError(t, err)

	refreshForm := confidentialForm("refresh_token", url.Values{"refresh_token": {first.RefreshToken}})
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.tokenService.Exchange(ctx, postForm(refreshForm)); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), successes.Load())
}

func TestRefreshTokenGrantKeepRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, fixtureOptions{token: []auth.TokenServiceOption{auth.WithKeepRefreshToken(true)}})
	form := confidentialForm("authorization_code", url.Values{"code": {f.issueCode(t, scope.Read)}, "redirect_uri": {testRedirectURI}})
	first, err := f.tokenService.Exchange(ctx, postForm(form))
	require.NoError(t, err)

	refreshForm := confidentialForm("refresh_token", url.Values{"refresh_token": {first.RefreshToken}})
	second, err := f.tokenService.Exchange(ctx, postForm(refreshForm))
	require.NoError(t, err)
	require.Equal(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, first.AccessToken, second.AccessToken)

	third, err := f.tokenService.Exchange(ctx, postForm(refreshForm))
	require.NoError(t, err)
	require.Equal(t, first.RefreshToken, third.RefreshToken)

	_, err = f.manager.ResolveAccessToken(ctx, second.AccessToken)
	require.Error(t, err)
}

func TestPasswordGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("confidential client gets a refresh token", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		form := confidentialForm("password", url.Values{"username": {testUsername}, "password": {testUserPassword}, "scope": {"read write"}})
		resp, err := f.tokenService.Exchange(ctx, postForm(form))
		require.NoError(t, err)
		require.NotEmpty(t, resp.RefreshToken)
		require.Equal(t, "read write read+write", resp.Scope)
	})

	t.Run("public client never gets a refresh token", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		form := url.Values{"grant_type": {"password"}, "client_id": {testPublicID}, "username": {testUsername}, "password": {testUserPassword}}
		resp, err := f.tokenService.Exchange(ctx, postForm(form))
		require.NoError(t, err)
		require.NotEmpty(t, resp.AccessToken)
		require.Empty(t, resp.RefreshToken)
		require.Equal(t, int((30 * 24 * time.Hour).Seconds()), resp.ExpiresIn)
	})

	t.Run("public client in single token mode", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{token: []auth.TokenServiceOption{auth.WithSingleAccessToken(true)}})
		form := url.Values{"grant_type": {"password"}, "client_id": {testPublicID}, "username": {testUsername}, "password": {testUserPassword}}
		resp, err := f.tokenService.Exchange(ctx, postForm(form))
		require.NoError(t, err)
		require.Empty(t, resp.RefreshToken)
	})

	t.Run("email as username", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		form := confidentialForm("password", url.Values{"username": {testUserEmail}, "password": {testUserPassword}})
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		require.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		form := confidentialForm("password", url.Values{"username": {testUsername}, "password": {"Wrong12345"}})
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		requireOAuthError(t, err, oauthmodel.InvalidCredentials, http.StatusUnauthorized)
	})

	t.Run("inactive user", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		require.NoError(t, f.userRepo.SetActive(ctx, testUserID, false))
		form := confidentialForm("password", url.Values{"username": {testUsername}, "password": {testUserPassword}})
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		requireOAuthError(t, err, oauthmodel.InvalidCredentials, http.StatusUnauthorized)
	})

	t.Run("unknown scope", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		form := confidentialForm("password", url.Values{"username": {testUsername}, "password": {testUserPassword}, "scope": {"admin"}})
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		requireOAuthError(t, err, oauthmodel.InvalidScope, http.StatusForbidden)
	})

	t.Run("missing password", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		form := confidentialForm("password", url.Values{"username": {testUsername}})
		_, err := f.tokenService.Exchange(ctx, postForm(form))
		requireOAuthError(t, err, oauthmodel.InvalidRequest, http.StatusBadRequest)
	})
}

func TestRefreshTokenLimit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		form       func(t *testing.T, f *testFixture) url.Values
		wantPruned bool
	}{
		{
			name: "password",
			form: func(*testing.T, *testFixture) url.Values {
				return confidentialForm("password", url.Values{"username": {testUsername}, "password": {testUserPassword}})
			},
			wantPruned: true,
		},
		{
			name: "authorization_code",
			form: func(t *testing.T, f *testFixture) url.Values {
				return confidentialForm("authorization_code", url.Values{"code": {f.issueCode(t, scope.Read)}, "redirect_uri": {testRedirectURI}})
			},
			wantPruned: true,
		},
		{
			name: "email_and_password is not capped",
			form: func(*testing.T, *testFixture) url.Values {
				return confidentialForm("email_and_password", url.Values{"email": {testUserEmail}, "password": {testUserPassword}})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, fixtureOptions{token: []auth.TokenServiceOption{auth.WithRefreshTokenLimit(1)}})

			first, err := f.tokenService.Exchange(ctx, postForm(tt.form(t, f)))
			require.NoError(t, err)
			f.clock.Advance(time.Second)
			second, err := f.tokenService.Exchange(ctx, postForm(tt.form(t, f)))
			require.NoError(t, err)

			_, err = f.manager.GetRefreshToken(ctx, f.confidential, second.RefreshToken)
			require.NoError(t, err)
			_, err = f.manager.GetRefreshToken(ctx, f.confidential, first.RefreshToken)
			if tt.wantPruned {
				require.Error(t, err, "oldest refresh token should be pruned")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEmailAndPasswordGrant(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, fixtureOptions{})

	form := confidentialForm("email_and_password", url.Values{"email": {testUserEmail}, "password": {testUserPassword}})
	resp, err := f.tokenService.Exchange(ctx, postForm(form))
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)

	form = url.Values{"grant_type": {"email_and_password"}, "client_id": {testPublicID}, "email": {testUserEmail}, "password": {testUserPassword}}
	resp, err = f.tokenService.Exchange(ctx, postForm(form))
	require.NoError(t, err)
	require.Empty(t, resp.RefreshToken)

	form = confidentialForm("email_and_password", url.Values{"email": {"nobody@example.com"}, "password": {testUserPassword}})
	_, err = f.tokenService.Exchange(ctx, postForm(form))
	requireOAuthError(t, err, oauthmodel.InvalidCredentials, http.StatusUnauthorized)
}

func TestClientCredentialsGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("never returns a refresh token", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		resp, err := f.tokenService.Exchange(ctx, postForm(confidentialForm("client_credentials", url.Values{"scope": {"write"}})))
		require.NoError(t, err)
		require.Empty(t, resp.RefreshToken)
		require.Equal(t, "write", resp.Scope)

		at, err := f.manager.ResolveAccessToken(ctx, resp.AccessToken)
		require.NoError(t, err)
		require.Empty(t, at.UserID)
	})

	t.Run("single token mode reuses the token", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{token: []auth.TokenServiceOption{auth.WithSingleAccessToken(true)}})
		first, err := f.tokenService.Exchange(ctx, postForm(confidentialForm("client_credentials", nil)))
		require.NoError(t, err)
		second, err := f.tokenService.Exchange(ctx, postForm(confidentialForm("client_credentials", nil)))
		require.NoError(t, err)
		require.Equal(t, first.AccessToken, second.AccessToken)
		require.Empty(t, second.RefreshToken)
	})

	t.Run("unknown scope", func(t *testing.T) {
		f := setupTestFixture(t, fixtureOptions{})
		_, err := f.tokenService.Exchange(ctx, postForm(confidentialForm("client_credentials", url.Values{"scope": {"admin"}})))
		requireOAuthError(t, err, oauthmodel.InvalidScope, http.StatusBadRequest)
	})
}
