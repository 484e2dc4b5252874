package oauthmodel

import "net/url"

type GrantType string

const (
	AuthorizationCodeGrant GrantType = "authorization_code"
	RefreshTokenGrant      GrantType = "refresh_token"
	PasswordGrant          GrantType = "password"
	EmailAndPasswordGrant  GrantType = "email_and_password"
	ClientCredentialsGrant GrantType = "client_credentials"
)

// TokenRequest holds parameters for the OAuth2 token request.
// This represents the form body sent to the token endpoint.
type TokenRequest struct {
	// GrantType selects the grant handler.
	// Required: Yes
	GrantType GrantType

	// ClientID identifies the OAuth2 client making the request.
	// Required: Unless the client authenticates with HTTP Basic
	ClientID string

	// ClientSecret is the secret credential for confidential clients.
	// Security: Never log or expose this value
	ClientSecret string

	// Code is the authorization code received from the authorization endpoint.
	// Required: Yes (only for authorization_code grant)
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// RedirectURI must repeat the redirect_uri of the authorization request when one was sent.
	RedirectURI string

	// RefreshToken is used to obtain new access tokens without re-authentication.
	// Required: Yes (only for refresh_token grant)
	// Behavior: Rotated unless refresh tokens are configured to be kept
	RefreshToken string

	// Username and Password are the resource owner credentials of the password grant.
	Username string
	Password string

	// Email replaces Username for the email_and_password grant.
	Email string

	// Scope optionally narrows the requested scope.
	Scope string
}

// ParseTokenRequest reads a token request from a POST form.
func ParseTokenRequest(form url.Values) TokenRequest {
	return TokenRequest{
		GrantType:    GrantType(form.Get("grant_type")),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		RefreshToken: form.Get("refresh_token"),
		Username:     form.Get("username"),
		Password:     form.Get("password"),
		Email:        form.Get("email"),
		Scope:        form.Get("scope"),
	}
}
