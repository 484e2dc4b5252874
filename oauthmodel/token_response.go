package oauthmodel

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
type TokenResponse struct {
	// AccessToken is the opaque token used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in"`

	// Scope is the space separated list of scope names the token carries.
	Scope string `json:"scope"`

	// RefreshToken is present only when a refresh token is bound to the access token.
	// Public clients using the password grant never receive one.
	RefreshToken string `json:"refresh_token,omitempty"`
}
