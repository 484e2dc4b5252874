package oauthmodel

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/scope"
)

// ResponseType represents the OAuth 2.0 response type.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// Example: /oauth2/authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"

	// TokenResponseType is accepted for compatibility with clients that still
	// request it; the flow still hands back an authorization code.
	TokenResponseType ResponseType = "token"
)

// AuthorizationParameters holds the raw parameters of an authorization request.
// They are stashed verbatim by the capture stage and validated later.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Required: Yes
	// Validated against: clients.Client.ID
	ClientID string `json:"client_id"`

	// ResponseType specifies what the authorization endpoint should return.
	// Required: Yes
	// Allowed: "code", "token"
	ResponseType string `json:"response_type"`

	// RedirectURI is where the authorization response will be sent.
	// Required: No (defaults to the client's first registered callback)
	// Security: Must exactly match a pre-registered URI to prevent open redirects
	RedirectURI string `json:"redirect_uri,omitempty"`

	// Scope is the space separated list of requested scope names.
	// Required: No (defaults to the registry's lowest scope)
	// Example: "read write"
	Scope string `json:"scope,omitempty"`

	// State is an opaque value used by the client to maintain state between request and callback.
	// Required: Recommended (CSRF protection)
	// The server echoes it back unchanged in the redirect.
	State string `json:"state,omitempty"`
}

// ParseAuthorizationParameters reads the recognised parameters from a query or form.
func ParseAuthorizationParameters(values url.Values) AuthorizationParameters {
	return AuthorizationParameters{
		ClientID:     values.Get("client_id"),
		ResponseType: values.Get("response_type"),
		RedirectURI:  values.Get("redirect_uri"),
		Scope:        values.Get("scope"),
		State:        values.Get("state"),
	}
}

// AuthorizationRequest is a validated authorization request.
type AuthorizationRequest struct {
	ClientID     string       `json:"client_id"`
	ResponseType ResponseType `json:"response_type"`
	RedirectURI  string       `json:"redirect_uri,omitempty"`
	Scope        int          `json:"scope"`
	State        string       `json:"state,omitempty"`
}

// ValidateParametersWithClient validates the parameters against the client in
// the order redirect_uri, response_type, scope. The returned error carries the
// failing field.
func (p *AuthorizationParameters) ValidateParametersWithClient(client *clients.Client, registry *scope.Registry) (*AuthorizationRequest, *Error) {
	if p.RedirectURI != "" && !redirectValidForClient(p.RedirectURI, client) {
		return nil, NewError(InvalidRequest, "The requested redirect didn't match the client settings.").WithField("redirect_uri")
	}

	if p.ResponseType == "" {
		return nil, NewError(InvalidRequest, "No response_type supplied.").WithField("response_type")
	}
	responseType, ok := responseTypeValid(p.ResponseType)
	if !ok {
		return nil, Errorf(InvalidRequest, "'%s' is not a supported response type.", p.ResponseType).WithField("response_type")
	}

	requested, err := registry.Parse(p.Scope, registry.Default())
	if err != nil {
		return nil, Errorf(InvalidScope, "'%s' is not a valid scope.", strings.TrimSpace(p.Scope)).WithField("scope")
	}

	return &AuthorizationRequest{
		ClientID:     client.ID,
		ResponseType: responseType,
		RedirectURI:  p.RedirectURI,
		Scope:        requested,
		State:        p.State,
	}, nil
}

// responseTypeValid accepts a space separated list whose members are all supported.
func responseTypeValid(responseType string) (ResponseType, bool) {
	types := strings.Fields(responseType)
	if len(types) == 0 {
		return "", false
	}
	for _, t := range types {
		switch ResponseType(t) {
		case CodeResponseType, TokenResponseType:
		default:
			return "", false
		}
	}
	return ResponseType(types[0]), true
}

func redirectValidForClient(redirectUri string, client *clients.Client) bool {
	return client.HasRedirectURI(redirectUri)
}
