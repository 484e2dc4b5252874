package auth

import (
	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
)

// OutcomeKind tells the transport what to do with a stage result.
type OutcomeKind int

const (
	// OutcomeRedirect sends a 302 to Location.
	OutcomeRedirect OutcomeKind = iota
	// OutcomeRenderError shows Error to the resource owner with a link to Next.
	OutcomeRenderError
	// OutcomeConsent shows the consent page described by Consent.
	OutcomeConsent
	// OutcomeJSONError writes Error as a JSON body.
	OutcomeJSONError
	// OutcomeLogin asks the resource owner to log in and come back to Location.
	OutcomeLogin
)

// Outcome is the result of a Capture, Authorize or Redirect stage.
type Outcome struct {
	Kind     OutcomeKind
	Status   int
	Location string
	Error    *oauthmodel.Error
	Next     string
	Consent  *ConsentPrompt
}

// ConsentPrompt carries what the consent page displays.
type ConsentPrompt struct {
	Client  *clients.Client
	Request *oauthmodel.AuthorizationRequest
	Scopes  []ScopeDescription
	Error   *oauthmodel.Error // set when a submitted consent form was invalid
}

type ScopeDescription struct {
	Name        string
	Description string
}
