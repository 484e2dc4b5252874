package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-oauth-provider/clients"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/internal/metrics"
	"github.com/jrsteele09/go-oauth-provider/internal/utils"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/jrsteele09/go-oauth-provider/scope"
	"github.com/jrsteele09/go-oauth-provider/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAuthorizeURL = "/oauth2/authorize/confirm"
	DefaultRedirectURL  = "/oauth2/redirect"
)

// Repos holds all repository dependencies for the AuthorizationService
type Repos struct {
	Clients clients.Repo // Repository for OAuth2 client data
}

// AuthorizationService runs the three stages of the authorization code flow:
// Capture stashes the request, Authorize validates it and asks the resource
// owner for consent, Redirect sends the result back to the client.
type AuthorizationService struct {
	repos         Repos
	store         Store
	registry      *scope.Registry
	authorizeURL  string
	redirectURL   string
	enforceSecure bool
	metrics       metrics.Recorder
	nowTime       func() time.Time // nowTime function (injectable for testing)
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// WithScopeRegistry sets the scope names requests are validated against.
func WithScopeRegistry(registry *scope.Registry) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.registry = registry
	}
}

// WithStageURLs overrides where Capture and Authorize send the user agent next.
func WithStageURLs(authorizeURL, redirectURL string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.authorizeURL = authorizeURL
		as.redirectURL = redirectURL
	}
}

// WithEnforceSecure makes Capture refuse requests that did not arrive over TLS.
func WithEnforceSecure(enforce bool) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.enforceSecure = enforce
	}
}

// WithAuthorizationMetrics sets the recorder for authorization decisions.
func WithAuthorizationMetrics(recorder metrics.Recorder) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.metrics = recorder
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(repos Repos, store Store, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if store == nil {
		return nil, errors.New("[NewAuthorizationService] store is required")
	}

	authService := &AuthorizationService{
		repos:        repos,
		store:        store,
		registry:     scope.Default(),
		authorizeURL: DefaultAuthorizeURL,
		redirectURL:  DefaultRedirectURL,
		metrics:      metrics.NewNoopMetrics(),
		nowTime:      time.Now,
	}

	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// Capture stashes every request parameter and sends the user agent on to the
// Authorize stage so the parameters do not linger in the browser location.
func (as *AuthorizationService) Capture(ctx context.Context, stash *sessions.Stash, values url.Values, secure bool) (*Outcome, error) {
	if err := stash.Clear(ctx); err != nil {
		return nil, errors.Wrap(err, "[Capture] clear stash")
	}
	if err := stash.Put(ctx, sessions.KeyParams, oauthmodel.ParseAuthorizationParameters(values)); err != nil {
		return nil, errors.Wrap(err, "[Capture] stash params")
	}

	if as.enforceSecure && !secure {
		return renderError(oauthmodel.NewError(oauthmodel.AccessDenied, "A secure connection is required."), ""), nil
	}
	return redirect(as.authorizeURL), nil
}

// AuthorizeRequest is the resource owner's side of the Authorize stage.
type AuthorizeRequest struct {
	// UserID is the logged in resource owner; empty means nobody is logged in.
	UserID string

	// Submitted is true when the consent form was posted.
	Submitted bool

	// Form holds the consent form: "authorize" and an optional narrowed "scope".
	Form url.Values
}

// Authorize validates the stashed request against the client and either shows
// the consent page or records the resource owner's decision.
func (as *AuthorizationService) Authorize(ctx context.Context, stash *sessions.Stash, req AuthorizeRequest) (*Outcome, error) {
	if req.UserID == "" {
		return &Outcome{Kind: OutcomeLogin, Status: http.StatusFound, Location: as.authorizeURL}, nil
	}

	var params oauthmodel.AuthorizationParameters
	found, err := stash.Get(ctx, sessions.KeyParams, &params)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorize] load params")
	}
	if !found {
		return renderError(oauthmodel.NewError(oauthmodel.ExpiredAuthorization, "Authorization session has expired."), "/"), nil
	}

	client, err := as.repos.Clients.Get(ctx, params.ClientID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrClientNotFound) {
			return nil, errors.Wrap(err, "[Authorize] get client")
		}
		as.metrics.RecordAuthorizationDecision(metrics.DecisionError)
		return renderError(oauthmodel.NewError(oauthmodel.UnauthorizedClient, "An unauthorized client tried to access your resources."), "/"), nil
	}
	if client.IsDisabled() {
		as.metrics.RecordAuthorizationDecision(metrics.DecisionError)
		return renderError(oauthmodel.NewError(oauthmodel.DisabledClient, "A disabled client tried to access your resources."), "/"), nil
	}

	authReq, oerr := params.ValidateParametersWithClient(client, as.registry)
	if oerr != nil {
		as.metrics.RecordAuthorizationDecision(metrics.DecisionError)
		if oerr.Field == "redirect_uri" {
			return renderError(oerr, "/"), nil
		}
		// The callback is trustworthy, so the error travels back to it.
		if err := as.stashResult(ctx, stash, client, nil, "", oerr); err != nil {
			return nil, err
		}
		return renderError(oerr, as.redirectURL), nil
	}

	approved, grantScope := false, authReq.Scope
	if !req.Submitted {
		_, err := as.store.FindActiveAccessToken(ctx, client.ID, req.UserID, authReq.Scope)
		switch {
		case err == nil:
			approved = true
			as.metrics.RecordAuthorizationDecision(metrics.DecisionAutoApproved)
			log.Debug().Str("client_id", client.ID).Str("user_id", req.UserID).Msg("already authorized, skipping consent")
		case errors.Is(err, apperrors.ErrNotFound):
			return as.consent(client, authReq, nil), nil
		default:
			return nil, errors.Wrap(err, "[Authorize] find active access token")
		}
	} else {
		approved = formBool(req.Form.Get("authorize"))
		if raw := strings.TrimSpace(req.Form.Get("scope")); raw != "" && approved {
			narrowed, err := as.registry.Parse(raw, authReq.Scope)
			if err != nil || !scope.Check(narrowed, authReq.Scope) {
				return as.consent(client, authReq, oauthmodel.Errorf(oauthmodel.InvalidScope, "'%s' is not a valid scope.", raw)), nil
			}
			grantScope = narrowed
		}
		decision := metrics.DecisionDenied
		if approved {
			decision = metrics.DecisionGranted
		}
		as.metrics.RecordAuthorizationDecision(decision)
	}

	var code string
	if approved {
		grant, err := as.store.CreateGrant(ctx, client, req.UserID, grantScope, authReq.RedirectURI)
		if err != nil {
			return nil, errors.Wrap(err, "[Authorize] create grant")
		}
		code = grant.Code
	}

	authReq.Scope = grantScope
	if err := as.stashResult(ctx, stash, client, authReq, code, nil); err != nil {
		return nil, err
	}
	return redirect(as.redirectURL), nil
}

// stashResult records what the Redirect stage needs. The captured params stay
// untouched so a repeated Authorize validates them again; a nil request means
// the Redirect stage falls back to them.
func (as *AuthorizationService) stashResult(ctx context.Context, stash *sessions.Stash, client *clients.Client, authReq *oauthmodel.AuthorizationRequest, code string, oerr *oauthmodel.Error) error {
	if authReq != nil {
		if err := stash.Put(ctx, sessions.KeyRequest, authReq); err != nil {
			return errors.Wrap(err, "[Authorize] stash request")
		}
	} else if err := stash.Delete(ctx, sessions.KeyRequest); err != nil {
		return errors.Wrap(err, "[Authorize] clear request")
	}
	if code != "" {
		if err := stash.Put(ctx, sessions.KeyCode, code); err != nil {
			return errors.Wrap(err, "[Authorize] stash code")
		}
	} else if err := stash.Delete(ctx, sessions.KeyCode); err != nil {
		return errors.Wrap(err, "[Authorize] clear code")
	}
	if oerr != nil {
		if err := stash.Put(ctx, sessions.KeyError, oerr.Payload()); err != nil {
			return errors.Wrap(err, "[Authorize] stash error")
		}
	} else if err := stash.Delete(ctx, sessions.KeyError); err != nil {
		return errors.Wrap(err, "[Authorize] clear error")
	}

	serialized, err := client.Serialize()
	if err != nil {
		return errors.Wrap(err, "[Authorize] serialize client")
	}
	return errors.Wrap(stash.Put(ctx, sessions.KeyClient, serialized), "[Authorize] stash client")
}

func (as *AuthorizationService) consent(client *clients.Client, authReq *oauthmodel.AuthorizationRequest, oerr *oauthmodel.Error) *Outcome {
	names := as.registry.Names(authReq.Scope)
	scopes := make([]ScopeDescription, 0, len(names))
	for _, n := range names {
		scopes = append(scopes, ScopeDescription{Name: n, Description: as.registry.Description(n)})
	}
	status := http.StatusOK
	if oerr != nil {
		status = http.StatusBadRequest
	}
	return &Outcome{
		Kind:   OutcomeConsent,
		Status: status,
		Consent: &ConsentPrompt{
			Client:  client,
			Request: authReq,
			Scopes:  scopes,
			Error:   oerr,
		},
	}
}

// redirectData is the subset of the stashed request the Redirect stage reads. It
// decodes both the validated request and the captured params.
type redirectData struct {
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
}

// Redirect sends the user agent back to the client's callback with either the
// code or an error, then clears the stash.
func (as *AuthorizationService) Redirect(ctx context.Context, stash *sessions.Stash) (*Outcome, error) {
	var data redirectData
	foundData, err := stash.Get(ctx, sessions.KeyRequest, &data)
	if err != nil {
		return nil, errors.Wrap(err, "[Redirect] load request")
	}
	if !foundData {
		if foundData, err = stash.Get(ctx, sessions.KeyParams, &data); err != nil {
			return nil, errors.Wrap(err, "[Redirect] load params")
		}
	}
	var code string
	if _, err := stash.Get(ctx, sessions.KeyCode, &code); err != nil {
		return nil, errors.Wrap(err, "[Redirect] load code")
	}
	var payload map[string]string
	foundError, err := stash.Get(ctx, sessions.KeyError, &payload)
	if err != nil {
		return nil, errors.Wrap(err, "[Redirect] load error")
	}
	var rawClient json.RawMessage
	foundClient, err := stash.Get(ctx, sessions.KeyClient, &rawClient)
	if err != nil {
		return nil, errors.Wrap(err, "[Redirect] load client")
	}

	var snapshot *clients.Snapshot
	if foundClient {
		snapshot, err = decodeClientSnapshot(rawClient)
		if err != nil {
			log.Warn().Err(err).Msg("discarding undecodable client snapshot")
		}
	}
	if !foundData || snapshot == nil {
		return invalidData(), nil
	}

	target := data.RedirectURI
	if target == "" {
		target = snapshot.DefaultRedirectURI()
	}
	u, err := url.Parse(target)
	if err != nil || target == "" {
		return invalidData(), nil
	}

	query := orderedQuery{}
	if data.State != "" {
		query.add("state", data.State)
	}
	switch {
	case foundError:
		query.add("error", payload["error"])
		if d := payload["error_description"]; d != "" {
			query.add("error_description", d)
		}
	case code == "":
		query.add("error", string(oauthmodel.AccessDenied))
	default:
		query.add("code", code)
	}
	u.RawQuery = query.encode()
	u.Fragment = ""

	if err := stash.Clear(ctx); err != nil {
		return nil, errors.Wrap(err, "[Redirect] clear stash")
	}
	return redirect(u.String()), nil
}

// decodeClientSnapshot accepts either the serialized snapshot string or an
// already decoded object.
func decodeClientSnapshot(raw json.RawMessage) (*clients.Snapshot, error) {
	var serialized string
	if err := json.Unmarshal(raw, &serialized); err == nil {
		return clients.Deserialize(serialized)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "client snapshot")
	}
	snapshot := &clients.Snapshot{}
	snapshot.ID, _ = decoded["id"].(string)
	switch uris := decoded["redirect_uri"].(type) {
	case []any:
		snapshot.RedirectURIs = utils.ToStringSlice(uris)
	case string:
		snapshot.RedirectURIs = strings.Fields(uris)
	}
	if snapshot.ID == "" {
		return nil, errors.New("client snapshot without id")
	}
	return snapshot, nil
}

type orderedQuery []string

func (q *orderedQuery) add(key, value string) {
	*q = append(*q, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (q orderedQuery) encode() string {
	return strings.Join(q, "&")
}

func redirect(location string) *Outcome {
	return &Outcome{Kind: OutcomeRedirect, Status: http.StatusFound, Location: location}
}

func renderError(oerr *oauthmodel.Error, next string) *Outcome {
	return &Outcome{Kind: OutcomeRenderError, Status: http.StatusBadRequest, Error: oerr, Next: next}
}

func invalidData() *Outcome {
	return &Outcome{
		Kind:   OutcomeJSONError,
		Status: http.StatusBadRequest,
		Error:  oauthmodel.NewError(oauthmodel.InvalidData, "Data has not been captured"),
	}
}

// formBool follows HTML checkbox semantics: anything but empty, "false" or "0" is true.
func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "off":
		return false
	}
	return true
}
