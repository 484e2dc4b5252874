package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oauth-provider/auth"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// CaptureHandler stashes the authorization request (GET|POST /oauth2/authorize).
func (s *Server) CaptureHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, string(oauthmodel.InvalidRequest), "Invalid request parameters", http.StatusBadRequest)
			return
		}
		sess := s.session(w, r)
		out, err := s.auth.Capture(r.Context(), s.stash(sess), r.Form, s.isSecure(r))
		s.writeOutcome(w, r, out, err)
	}
}

// AuthorizeHandler shows the consent page and records the decision
// (GET|POST /oauth2/authorize/confirm).
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := auth.AuthorizeRequest{Submitted: r.Method == http.MethodPost}
		if user, ok := UserFromContext(r.Context()); ok {
			req.UserID = user.ID
		}
		if req.Submitted {
			if err := r.ParseForm(); err != nil {
				writeJSONError(w, string(oauthmodel.InvalidRequest), "Invalid consent form", http.StatusBadRequest)
				return
			}
			req.Form = consentForm(r.PostForm)
		}

		sess := s.session(w, r)
		out, err := s.auth.Authorize(r.Context(), s.stash(sess), req)
		s.writeOutcome(w, r, out, err)
	}
}

// RedirectHandler sends the user agent back to the client (GET /oauth2/redirect).
func (s *Server) RedirectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.session(w, r)
		out, err := s.auth.Redirect(r.Context(), s.stash(sess))
		s.writeOutcome(w, r, out, err)
	}
}

// AccessTokenHandler is the token endpoint (POST /oauth2/access_token).
func (s *Server) AccessTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, string(oauthmodel.InvalidRequest), "Invalid form body", http.StatusBadRequest)
			return
		}

		req := &auth.TokenEndpointRequest{
			Method: r.Method,
			Secure: s.isSecure(r),
			Form:   r.PostForm,
		}
		req.BasicUser, req.BasicPassword, req.HasBasic = r.BasicAuth()

		resp, err := s.tokenService.Exchange(r.Context(), req)
		if err != nil {
			var oerr *oauthmodel.Error
			if !errors.As(err, &oerr) {
				log.Err(err).
					Str("grant_type", r.PostForm.Get("grant_type")).
					Msg("token request failed")
				logError(r.Method, r.URL.Path, err.Error())
				writeJSONError(w, string(oauthmodel.UnknownError), "", http.StatusInternalServerError)
				return
			}
			writeJSONError(w, string(oerr.Code), oerr.Description, oerr.Status)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// consentForm joins repeated scope checkboxes into one space separated value.
func consentForm(form url.Values) url.Values {
	out := url.Values{}
	for k, v := range form {
		out[k] = v
	}
	if scopes := form["scope"]; len(scopes) > 1 {
		out.Set("scope", strings.Join(scopes, " "))
	}
	return out
}

// writeOutcome turns a stage result into an HTTP response.
func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, out *auth.Outcome, err error) {
	if err != nil {
		log.Err(err).Str("path", r.URL.Path).Msg("authorization flow failed")
		s.renderErrorPage(w, oauthmodel.NewError(oauthmodel.UnknownError, "Something went wrong, please try again.").WithStatus(http.StatusInternalServerError), RouteIndex)
		return
	}

	switch out.Kind {
	case auth.OutcomeRedirect:
		http.Redirect(w, r, out.Location, out.Status)
	case auth.OutcomeLogin:
		http.Redirect(w, r, RouteLogin+"?next="+url.QueryEscape(out.Location), out.Status)
	case auth.OutcomeConsent:
		s.render(w, "authorize.html", out.Status, newConsentPage(out.Consent))
	case auth.OutcomeRenderError:
		s.renderErrorPage(w, out.Error.WithStatus(out.Status), out.Next)
	case auth.OutcomeJSONError:
		writeJSONError(w, string(out.Error.Code), out.Error.Description, out.Status)
	default:
		log.Error().Int("kind", int(out.Kind)).Msg("unknown authorization outcome")
		writeJSONError(w, string(oauthmodel.UnknownError), "", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to write JSON response")
	}
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	body := map[string]string{"error": errorCode}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, statusCode, body)
}
