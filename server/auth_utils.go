package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-oauth-provider/sessions"
	"github.com/rs/zerolog/log"
)

const (
	// SessionCookieName carries the id of the user agent's session
	SessionCookieName = "oauth_session"
	// accessTokenCookieName may carry an access token identifying the resource owner
	accessTokenCookieName = "at"
)

func (s *Server) SetSessionCookie(w http.ResponseWriter, sessionID string, r *http.Request, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// session returns the request's session, starting a new one when the user agent has none.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *sessions.Session {
	if sess := s.existingSession(r); sess != nil {
		return sess
	}
	id := sessions.NewID()
	s.SetSessionCookie(w, id, r, int(s.config.GetMaxSessionAge().Seconds()))
	return sessions.New(s.sessions, id)
}

// existingSession returns nil when no session cookie was sent or the cookie names
// a session this server does not hold.
func (s *Server) existingSession(r *http.Request) *sessions.Session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	live, err := s.sessions.Exists(r.Context(), cookie.Value)
	if err != nil {
		log.Warn().Err(err).Msg("failed to look up session")
		return nil
	}
	if !live {
		return nil
	}
	return sessions.New(s.sessions, cookie.Value)
}

func (s *Server) stash(sess *sessions.Session) *sessions.Stash {
	return sess.Stash(s.config.GetSessionKey())
}

// localPath keeps post-login redirects on this server.
func localPath(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return RouteIndex
	}
	return next
}
