package server

import (
	"net/http"

	"github.com/jrsteele09/go-oauth-provider/auth"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/jrsteele09/go-oauth-provider/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName  string
	Action   string
	Next     string
	Username string // Preserve username on error
	Error    string
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderLogin(w, http.StatusOK, LoginPageData{Next: localPath(r.URL.Query().Get("next"))})
	}
}

// LoginSubmissionHandler checks the credentials and logs the session in (POST /login).
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		data := LoginPageData{
			Next:     localPath(r.PostForm.Get("next")),
			Username: r.PostForm.Get("username"),
		}
		user, _, err := s.verifier.VerifyPassword(r.Context(), nil, auth.Credentials{
			Username: data.Username,
			Password: r.PostForm.Get("password"),
		})
		if err != nil {
			var oerr *oauthmodel.Error
			if !errors.As(err, &oerr) {
				log.Err(err).Msg("login failed")
				http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
				return
			}
			data.Error = "Invalid username or password"
			if oerr.Code == oauthmodel.InvalidRequest {
				data.Error = "Username and password are required"
			}
			s.renderLogin(w, http.StatusUnauthorized, data)
			return
		}

		sess := s.existingSession(r)
		if sess == nil {
			sess = sessions.New(s.sessions, sessions.NewID())
		}
		// Login moves the session, stashed authorization request included, to a new id.
		if err := sess.Login(r.Context(), user.ID); err != nil {
			log.Err(err).Str("user_id", user.ID).Msg("failed to store login")
			http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
			return
		}
		s.SetSessionCookie(w, sess.ID, r, int(s.config.GetMaxSessionAge().Seconds()))
		log.Info().Str("user_id", user.ID).Msg("user logged in")
		http.Redirect(w, r, data.Next, http.StatusFound)
	}
}

// LogoutHandler revokes the token held in the "at" cookie or Authorization
// header and destroys the session (GET /logout).
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if value := accessTokenFromRequest(r); value != "" {
			if err := s.tokens.Revoke(ctx, value); err != nil {
				if !apperrors.Is(err, apperrors.ErrNotFound) && !apperrors.Is(err, apperrors.ErrInvalidToken) {
					log.Warn().Err(err).Msg("failed to revoke token on logout")
				}
			} else {
				s.metrics.RecordTokenRevoked("logout")
			}
			http.SetCookie(w, &http.Cookie{Name: accessTokenCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
		}

		if sess := s.existingSession(r); sess != nil {
			if err := sess.Logout(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to destroy session")
			}
		}
		if _, err := r.Cookie(SessionCookieName); err == nil {
			s.SetSessionCookie(w, "", r, -1)
		}

		http.Redirect(w, r, localPath(r.URL.Query().Get("next")), http.StatusFound)
	}
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, data LoginPageData) {
	data.AppName = s.config.GetAppName()
	data.Action = RouteLogin
	s.render(w, "login.html", status, data)
}
