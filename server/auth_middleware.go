package server

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/token"
	"github.com/jrsteele09/go-oauth-provider/users"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the resolved resource owner
	ContextKeyUser ContextKey = "user"
	// ContextKeyAccessToken stores the access token the resource owner was resolved from
	ContextKeyAccessToken ContextKey = "access_token"
)

// ResourceOwnerMiddleware resolves the resource owner once per request. The
// owner comes from the login session, then an Authorization header, then an
// access_token parameter and finally the "at" cookie. Tokens must be live and
// users active; otherwise the request continues anonymously.
func (s *Server) ResourceOwnerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); ok {
			next(w, r)
			return
		}

		user, at := s.resolveResourceOwner(r)
		ctx := r.Context()
		if user != nil {
			ctx = context.WithValue(ctx, ContextKeyUser, user)
		}
		if at != nil {
			ctx = context.WithValue(ctx, ContextKeyAccessToken, at)
		}
		next(w, r.WithContext(ctx))
	}
}

// UserFromContext returns the resource owner resolved by ResourceOwnerMiddleware.
func UserFromContext(ctx context.Context) (*users.User, bool) {
	user, ok := ctx.Value(ContextKeyUser).(*users.User)
	return user, ok && user != nil
}

func AccessTokenFromContext(ctx context.Context) (*token.AccessToken, bool) {
	at, ok := ctx.Value(ContextKeyAccessToken).(*token.AccessToken)
	return at, ok && at != nil
}

func (s *Server) resolveResourceOwner(r *http.Request) (*users.User, *token.AccessToken) {
	ctx := r.Context()

	if sess := s.existingSession(r); sess != nil {
		userID, err := sess.UserID(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to read session user")
		} else if userID != "" {
			if user := s.activeUser(ctx, userID); user != nil {
				return user, nil
			}
		}
	}

	value := accessTokenFromRequest(r)
	if value == "" {
		return nil, nil
	}
	at, err := s.tokens.ResolveAccessToken(ctx, value)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) && !apperrors.Is(err, apperrors.ErrTokenExpired) && !apperrors.Is(err, apperrors.ErrInvalidToken) {
			log.Warn().Err(err).Msg("failed to resolve access token")
		}
		return nil, nil
	}
	// Client credentials tokens have no resource owner.
	if at.UserID == "" {
		return nil, nil
	}
	user := s.activeUser(ctx, at.UserID)
	if user == nil {
		return nil, nil
	}
	return user, at
}

func (s *Server) activeUser(ctx context.Context, userID string) *users.User {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrUserNotFound) {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to load user")
		}
		return nil
	}
	if !user.Active {
		return nil
	}
	return user
}

func accessTokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 {
			switch strings.ToLower(parts[0]) {
			case "bearer", "token":
				return strings.TrimSpace(parts[1])
			}
		}
	}
	if v := r.FormValue("access_token"); v != "" {
		return v
	}
	if cookie, err := r.Cookie(accessTokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
