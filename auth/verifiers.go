package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-oauth-provider/clients"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/internal/metrics"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/jrsteele09/go-oauth-provider/scope"
	"github.com/jrsteele09/go-oauth-provider/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Credentials are the resource owner fields of a password or email_and_password request.
type Credentials struct {
	Username string
	Email    string
	Password string
	Scope    string
}

// CredentialVerifier resolves resource owner credentials to a user and the scope
// the token should carry. Failures the client should see are *oauthmodel.Error
// values carrying invalid_credentials (401) or invalid_scope (403).
type CredentialVerifier interface {
	VerifyPassword(ctx context.Context, client *clients.Client, creds Credentials) (*users.User, int, error)
	VerifyEmailAndPassword(ctx context.Context, client *clients.Client, creds Credentials) (*users.User, int, error)
}

var _ CredentialVerifier = (*UserRepoVerifier)(nil)

// UserRepoVerifier checks credentials against a users.UserRepo.
type UserRepoVerifier struct {
	users    users.UserRepo
	registry *scope.Registry
	metrics  metrics.Recorder
	nowTime  func() time.Time
}

func NewUserRepoVerifier(userRepo users.UserRepo, registry *scope.Registry, recorder metrics.Recorder) *UserRepoVerifier {
	if registry == nil {
		registry = scope.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &UserRepoVerifier{
		users:    userRepo,
		registry: registry,
		metrics:  recorder,
		nowTime:  time.Now,
	}
}

// VerifyPassword looks the user up by username, or by email when the username looks like one.
func (v *UserRepoVerifier) VerifyPassword(ctx context.Context, client *clients.Client, creds Credentials) (*users.User, int, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, 0, oauthmodel.NewError(oauthmodel.InvalidRequest, "username and password are required")
	}
	user, err := v.users.GetByUsername(ctx, creds.Username)
	if errors.Is(err, apperrors.ErrUserNotFound) && strings.Contains(creds.Username, "@") {
		user, err = v.users.GetByEmail(ctx, creds.Username)
	}
	return v.verify(ctx, user, err, creds)
}

func (v *UserRepoVerifier) VerifyEmailAndPassword(ctx context.Context, client *clients.Client, creds Credentials) (*users.User, int, error) {
	if creds.Email == "" || creds.Password == "" {
		return nil, 0, oauthmodel.NewError(oauthmodel.InvalidRequest, "email and password are required")
	}
	user, err := v.users.GetByEmail(ctx, creds.Email)
	return v.verify(ctx, user, err, creds)
}

func (v *UserRepoVerifier) verify(ctx context.Context, user *users.User, lookupErr error, creds Credentials) (*users.User, int, error) {
	if lookupErr != nil && !errors.Is(lookupErr, apperrors.ErrUserNotFound) {
		return nil, 0, errors.Wrap(lookupErr, "[verify] user lookup")
	}
	if lookupErr != nil || !user.Active || !user.CheckPassword(creds.Password) {
		v.metrics.RecordLogin(false)
		return nil, 0, invalidCredentials()
	}

	requested, err := v.registry.Parse(creds.Scope, v.registry.Default())
	if err != nil {
		return nil, 0, oauthmodel.Errorf(oauthmodel.InvalidScope, "'%s' is not a valid scope.", creds.Scope).WithStatus(http.StatusForbidden)
	}

	if err := v.users.SetLastLogin(ctx, user.ID, v.nowTime()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}
	v.metrics.RecordLogin(true)
	return user, requested, nil
}

func invalidCredentials() *oauthmodel.Error {
	return oauthmodel.NewError(oauthmodel.InvalidCredentials, "Invalid credentials.").WithStatus(http.StatusUnauthorized)
}
