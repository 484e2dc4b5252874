package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-oauth-provider/auth"
	"github.com/jrsteele09/go-oauth-provider/clients"
	fakeclientrepo "github.com/jrsteele09/go-oauth-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oauth-provider/oauthmodel"
	"github.com/jrsteele09/go-oauth-provider/sessions"
	"github.com/jrsteele09/go-oauth-provider/token"
	tokenfakerepo "github.com/jrsteele09/go-oauth-provider/token/repofake"
	"github.com/jrsteele09/go-oauth-provider/users"
	fakeuserrepo "github.com/jrsteele09/go-oauth-provider/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testConfidentialID     = "confidential-client"
	testConfidentialSecret = "confidential-secret"
	testPublicID           = "public-client"
	testDisabledID         = "disabled-client"
	testUserID             = "user-1"
	testUsername           = "jdoe"
	testUserEmail          = "john.doe@example.com"
	testUserPassword       = "Password123"
	testRedirectURI        = "https://app.example/cb"
	testState              = "xyz"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testFixture holds all test dependencies
type testFixture struct {
	clientRepo   *fakeclientrepo.FakeClientRepo
	userRepo     *fakeuserrepo.FakeUserRepo
	tokenRepo    *tokenfakerepo.FakeTokenRepo
	manager      *token.Manager
	service      *auth.AuthorizationService
	tokenService *auth.TokenService
	stash        *sessions.Stash
	clock        *clock
	confidential *clients.Client
	public       *clients.Client
}

type fixtureOptions struct {
	auth  []auth.AuthorizationServiceOption
	token []auth.TokenServiceOption
}

// setupTestFixture creates a new test fixture with a confidential, a public and a
// disabled client and one active user.
func setupTestFixture(t *testing.T, opts fixtureOptions) *testFixture {
	t.Helper()
	ctx := context.Background()

	c := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	cr := fakeclientrepo.NewFakeClientRepo()
	ur := fakeuserrepo.NewFakeUserRepo()
	tr := tokenfakerepo.NewFakeTokenRepo()
	manager := token.New(tr, token.WithNowTime(c.Now))

	confidential := &clients.Client{
		ID:           testConfidentialID,
		Secret:       testConfidentialSecret,
		Name:         "Confidential App",
		RedirectURIs: []string{testRedirectURI, "https://app.example/other"},
		Type:         clients.ClientTypeConfidential,
		Status:       clients.StatusEnabled,
	}
	public := &clients.Client{
		ID:           testPublicID,
		Name:         "Public App",
		RedirectURIs: []string{"https://spa.example/cb"},
		Type:         clients.ClientTypePublic,
		Status:       clients.StatusEnabled,
	}
	disabled := &clients.Client{
		ID:           testDisabledID,
		Secret:       "disabled-secret",
		RedirectURIs: []string{"https://disabled.example/cb"},
		Type:         clients.ClientTypeConfidential,
		Status:       clients.StatusDisabled,
	}
	for _, cl := range []*clients.Client{confidential, public, disabled} {
		require.NoError(t, cr.Upsert(ctx, cl))
	}

	user := &users.User{ID: testUserID, Username: testUsername, Email: testUserEmail, Active: true}
	require.NoError(t, user.SetPassword(testUserPassword))
	require.NoError(t, ur.Upsert(ctx, user))

	authService, err := auth.NewAuthorizationService(auth.Repos{Clients: cr}, manager, opts.auth...)
	require.NoError(t, err)

	tokenOptions := append([]auth.TokenServiceOption{auth.WithTokenNowTime(c.Now)}, opts.token...)
	tokenService, err := auth.NewTokenService(
		manager,
		auth.DefaultClientBackends(cr, false),
		auth.NewUserRepoVerifier(ur, nil, nil),
		tokenOptions...,
	)
	require.NoError(t, err)

	session := sessions.New(sessions.NewMemoryBackend(time.Hour), sessions.NewID())

	return &testFixture{
		clientRepo:   cr,
		userRepo:     ur,
		tokenRepo:    tr,
		manager:      manager,
		service:      authService,
		tokenService: tokenService,
		stash:        session.Stash("oauth"),
		clock:        c,
		confidential: confidential,
		public:       public,
	}
}

func requireOAuthError(t *testing.T, err error, code oauthmodel.ErrorCode, status int) {
	t.Helper()
	var oerr *oauthmodel.Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, code, oerr.Code)
	require.Equal(t, status, oerr.Status)
}
