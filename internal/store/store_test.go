package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-oauth-provider/clients"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/token"
	"github.com/jrsteele09/go-oauth-provider/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("sqlite", filepath.Join(t.TempDir(), "oauth.db"))
	require.NoError(t, err)

	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestGetDialector(t *testing.T) {
	_, err := GetDialector("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = GetDialector("postgres", "host=localhost")
	require.NoError(t, err)
	_, err = GetDialector("oracle", "")
	require.Error(t, err)
}

func TestClientStore(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Clients()

	c := &clients.Client{
		ID:           "client-b",
		Secret:       "secret",
		Name:         "App",
		RedirectURIs: []string{"https://app.example/cb", "https://app.example/other"},
		Type:         clients.ClientTypePublic,
		Status:       clients.StatusEnabled,
	}
	require.NoError(t, repo.Upsert(ctx, c))
	require.NoError(t, repo.Upsert(ctx, &clients.Client{ID: "client-a", Secret: "s", Type: clients.ClientTypeConfidential, Status: clients.StatusEnabled}))

	got, err := repo.Get(ctx, "client-b")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	c.Status = clients.StatusDisabled
	require.NoError(t, repo.Upsert(ctx, c))
	got, err = repo.Get(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, got.IsDisabled())

	list, err := repo.List(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "client-a", list[0].ID)

	list, err = repo.List(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, repo.Delete(ctx, "client-b"))
	_, err = repo.Get(ctx, "client-b")
	require.ErrorIs(t, err, apperrors.ErrClientNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "client-b"), apperrors.ErrClientNotFound)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Users()

	u := &users.User{Email: "John.Doe@Example.com", Username: "jdoe", Active: true, DateJoined: testNow}
	require.NoError(t, repo.Upsert(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := repo.GetByEmail(ctx, "john.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "John.Doe@Example.com", got.Email)

	got, err = repo.GetByUsername(ctx, "jdoe")
	require.NoError(t, err)
	assert.True(t, got.Active)

	require.NoError(t, repo.SetActive(ctx, u.ID, false))
	require.NoError(t, repo.SetLastLogin(ctx, u.ID, testNow.Add(time.Hour)))
	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.True(t, got.LastLogin.Equal(testNow.Add(time.Hour)))

	_, err = repo.GetByUsername(ctx, "")
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	require.ErrorIs(t, repo.SetActive(ctx, "missing", true), apperrors.ErrUserNotFound)

	require.NoError(t, repo.Delete(ctx, u.ID))
	_, err = repo.GetByID(ctx, u.ID)
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestInactiveUserSurvivesUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Users()

	u := &users.User{ID: "inactive", Username: "inactive", Active: false}
	require.NoError(t, repo.Upsert(ctx, u))

	got, err := repo.GetByID(ctx, "inactive")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestGrantInvalidation(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Tokens()

	for _, remove := range []bool{false, true} {
		g := &token.Grant{Code: grantCode(remove), Expires: testNow.Add(10 * time.Minute), Scope: 2, ClientID: "c", UserID: "u"}
		require.NoError(t, repo.CreateGrant(ctx, g))

		got, err := repo.GetGrant(ctx, g.Code)
		require.NoError(t, err)
		assert.Equal(t, g.ID, got.ID)

		require.NoError(t, repo.InvalidateGrant(ctx, g.ID, testNow, remove))
		require.ErrorIs(t, repo.InvalidateGrant(ctx, g.ID, testNow, remove), apperrors.ErrGrantAlreadyUsed)
	}

	_, err := repo.GetGrant(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrGrantNotFound)
}

func grantCode(remove bool) string {
	if remove {
		return "code-removed"
	}
	return "code-marked"
}

func TestGrantInvalidationConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Tokens()

	g := &token.Grant{Code: "race", Expires: testNow.Add(10 * time.Minute), ClientID: "c"}
	require.NoError(t, repo.CreateGrant(ctx, g))

	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.InvalidateGrant(ctx, g.ID, testNow, false) == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestAccessTokens(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Tokens()

	older := &token.AccessToken{Token: "older", Expires: testNow.Add(time.Hour), Scope: 2, ClientID: "c", UserID: "u", CreatedAt: testNow}
	newer := &token.AccessToken{Token: "newer", Expires: testNow.Add(time.Hour), Scope: 2, ClientID: "c", UserID: "u", CreatedAt: testNow.Add(time.Second)}
	expired := &token.AccessToken{Token: "expired", Expires: testNow.Add(-time.Hour), Scope: 2, ClientID: "c", UserID: "u", CreatedAt: testNow}
	for _, at := range []*token.AccessToken{older, newer, expired} {
		require.NoError(t, repo.CreateAccessToken(ctx, at))
	}

	found, err := repo.FindAccessToken(ctx, "c", "u", 2, testNow)
	require.NoError(t, err)
	assert.Equal(t, "newer", found.Token)

	_, err = repo.FindAccessToken(ctx, "c", "u", 6, testNow)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	byID, err := repo.GetAccessTokenByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "older", byID.Token)

	require.NoError(t, repo.InvalidateAccessToken(ctx, newer.ID, testNow, false))
	got, err := repo.GetAccessToken(ctx, "newer")
	require.NoError(t, err)
	assert.True(t, got.IsExpired(testNow))

	n, err := repo.DeleteExpiredAccessTokens(ctx, "c", "u", testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, repo.InvalidateAccessToken(ctx, older.ID, testNow, true))
	_, err = repo.GetAccessToken(ctx, "older")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Tokens()

	first := &token.RefreshToken{Token: "rt-1", Scope: 2, ClientID: "c", UserID: "u", AccessTokenID: "at-1", CreatedAt: testNow}
	second := &token.RefreshToken{Token: "rt-2", Scope: 2, ClientID: "c", UserID: "u", AccessTokenID: "at-2", CreatedAt: testNow.Add(time.Minute)}
	require.NoError(t, repo.CreateRefreshToken(ctx, second))
	require.NoError(t, repo.CreateRefreshToken(ctx, first))

	list, err := repo.ListRefreshTokens(ctx, "c", "u", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "rt-1", list[0].Token)

	bound, err := repo.GetRefreshTokenByAccessToken(ctx, "at-2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, bound.ID)

	require.NoError(t, repo.BindRefreshToken(ctx, second.ID, "at-3"))
	_, err = repo.GetRefreshTokenByAccessToken(ctx, "at-2")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, repo.InvalidateRefreshToken(ctx, first.ID, false))
	require.ErrorIs(t, repo.InvalidateRefreshToken(ctx, first.ID, false), apperrors.ErrTokenRevoked)
	require.ErrorIs(t, repo.BindRefreshToken(ctx, first.ID, "at-4"), apperrors.ErrTokenRevoked)

	got, err := repo.GetRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.True(t, got.Expired)

	require.NoError(t, repo.InvalidateRefreshToken(ctx, second.ID, true))
	_, err = repo.GetRefreshToken(ctx, "rt-2")
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	list, err = repo.ListRefreshTokens(ctx, "c", "u", 2)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// TestManagerOnSQL runs the token lifecycle through token.Manager backed by the SQL store.
func TestManagerOnSQL(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Tokens()
	manager := token.New(repo, token.WithNowTime(func() time.Time { return testNow }))
	client := &clients.Client{ID: "c", Type: clients.ClientTypeConfidential}

	grant, err := manager.CreateGrant(ctx, client, "u", 2, "")
	require.NoError(t, err)
	_, err = manager.GetGrant(ctx, client, grant.Code, "")
	require.NoError(t, err)
	require.NoError(t, manager.InvalidateGrant(ctx, grant))
	_, err = manager.GetGrant(ctx, client, grant.Code, "")
	require.ErrorIs(t, err, apperrors.ErrGrantExpired)

	at, rt, err := manager.GetAccessToken(ctx, client, "u", 2, true)
	require.NoError(t, err)
	require.NotNil(t, rt)

	again, rtAgain, err := manager.GetAccessToken(ctx, client, "u", 2, true)
	require.NoError(t, err)
	assert.Equal(t, at.ID, again.ID)
	assert.Equal(t, rt.ID, rtAgain.ID)

	require.NoError(t, manager.Revoke(ctx, at.Token))
	_, err = manager.ResolveAccessToken(ctx, at.Token)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)
	_, err = manager.GetRefreshToken(ctx, client, rt.Token)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}
