package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-oauth-provider/clients"
	fakeclientrepo "github.com/jrsteele09/go-oauth-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oauth-provider/internal/config"
	"github.com/jrsteele09/go-oauth-provider/internal/metrics"
	"github.com/jrsteele09/go-oauth-provider/server"
	"github.com/jrsteele09/go-oauth-provider/sessions"
	"github.com/jrsteele09/go-oauth-provider/token"
	tokenfakerepo "github.com/jrsteele09/go-oauth-provider/token/repofake"
	"github.com/jrsteele09/go-oauth-provider/users"
	fakeuserrepo "github.com/jrsteele09/go-oauth-provider/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	webClientID     = "web-app"
	webClientSecret = "web-secret"
	spaClientID     = "spa-app"
	callbackURI     = "https://app.example/cb"
	testUsername    = "jdoe"
	testPassword    = "Password123"
)

type fixture struct {
	server     *server.Server
	ts         *httptest.Server
	clientRepo *fakeclientrepo.FakeClientRepo
	userRepo   *fakeuserrepo.FakeUserRepo
	manager    *token.Manager
	user       *users.User
}

func setupServer(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	t.Setenv("ENV", "TEST")
	t.Setenv("OAUTH_ENFORCE_CLIENT_SECURE", "false")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("BASE_URL", "https://auth.example")

	cr := fakeclientrepo.NewFakeClientRepo()
	ur := fakeuserrepo.NewFakeUserRepo()
	manager := token.New(tokenfakerepo.NewFakeTokenRepo())

	require.NoError(t, cr.Upsert(ctx, &clients.Client{
		ID:           webClientID,
		Secret:       webClientSecret,
		Name:         "Web App",
		RedirectURIs: []string{callbackURI},
		Type:         clients.ClientTypeConfidential,
		Status:       clients.StatusEnabled,
	}))
	require.NoError(t, cr.Upsert(ctx, &clients.Client{
		ID:           spaClientID,
		Name:         "Single Page App",
		RedirectURIs: []string{"https://spa.example/cb"},
		Type:         clients.ClientTypePublic,
		Status:       clients.StatusEnabled,
	}))

	user := &users.User{ID: "user-1", Username: testUsername, Email: "jdoe@example.com", Active: true}
	require.NoError(t, user.SetPassword(testPassword))
	require.NoError(t, ur.Upsert(ctx, user))

	srv, err := server.New(
		config.New(),
		server.Repos{Clients: cr, Users: ur},
		manager,
		sessions.NewMemoryBackend(time.Hour),
		server.WithMetrics(metrics.NewNoopMetrics()),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &fixture{
		server:     srv,
		ts:         ts,
		clientRepo: cr,
		userRepo:   ur,
		manager:    manager,
		user:       user,
	}
}

// browser returns a client that keeps cookies and does not follow redirects.
func (f *fixture) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *fixture) get(t *testing.T, c *http.Client, path string) *http.Response {
	t.Helper()
	resp, err := c.Get(f.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) postForm(t *testing.T, c *http.Client, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(f.ts.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) tokenRequest(t *testing.T, form url.Values, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+server.RouteAccessToken, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// login signs the browser in through the login form.
func (f *fixture) login(t *testing.T, c *http.Client) {
	t.Helper()
	resp := f.postForm(t, c, server.RouteLogin, url.Values{
		"username": {testUsername},
		"password": {testPassword},
		"next":     {"/"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
}

// passwordToken issues a token for the test user with the password grant.
func (f *fixture) passwordToken(t *testing.T) string {
	t.Helper()
	resp := f.tokenRequest(t, url.Values{
		"grant_type":    {"password"},
		"client_id":     {webClientID},
		"client_secret": {webClientSecret},
		"username":      {testUsername},
		"password":      {testPassword},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	return body["access_token"].(string)
}
