package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-oauth-provider/internal/config"
	"github.com/stretchr/testify/require"
)

func TestOAuthDefaults(t *testing.T) {
	cfg := config.New()

	require.Equal(t, 365*24*time.Hour, cfg.GetExpireDelta())
	require.Equal(t, 30*24*time.Hour, cfg.GetExpireDeltaPublic())
	require.Equal(t, 10*time.Minute, cfg.GetExpireCodeDelta())
	require.Zero(t, cfg.GetRefreshTokenTTL())
	require.False(t, cfg.GetSingleAccessToken())
	require.False(t, cfg.GetKeepRefreshToken())
	require.Zero(t, cfg.GetLimitNumRefreshToken())
	require.False(t, cfg.GetDeleteExpired())
	require.False(t, cfg.GetEnforceSecure())
	require.True(t, cfg.GetEnforceClientSecure())
	require.False(t, cfg.GetTrustProxyHeaders())
	require.Equal(t, "oauth", cfg.GetSessionKey())
	require.Equal(t, "memory", cfg.GetDBDriver())
}

func TestOAuthOverrides(t *testing.T) {
	t.Setenv("OAUTH_EXPIRE_DELTA", "1h")
	t.Setenv("OAUTH_SINGLE_ACCESS_TOKEN", "true")
	t.Setenv("OAUTH_LIMIT_NUM_REFRESH_TOKEN", "3")
	t.Setenv("PORT", "9000")

	cfg := config.New()
	require.Equal(t, time.Hour, cfg.GetExpireDelta())
	require.True(t, cfg.GetSingleAccessToken())
	require.Equal(t, 3, cfg.GetLimitNumRefreshToken())
	require.Equal(t, ":9000", cfg.GetPort())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("OAUTH_EXPIRE_CODE_DELTA", "ten minutes")
	t.Setenv("OAUTH_KEEP_REFRESH_TOKEN", "maybe")

	cfg := config.New()
	require.Equal(t, 10*time.Minute, cfg.GetExpireCodeDelta())
	require.False(t, cfg.GetKeepRefreshToken())
}

func TestAllowedOrigins(t *testing.T) {
	require.True(t, config.AllowedOrigins{}.IsAllowedOrigin("https://any.example"))

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	origins := config.New().GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://a.example"))
	require.False(t, origins.IsAllowedOrigin("https://c.example"))
	require.Equal(t, "https://a.example, https://b.example", origins.String())
}

func TestBootstrapDefaults(t *testing.T) {
	t.Setenv("BASE_URL", "https://auth.example")

	cfg := config.New()
	require.Equal(t, "demo-client", cfg.GetBootstrapClientID())
	require.Equal(t, "https://auth.example/callback", cfg.GetBootstrapRedirectURI())
	require.Equal(t, "admin", cfg.GetBootstrapUsername())
	require.Empty(t, cfg.GetBootstrapPassword())
}
