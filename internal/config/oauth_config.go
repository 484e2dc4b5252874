package config

import "time"

type OAuthConfig interface {
	GetExpireDelta() time.Duration
	GetExpireDeltaPublic() time.Duration
	GetExpireCodeDelta() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetSingleAccessToken() bool
	GetKeepRefreshToken() bool
	GetLimitNumRefreshToken() int
	GetDeleteExpired() bool
	GetSessionKey() string
	GetScopes() string
	GetTokenLength() int
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetExpireDelta is the lifetime of access tokens issued to confidential clients.
func (OAuth) GetExpireDelta() time.Duration {
	return GetEnvDuration("OAUTH_EXPIRE_DELTA", 365*24*time.Hour)
}

func (OAuth) GetExpireDeltaPublic() time.Duration {
	return GetEnvDuration("OAUTH_EXPIRE_DELTA_PUBLIC", 30*24*time.Hour)
}

func (OAuth) GetExpireCodeDelta() time.Duration {
	return GetEnvDuration("OAUTH_EXPIRE_CODE_DELTA", 10*time.Minute)
}

// GetRefreshTokenTTL returns 0 when refresh tokens never expire by age.
func (OAuth) GetRefreshTokenTTL() time.Duration {
	return GetEnvDuration("OAUTH_REFRESH_TOKEN_TTL", 0)
}

func (OAuth) GetSingleAccessToken() bool {
	return GetEnvBool("OAUTH_SINGLE_ACCESS_TOKEN", false)
}

func (OAuth) GetKeepRefreshToken() bool {
	return GetEnvBool("OAUTH_KEEP_REFRESH_TOKEN", false)
}

// GetLimitNumRefreshToken returns 0 for unlimited.
func (OAuth) GetLimitNumRefreshToken() int {
	return GetEnvInt("OAUTH_LIMIT_NUM_REFRESH_TOKEN", 0)
}

func (OAuth) GetDeleteExpired() bool {
	return GetEnvBool("OAUTH_DELETE_EXPIRED", false)
}

func (OAuth) GetSessionKey() string {
	return GetEnv("OAUTH_SESSION_KEY", "oauth")
}

func (OAuth) GetScopes() string {
	return GetEnv("OAUTH_SCOPES", "read:2,write:4,read+write:6")
}

func (OAuth) GetTokenLength() int {
	return 32 // 32 bytes = 256 bits
}
