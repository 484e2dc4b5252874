package config

import "time"

type SecurityConfig interface {
	GetEnforceSecure() bool
	GetEnforceClientSecure() bool
	GetTrustProxyHeaders() bool
	GetMaxSessionAge() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetEnforceSecure rejects authorization and token requests not made over TLS.
func (Security) GetEnforceSecure() bool {
	return GetEnvBool("OAUTH_ENFORCE_SECURE", false)
}

// GetEnforceClientSecure makes the secret based client backends refuse plain HTTP.
func (Security) GetEnforceClientSecure() bool {
	return GetEnvBool("OAUTH_ENFORCE_CLIENT_SECURE", true)
}

// GetTrustProxyHeaders honours X-Forwarded-Proto. Only enable it behind a proxy
// that overwrites the header.
func (Security) GetTrustProxyHeaders() bool {
	return GetEnvBool("TRUST_PROXY_HEADERS", false)
}

func (Security) GetMaxSessionAge() time.Duration {
	return 30 * time.Minute
}
