package config

// BootstrapConfig describes the demo client and user created on first start.
type BootstrapConfig interface {
	GetBootstrapClientID() string
	GetBootstrapClientSecret() string
	GetBootstrapRedirectURI() string
	GetBootstrapUsername() string
	GetBootstrapPassword() string
}

type Bootstrap struct{}

var _ BootstrapConfig = Bootstrap{}

func (Bootstrap) GetBootstrapClientID() string {
	return GetEnv("BOOTSTRAP_CLIENT_ID", "demo-client")
}

// GetBootstrapClientSecret returns "" when a secret should be generated.
func (Bootstrap) GetBootstrapClientSecret() string {
	return GetEnv("BOOTSTRAP_CLIENT_SECRET", "")
}

func (Bootstrap) GetBootstrapRedirectURI() string {
	return GetEnv("BOOTSTRAP_REDIRECT_URI", EnvVars{}.GetBaseURL()+"/callback")
}

func (Bootstrap) GetBootstrapUsername() string {
	return GetEnv("BOOTSTRAP_USERNAME", "admin")
}

// GetBootstrapPassword returns "" when a password should be generated.
func (Bootstrap) GetBootstrapPassword() string {
	return GetEnv("BOOTSTRAP_PASSWORD", "")
}
