package config

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StorageConfig
	BootstrapConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
	GetMetricsEnabled() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Storage
	Bootstrap
}

func New() Config {
	return mainConfig{}
}
