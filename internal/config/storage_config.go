package config

type StorageConfig interface {
	GetDBDriver() string
	GetDBDSN() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetDBDriver is one of memory, sqlite or postgres.
func (Storage) GetDBDriver() string {
	return GetEnv("DB_DRIVER", "memory")
}

func (Storage) GetDBDSN() string {
	return GetEnv("DB_DSN", "oauth.db")
}

// GetRedisAddr is empty when sessions are kept in memory.
func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}
