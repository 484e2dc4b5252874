// Package store persists clients, users, grants and tokens in a SQL database
// through GORM. SQLite and PostgreSQL are supported.
package store

import (
	"context"

	"github.com/jrsteele09/go-oauth-provider/clients"
	"github.com/jrsteele09/go-oauth-provider/token"
	"github.com/jrsteele09/go-oauth-provider/users"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	_ clients.Repo   = (*ClientStore)(nil)
	_ users.UserRepo = (*UserStore)(nil)
	_ token.Repo     = (*TokenStore)(nil)
)

type Store struct {
	db *gorm.DB
}

// New opens the database and migrates the schema.
func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", driver)
	}
	return NewWithDB(db)
}

// NewWithDB migrates the schema on an already opened connection.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&clientRow{},
		&userRow{},
		&grantRow{},
		&accessTokenRow{},
		&refreshTokenRow{},
	); err != nil {
		return nil, errors.Wrap(err, "migrating schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Clients() *ClientStore {
	return &ClientStore{db: s.db}
}

func (s *Store) Users() *UserStore {
	return &UserStore{db: s.db}
}

func (s *Store) Tokens() *TokenStore {
	return &TokenStore{db: s.db}
}

// Health pings the underlying connection.
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) DB() *gorm.DB {
	return s.db
}
