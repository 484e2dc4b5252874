package users

import (
	"context"
	"time"
)

// UserRepo stores resource owners. Lookups return errors.ErrUserNotFound when nothing matches.
type UserRepo interface {
	Upsert(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
}
