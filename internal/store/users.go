package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/users"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// UserStore implements users.UserRepo. Email lookups are case insensitive.
type UserStore struct {
	db *gorm.DB
}

func (s *UserStore) Upsert(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Save(userToRow(user)).Error
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&userRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.first(ctx, "email_lower = ?", strings.ToLower(email))
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return s.first(ctx, "username = ?", username)
}

func (s *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(ctx, id, "active", active)
}

func (s *UserStore) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, "last_login", at)
}

func (s *UserStore) first(ctx context.Context, query string, arg any) (*users.User, error) {
	if arg == "" {
		return nil, apperrors.ErrUserNotFound
	}
	var row userRow
	if err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return row.toUser(), nil
}

func (s *UserStore) update(ctx context.Context, id, column string, value any) error {
	result := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}
