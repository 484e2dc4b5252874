package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/jrsteele09/go-oauth-provider/token"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// TokenStore implements token.Repo. Invalidations are single conditional
// statements, so of two concurrent requests only one sees a row affected.
type TokenStore struct {
	db *gorm.DB
}

func (s *TokenStore) CreateGrant(ctx context.Context, grant *token.Grant) error {
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(grantToRow(grant)).Error
}

func (s *TokenStore) GetGrant(ctx context.Context, code string) (*token.Grant, error) {
	var row grantRow
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		return nil, notFound(err, apperrors.ErrGrantNotFound)
	}
	return row.toGrant(), nil
}

func (s *TokenStore) InvalidateGrant(ctx context.Context, id string, now time.Time, remove bool) error {
	live := s.db.WithContext(ctx).Where("id = ? AND expires > ?", id, now)
	var result *gorm.DB
	if remove {
		result = live.Delete(&grantRow{})
	} else {
		result = live.Model(&grantRow{}).Update("expires", now)
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrGrantAlreadyUsed
	}
	return nil
}

func (s *TokenStore) CreateAccessToken(ctx context.Context, at *token.AccessToken) error {
	if at.ID == "" {
		at.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(accessTokenToRow(at)).Error
}

func (s *TokenStore) GetAccessToken(ctx context.Context, value string) (*token.AccessToken, error) {
	return s.firstAccessToken(ctx, "token = ?", value)
}

func (s *TokenStore) GetAccessTokenByID(ctx context.Context, id string) (*token.AccessToken, error) {
	return s.firstAccessToken(ctx, "id = ?", id)
}

func (s *TokenStore) FindAccessToken(ctx context.Context, clientID, userID string, scope int, now time.Time) (*token.AccessToken, error) {
	var row accessTokenRow
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND user_id = ? AND scope = ? AND expires > ?", clientID, userID, scope, now).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		return nil, notFound(err, apperrors.ErrNotFound)
	}
	return row.toAccessToken(), nil
}

func (s *TokenStore) InvalidateAccessToken(ctx context.Context, id string, now time.Time, remove bool) error {
	if remove {
		return s.db.WithContext(ctx).Where("id = ?", id).Delete(&accessTokenRow{}).Error
	}
	return s.db.WithContext(ctx).Model(&accessTokenRow{}).
		Where("id = ? AND expires > ?", id, now).
		Update("expires", now).Error
}

func (s *TokenStore) DeleteExpiredAccessTokens(ctx context.Context, clientID, userID string, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("client_id = ? AND user_id = ? AND expires <= ?", clientID, userID, now).
		Delete(&accessTokenRow{})
	return result.RowsAffected, result.Error
}

func (s *TokenStore) CreateRefreshToken(ctx context.Context, rt *token.RefreshToken) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(refreshTokenToRow(rt)).Error
}

func (s *TokenStore) GetRefreshToken(ctx context.Context, value string) (*token.RefreshToken, error) {
	var row refreshTokenRow
	if err := s.db.WithContext(ctx).Where("token = ?", value).First(&row).Error; err != nil {
		return nil, notFound(err, apperrors.ErrInvalidRefreshToken)
	}
	return row.toRefreshToken(), nil
}

func (s *TokenStore) GetRefreshTokenByAccessToken(ctx context.Context, accessTokenID string) (*token.RefreshToken, error) {
	var row refreshTokenRow
	err := s.db.WithContext(ctx).
		Where("access_token_id = ? AND expired = ?", accessTokenID, false).
		First(&row).Error
	if err != nil {
		return nil, notFound(err, apperrors.ErrNotFound)
	}
	return row.toRefreshToken(), nil
}

func (s *TokenStore) BindRefreshToken(ctx context.Context, id, accessTokenID string) error {
	result := s.db.WithContext(ctx).Model(&refreshTokenRow{}).
		Where("id = ? AND expired = ?", id, false).
		Update("access_token_id", accessTokenID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrTokenRevoked
	}
	return nil
}

func (s *TokenStore) InvalidateRefreshToken(ctx context.Context, id string, remove bool) error {
	live := s.db.WithContext(ctx).Where("id = ? AND expired = ?", id, false)
	var result *gorm.DB
	if remove {
		result = live.Delete(&refreshTokenRow{})
	} else {
		result = live.Model(&refreshTokenRow{}).Update("expired", true)
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrTokenRevoked
	}
	return nil
}

func (s *TokenStore) ListRefreshTokens(ctx context.Context, clientID, userID string, scope int) ([]*token.RefreshToken, error) {
	var rows []refreshTokenRow
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND user_id = ? AND scope = ? AND expired = ?", clientID, userID, scope, false).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	tokens := make([]*token.RefreshToken, 0, len(rows))
	for i := range rows {
		tokens = append(tokens, rows[i].toRefreshToken())
	}
	return tokens, nil
}

func (s *TokenStore) firstAccessToken(ctx context.Context, query string, arg any) (*token.AccessToken, error) {
	var row accessTokenRow
	if err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error; err != nil {
		return nil, notFound(err, apperrors.ErrInvalidToken)
	}
	return row.toAccessToken(), nil
}

// notFound maps gorm.ErrRecordNotFound to the repository's sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
