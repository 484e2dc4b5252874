package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oauth-provider/clients"
	apperrors "github.com/jrsteele09/go-oauth-provider/internal/errors"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ClientStore implements clients.Repo.
type ClientStore struct {
	db *gorm.DB
}

func (s *ClientStore) Upsert(ctx context.Context, client *clients.Client) error {
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Save(clientToRow(client)).Error
}

func (s *ClientStore) Delete(ctx context.Context, clientID string) error {
	result := s.db.WithContext(ctx).Where("id = ?", clientID).Delete(&clientRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrClientNotFound
	}
	return nil
}

func (s *ClientStore) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	var row clientRow
	if err := s.db.WithContext(ctx).Where("id = ?", clientID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrClientNotFound
		}
		return nil, err
	}
	return row.toClient(), nil
}

func (s *ClientStore) List(ctx context.Context, offset, limit int) ([]*clients.Client, error) {
	query := s.db.WithContext(ctx).Order("id").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []clientRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	list := make([]*clients.Client, 0, len(rows))
	for i := range rows {
		list = append(list, rows[i].toClient())
	}
	return list, nil
}
