package repository

import (
	"context"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// ListByRequest returns the room history oldest first.
func (r *MessageRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

func (r *MessageRepository) DeleteForRequests(ctx context.Context, requestIDs []uuid.UUID) (int64, error) {
	if len(requestIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("request_id IN ?", requestIDs).Delete(&models.Message{})
	return res.RowsAffected, res.Error
}
