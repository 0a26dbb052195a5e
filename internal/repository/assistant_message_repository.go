package repository

import (
	"fmt"

	"gorm.io/gorm"

	"portfoliohub/internal/model"
)

type AssistantMessageRepository struct {
	db *gorm.DB
}

func NewAssistantMessageRepository(db *gorm.DB) *AssistantMessageRepository {
	return &AssistantMessageRepository{db: db}
}

func (r *AssistantMessageRepository) Create(message *model.AssistantMessage) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create assistant message failed: %w", err)
	}
	return nil
}

func (r *AssistantMessageRepository) ListBySessionToken(sessionToken string, limit int) ([]model.AssistantMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var messages []model.AssistantMessage
	if err := r.db.Where("session_token = ?", sessionToken).Order("created_at ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list assistant messages failed: %w", err)
	}
	return messages, nil
}
