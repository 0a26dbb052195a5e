package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"portfoliohub/internal/model"
)

type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(file *model.File) error {
	if err := r.db.Create(file).Error; err != nil {
		return fmt.Errorf("create file failed: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(id uint) (*model.File, error) {
	var file model.File
	if err := r.db.First(&file, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file failed: %w", err)
	}
	return &file, nil
}

func (r *FileRepository) ListByUserID(userID uint) ([]model.File, error) {
	var files []model.File
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list files by user failed: %w", err)
	}
	return files, nil
}

func (r *FileRepository) ListBySessionID(sessionID string) ([]model.File, error) {
	var files []model.File
	if err := r.db.Where("session_id = ?", sessionID).Order("created_at DESC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list files by session failed: %w", err)
	}
	return files, nil
}

func (r *FileRepository) DeleteByID(id uint) error {
	if err := r.db.Delete(&model.File{}, id).Error; err != nil {
		return fmt.Errorf("delete file failed: %w", err)
	}
	return nil
}
