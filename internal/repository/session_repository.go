package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfoliohub/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert creates the session or, if the id already exists, renews its expiry.
func (r *SessionRepository) Upsert(session *model.Session) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(session).Error
	if err != nil {
		return fmt.Errorf("upsert session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(id string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// ListExpired returns the sessions whose expiry precedes now, without
// deleting them. The cleanup job uses it to capture blob keys before the
// delete cascades the file rows away.
func (r *SessionRepository) ListExpired(now time.Time) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.Where("expires_at < ?", now).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list expired sessions failed: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes every session whose expiry precedes now and returns
// the deleted rows. The ids drive the vector sweep, so a bare rows-affected
// count is not enough; Postgres RETURNING fills the slice.
func (r *SessionRepository) DeleteExpired(now time.Time) ([]model.Session, error) {
	var deleted []model.Session
	err := r.db.Clauses(clause.Returning{}).
		Where("expires_at < ?", now).
		Delete(&deleted).Error
	if err != nil {
		return nil, fmt.Errorf("delete expired sessions failed: %w", err)
	}
	return deleted, nil
}
