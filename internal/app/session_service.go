package app

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"portfoliohub/internal/model"
)

const (
	minSessionHours = 1
	maxSessionHours = 168 // one week
)

var ErrInvalidSessionID = errors.New("invalid session id")

type SessionStore interface {
	Upsert(session *model.Session) error
	GetByID(id string) (*model.Session, error)
}

// SessionService issues visitor session tokens and registers their expiry.
// Registration is advisory: a store failure is logged and the token is still
// returned, it just will not be swept by the cleanup job.
type SessionService struct {
	sessions     SessionStore
	defaultHours int
	now          func() time.Time
}

func NewSessionService(sessions SessionStore, defaultHours int) *SessionService {
	if defaultHours <= 0 {
		defaultHours = 24
	}
	return &SessionService{
		sessions:     sessions,
		defaultHours: defaultHours,
		now:          time.Now,
	}
}

// GetOrCreate returns a session for the given id, minting a new opaque token
// when id is empty, and upserts expires_at = now + durationHours.
func (s *SessionService) GetOrCreate(id string, durationHours int) *model.Session {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	if durationHours <= 0 {
		durationHours = s.defaultHours
	}
	if durationHours < minSessionHours {
		durationHours = minSessionHours
	}
	if durationHours > maxSessionHours {
		durationHours = maxSessionHours
	}

	now := s.now()
	session := &model.Session{
		ID:        id,
		ExpiresAt: now.Add(time.Duration(durationHours) * time.Hour),
		CreatedAt: now,
	}
	if err := s.sessions.Upsert(session); err != nil {
		log.Printf("register session %s failed: %v", id, err)
	}
	return session
}

// Validate reports whether the id names a session that has not expired.
func (s *SessionService) Validate(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return false, ErrInvalidSessionID
	}
	session, err := s.sessions.GetByID(id)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}
	return session.ExpiresAt.After(s.now()), nil
}
