package app

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliohub/internal/model"
)

type fakeSessionStore struct {
	sessions  map[string]*model.Session
	upsertErr error
	getErr    error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]*model.Session{}}
}

func (f *fakeSessionStore) Upsert(session *model.Session) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionStore) GetByID(id string) (*model.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	session, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func newSessionServiceAt(store *fakeSessionStore, at time.Time) *SessionService {
	svc := NewSessionService(store, 24)
	svc.now = func() time.Time { return at }
	return svc
}

func TestGetOrCreateExpiryFromDuration(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()
	svc := newSessionServiceAt(store, at)

	session := svc.GetOrCreate("visitor-1", 1)

	assert.Equal(t, "visitor-1", session.ID)
	assert.Equal(t, at.Add(time.Hour), session.ExpiresAt)
	stored := store.sessions["visitor-1"]
	require.NotNil(t, stored)
	assert.Equal(t, session.ExpiresAt, stored.ExpiresAt)
}

func TestGetOrCreateMintsToken(t *testing.T) {
	store := newFakeSessionStore()
	svc := newSessionServiceAt(store, time.Now())

	first := svc.GetOrCreate("", 0)
	second := svc.GetOrCreate("", 0)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, store.sessions, 2)
}

func TestGetOrCreateDurationClamping(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()
	svc := newSessionServiceAt(store, at)

	cases := []struct {
		name     string
		duration int
		want     time.Duration
	}{
		{"zero uses default", 0, 24 * time.Hour},
		{"negative uses default", -5, 24 * time.Hour},
		{"above max clamps to a week", 500, 168 * time.Hour},
		{"in range passes through", 48, 48 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := svc.GetOrCreate("s", tc.duration)
			assert.Equal(t, at.Add(tc.want), session.ExpiresAt)
		})
	}
}

func TestGetOrCreateRefreshesExpiry(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()
	svc := newSessionServiceAt(store, at)

	svc.GetOrCreate("visitor-1", 1)
	svc.now = func() time.Time { return at.Add(30 * time.Minute) }
	svc.GetOrCreate("visitor-1", 2)

	require.Len(t, store.sessions, 1)
	assert.Equal(t, at.Add(30*time.Minute).Add(2*time.Hour), store.sessions["visitor-1"].ExpiresAt)
}

func TestGetOrCreateStoreFailureStillReturnsSession(t *testing.T) {
	store := newFakeSessionStore()
	store.upsertErr = errors.New("db down")
	svc := newSessionServiceAt(store, time.Now())

	session := svc.GetOrCreate("", 0)

	require.NotNil(t, session)
	assert.NotEmpty(t, session.ID)
	assert.Empty(t, store.sessions)
}

func TestValidate(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeSessionStore()
	svc := newSessionServiceAt(store, at)

	svc.GetOrCreate("active", 2)

	ok, err := svc.Validate("active")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Validate("unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	svc.now = func() time.Time { return at.Add(3 * time.Hour) }
	ok, err = svc.Validate("active")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Validate("")
	require.ErrorIs(t, err, ErrInvalidSessionID)
}
