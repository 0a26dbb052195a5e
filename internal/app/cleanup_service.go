package app

import (
	"context"
	"log"
	"time"

	"portfoliohub/internal/model"
	"portfoliohub/internal/vectorindex"
)

type ExpiredSessionStore interface {
	ListExpired(now time.Time) ([]model.Session, error)
	DeleteExpired(now time.Time) ([]model.Session, error)
}

type SessionFileLister interface {
	ListBySessionID(sessionID string) ([]model.File, error)
}

// CleanupService reconciles the relational store, the vector index, and
// object storage: expired sessions are deleted (their file rows cascade),
// then each deleted session's vectors are removed with one filtered delete
// and its blobs are deleted by the keys collected before the cascade. Vector
// and blob deletion are best-effort per session; a failure is logged and
// leaves orphans until a later sweep.
type CleanupService struct {
	sessions ExpiredSessionStore
	files    SessionFileLister
	blobs    BlobStore
	index    VectorIndex
	now      func() time.Time
}

func NewCleanupService(sessions ExpiredSessionStore, files SessionFileLister, blobs BlobStore, index VectorIndex) *CleanupService {
	return &CleanupService{
		sessions: sessions,
		files:    files,
		blobs:    blobs,
		index:    index,
		now:      time.Now,
	}
}

type CleanupResult struct {
	DeletedSessions int `json:"deleted_sessions"`
	VectorBatches   int `json:"vector_batches_processed"`
	DeletedBlobs    int `json:"blobs_deleted"`
}

// Run is idempotent: a second consecutive run finds zero expired sessions.
func (s *CleanupService) Run(ctx context.Context) (*CleanupResult, error) {
	now := s.now()

	// The session delete cascades the file rows away, so the blob keys must
	// be collected first. Expiry is compared against the same fixed now and
	// renewals only push expires_at forward, so every session deleted below
	// is covered by this list.
	keysBySession := map[string][]string{}
	expired, err := s.sessions.ListExpired(now)
	if err != nil {
		return nil, err
	}
	for _, session := range expired {
		files, err := s.files.ListBySessionID(session.ID)
		if err != nil {
			log.Printf("cleanup: list files for session %s failed: %v", session.ID, err)
			continue
		}
		for _, file := range files {
			keysBySession[session.ID] = append(keysBySession[session.ID], file.FileKey)
		}
	}

	deleted, err := s.sessions.DeleteExpired(now)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{DeletedSessions: len(deleted)}
	for _, session := range deleted {
		if err := s.index.DeleteByFilter(ctx, vectorindex.Filter{"session_id": session.ID}); err != nil {
			// The session row is already gone, so these vectors are orphaned
			// until an out-of-band sweep. Keep going with the rest.
			log.Printf("cleanup: delete vectors for session %s failed: %v", session.ID, err)
		} else {
			result.VectorBatches++
		}

		for _, key := range keysBySession[session.ID] {
			if err := s.blobs.Delete(ctx, key); err != nil {
				log.Printf("cleanup: delete blob %q for session %s failed: %v", key, session.ID, err)
				continue
			}
			result.DeletedBlobs++
		}
	}
	return result, nil
}
