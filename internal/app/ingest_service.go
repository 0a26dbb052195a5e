package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"portfoliohub/internal/model"
	"portfoliohub/internal/vectorindex"
)

const (
	chunkSize       = 400
	chunkOverlap    = 50
	embedBatchSize  = 6   // bounds per-call load on the embedding API
	upsertBatchSize = 100 // stays under the index payload limit

	// one query round collects at most this many ids for file deletion
	fileSweepLimit = 1000
	// bounds the paged rounds; anything past this falls to the filter sweep
	maxFileSweepRounds = 32
)

var (
	ErrEmptyDocument     = errors.New("document has no extractable content")
	ErrMissingOwner      = errors.New("upload requires a session or an authenticated user")
	ErrEmbeddingMismatch = errors.New("embedding count does not match chunk count")
	ErrFileNotFound      = errors.New("file not found")
)

// Embedder produces embedding vectors; EmbedTexts returns one vector per
// input text, in input order.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the hosted index surface the pipeline and cleanup need.
type VectorIndex interface {
	Upsert(ctx context.Context, vectors []vectorindex.Vector) (int, error)
	Query(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error)
	QueryIDs(ctx context.Context, filter vectorindex.Filter, limit int) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByFilter(ctx context.Context, filter vectorindex.Filter) error
}

type FileStore interface {
	Create(file *model.File) error
	GetByID(id uint) (*model.File, error)
	DeleteByID(id uint) error
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// IngestService runs the upload pipeline: store bytes, record the file, chunk
// the text, embed sequentially, upsert to the vector index.
type IngestService struct {
	files    FileStore
	blobs    BlobStore
	embedder Embedder
	index    VectorIndex
}

func NewIngestService(files FileStore, blobs BlobStore, embedder Embedder, index VectorIndex) *IngestService {
	return &IngestService{
		files:    files,
		blobs:    blobs,
		embedder: embedder,
		index:    index,
	}
}

type IngestInput struct {
	UserID    uint
	SessionID string // empty for owner uploads
	FileName  string
	Content   string // extracted plain text
	Raw       []byte // original document bytes for object storage
}

type IngestResult struct {
	File        model.File `json:"file"`
	ChunkCount  int        `json:"chunk_count"`
	VectorCount int        `json:"vector_count"`
}

// Ingest runs the pipeline steps strictly in order. Any failure aborts the
// remaining steps; vectors already upserted by earlier batches are not rolled
// back.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrEmptyDocument
	}
	sessionID := strings.TrimSpace(input.SessionID)
	if input.UserID == 0 && sessionID == "" {
		return nil, ErrMissingOwner
	}
	name := strings.TrimSpace(input.FileName)
	if name == "" {
		name = "Untitled"
	}

	fileKey := "uploads/" + uuid.NewString()
	if s.blobs != nil && len(input.Raw) > 0 {
		if err := s.blobs.Put(ctx, fileKey, input.Raw, "application/pdf"); err != nil {
			return nil, err
		}
	}

	file := &model.File{
		FileName: name,
		FileKey:  fileKey,
		UserID:   input.UserID,
	}
	if sessionID != "" {
		file.SessionID = &sessionID
	}
	if err := s.files.Create(file); err != nil {
		return nil, err
	}

	chunks := chunkText(content, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	// Batches run strictly sequentially; result order matches chunk order by
	// array index.
	embeddings := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batched, err := s.embedder.EmbedTexts(ctx, chunks[i:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batched...)
	}
	if len(embeddings) != len(chunks) {
		return nil, ErrEmbeddingMismatch
	}

	vectors := make([]vectorindex.Vector, len(chunks))
	for i := range chunks {
		vectors[i] = vectorindex.Vector{
			ID:     contentHash(chunks[i]),
			Values: embeddings[i],
			Metadata: vectorindex.Metadata{
				Text:      chunks[i],
				FileID:    file.ID,
				SessionID: sessionID,
			},
		}
	}

	upserted := 0
	for i := 0; i < len(vectors); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		count, err := s.index.Upsert(ctx, vectors[i:end])
		if err != nil {
			return nil, err
		}
		upserted += count
	}

	return &IngestResult{
		File:        *file,
		ChunkCount:  len(chunks),
		VectorCount: upserted,
	}, nil
}

// DeleteFile removes a file's vectors, its stored bytes, and finally the
// relational row. Vector deletion pages through QueryIDs/DeleteByIDs and ends
// with a filtered sweep, so no vector carrying the file id survives a nil
// return. The two stores are not transactional; the vector side goes first so
// a failure leaves the row, and a retry, behind.
func (s *IngestService) DeleteFile(ctx context.Context, fileID, userID uint, sessionID string) error {
	if fileID == 0 {
		return ErrFileNotFound
	}
	file, err := s.files.GetByID(fileID)
	if err != nil {
		return err
	}
	if file == nil || !ownsFile(file, userID, sessionID) {
		return ErrFileNotFound
	}

	filter := vectorindex.Filter{"file_id": file.ID}
	for round := 0; round < maxFileSweepRounds; round++ {
		ids, err := s.index.QueryIDs(ctx, filter, fileSweepLimit)
		if err != nil {
			return fmt.Errorf("query file vectors failed: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		if err := s.index.DeleteByIDs(ctx, ids); err != nil {
			return fmt.Errorf("delete file vectors failed: %w", err)
		}
		if len(ids) < fileSweepLimit {
			break
		}
	}
	// catches anything the paged rounds missed, including an index whose
	// deletes have not become visible to queries yet
	if err := s.index.DeleteByFilter(ctx, filter); err != nil {
		return fmt.Errorf("sweep file vectors failed: %w", err)
	}

	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, file.FileKey); err != nil {
			log.Printf("delete blob %q failed: %v", file.FileKey, err)
		}
	}

	return s.files.DeleteByID(file.ID)
}

// DownloadFile returns the original uploaded bytes for an owner- or
// session-scoped file.
func (s *IngestService) DownloadFile(ctx context.Context, fileID, userID uint, sessionID string) (*model.File, []byte, error) {
	if fileID == 0 {
		return nil, nil, ErrFileNotFound
	}
	file, err := s.files.GetByID(fileID)
	if err != nil {
		return nil, nil, err
	}
	if file == nil || !ownsFile(file, userID, sessionID) {
		return nil, nil, ErrFileNotFound
	}
	data, err := s.blobs.Get(ctx, file.FileKey)
	if err != nil {
		return nil, nil, fmt.Errorf("get blob %q failed: %w", file.FileKey, err)
	}
	return file, data, nil
}

func ownsFile(file *model.File, userID uint, sessionID string) bool {
	if userID != 0 && file.UserID == userID {
		return true
	}
	if sessionID != "" && file.SessionID != nil && *file.SessionID == sessionID {
		return true
	}
	return false
}

// chunkText splits text into overlapping chunks by rune count. Each chunk
// after the first starts size-overlap runes after its predecessor; the last
// chunk ends at the text end and splitting stops there, so a text no longer
// than size yields exactly one chunk.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = chunkSize
	}
	if overlap >= size {
		overlap = size / 2
	}
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// contentHash is the deterministic vector id: re-uploading identical content
// re-upserts the same ids instead of growing the index.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
