package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliohub/internal/model"
	"portfoliohub/internal/vectorindex"
)

type fakeFileStore struct {
	files  map[uint]*model.File
	nextID uint

	createErr  error
	deletedIDs []uint
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: map[uint]*model.File{}, nextID: 1}
}

func (f *fakeFileStore) Create(file *model.File) error {
	if f.createErr != nil {
		return f.createErr
	}
	file.ID = f.nextID
	f.nextID++
	copied := *file
	f.files[file.ID] = &copied
	return nil
}

func (f *fakeFileStore) GetByID(id uint) (*model.File, error) {
	file, ok := f.files[id]
	if !ok {
		return nil, nil
	}
	copied := *file
	return &copied, nil
}

func (f *fakeFileStore) DeleteByID(id uint) error {
	delete(f.files, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

type fakeBlobStore struct {
	puts    map[string][]byte
	deletes []string

	putErr    error
	deleteErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{puts: map[string][]byte{}}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts[key] = data
	return nil
}

func (f *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.puts[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	return f.deleteErr
}

type fakeEmbedder struct {
	batchSizes []int
	embedErr   error
	// extraPerBatch makes EmbedTexts return more vectors than inputs
	extraPerBatch int
}

func (f *fakeEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.batchSizes = append(f.batchSizes, len(texts))
	out := make([][]float32, len(texts)+f.extraPerBatch)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type fakeVectorIndex struct {
	upserts      [][]vectorindex.Vector
	deletedIDs   [][]string
	filters      []vectorindex.Filter
	queryIDsRet  []string
	queryMatches []vectorindex.Match
	queryFilters []vectorindex.Filter
	queryTopKs   []int

	// when set, QueryIDs pages over this backing slice and DeleteByIDs
	// removes from it, like a real index honoring the limit parameter
	storedIDs      []string
	retainOnDelete bool

	upsertErr      error
	queryErr       error
	queryIDsErr    error
	deleteByIDsErr error
	filterErrFor   string
}

func (f *fakeVectorIndex) Upsert(_ context.Context, vectors []vectorindex.Vector) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	batch := make([]vectorindex.Vector, len(vectors))
	copy(batch, vectors)
	f.upserts = append(f.upserts, batch)
	return len(vectors), nil
}

func (f *fakeVectorIndex) Query(_ context.Context, _ []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.queryFilters = append(f.queryFilters, filter)
	f.queryTopKs = append(f.queryTopKs, topK)
	return f.queryMatches, nil
}

func (f *fakeVectorIndex) QueryIDs(_ context.Context, _ vectorindex.Filter, limit int) ([]string, error) {
	if f.queryIDsErr != nil {
		return nil, f.queryIDsErr
	}
	if f.storedIDs != nil {
		n := limit
		if n > len(f.storedIDs) {
			n = len(f.storedIDs)
		}
		page := make([]string, n)
		copy(page, f.storedIDs[:n])
		return page, nil
	}
	return f.queryIDsRet, nil
}

func (f *fakeVectorIndex) DeleteByIDs(_ context.Context, ids []string) error {
	if f.deleteByIDsErr != nil {
		return f.deleteByIDsErr
	}
	f.deletedIDs = append(f.deletedIDs, ids)
	if f.storedIDs != nil && !f.retainOnDelete {
		remove := make(map[string]bool, len(ids))
		for _, id := range ids {
			remove[id] = true
		}
		var remaining []string
		for _, id := range f.storedIDs {
			if !remove[id] {
				remaining = append(remaining, id)
			}
		}
		f.storedIDs = remaining
	}
	return nil
}

func (f *fakeVectorIndex) DeleteByFilter(_ context.Context, filter vectorindex.Filter) error {
	if sessionID, ok := filter["session_id"].(string); ok && sessionID == f.filterErrFor {
		return errors.New("index unavailable")
	}
	f.filters = append(f.filters, filter)
	if _, ok := filter["file_id"]; ok {
		f.storedIDs = nil
	}
	return nil
}

func newIngestFixture() (*IngestService, *fakeFileStore, *fakeBlobStore, *fakeEmbedder, *fakeVectorIndex) {
	files := newFakeFileStore()
	blobs := newFakeBlobStore()
	embedder := &fakeEmbedder{}
	index := &fakeVectorIndex{}
	return NewIngestService(files, blobs, embedder, index), files, blobs, embedder, index
}

func TestChunkTextOverlapOffsets(t *testing.T) {
	text := strings.Repeat("a", 349) + "X" + strings.Repeat("b", 650)
	require.Len(t, []rune(text), 1000)

	chunks := chunkText(text, 400, 50)

	require.Len(t, chunks, 3)
	assert.Len(t, []rune(chunks[0]), 400)
	assert.Len(t, []rune(chunks[1]), 400)
	assert.Len(t, []rune(chunks[2]), 300)
	// chunk 2 starts 350 runes in, so the marker at offset 349 is not in it
	assert.Equal(t, "X", string([]rune(chunks[0])[349]))
	assert.Equal(t, "b", string([]rune(chunks[1])[0]))
}

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	text := strings.Repeat("a", 400)
	chunks := chunkText(text, 400, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkTextMultiByte(t *testing.T) {
	text := strings.Repeat("语", 500)
	chunks := chunkText(text, 400, 50)
	require.Len(t, chunks, 2)
	assert.Len(t, []rune(chunks[0]), 400)
	assert.Len(t, []rune(chunks[1]), 150)
}

func TestIngestEmbedsInSequentialBatches(t *testing.T) {
	svc, _, _, embedder, index := newIngestFixture()

	// 7000 runes chunk into exactly 20 pieces at stride 350
	text := strings.Repeat("a", 7000)
	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		FileName:  "resume",
		Content:   text,
	})

	require.NoError(t, err)
	assert.Equal(t, 20, result.ChunkCount)
	assert.Equal(t, []int{6, 6, 6, 2}, embedder.batchSizes)
	require.Len(t, index.upserts, 1)
	assert.Len(t, index.upserts[0], 20)
	assert.Equal(t, 20, result.VectorCount)
}

func TestIngestDeterministicVectorIDs(t *testing.T) {
	svc, _, _, _, index := newIngestFixture()
	input := IngestInput{SessionID: "sess-1", FileName: "doc", Content: strings.Repeat("a", 1000)}

	_, err := svc.Ingest(context.Background(), input)
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, index.upserts, 2)
	first, second := index.upserts[0], index.upserts[1]
	require.Len(t, first, len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Len(t, first[i].ID, 64)
	}
}

func TestIngestMismatchAbortsBeforeUpsert(t *testing.T) {
	svc, _, _, embedder, index := newIngestFixture()
	embedder.extraPerBatch = 1

	_, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		Content:   strings.Repeat("a", 1000),
	})

	require.ErrorIs(t, err, ErrEmbeddingMismatch)
	assert.Empty(t, index.upserts)
}

func TestIngestEmbedFailureAbortsPipeline(t *testing.T) {
	svc, _, _, embedder, index := newIngestFixture()
	embedder.embedErr = errors.New("embedding api down")

	_, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		Content:   "some document text",
	})

	require.Error(t, err)
	assert.Empty(t, index.upserts)
}

func TestIngestRejectsEmptyDocument(t *testing.T) {
	svc, _, _, _, _ := newIngestFixture()
	_, err := svc.Ingest(context.Background(), IngestInput{SessionID: "sess-1", Content: "   \n\t "})
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngestRequiresOwner(t *testing.T) {
	svc, _, _, _, _ := newIngestFixture()
	_, err := svc.Ingest(context.Background(), IngestInput{Content: "text"})
	require.ErrorIs(t, err, ErrMissingOwner)
}

func TestIngestSessionIDInMetadata(t *testing.T) {
	svc, files, blobs, _, index := newIngestFixture()

	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-9",
		FileName:  "notes",
		Content:   "short visitor document",
		Raw:       []byte("%PDF-1.4"),
	})

	require.NoError(t, err)
	require.Len(t, index.upserts, 1)
	for _, v := range index.upserts[0] {
		assert.Equal(t, "sess-9", v.Metadata.SessionID)
		assert.Equal(t, result.File.ID, v.Metadata.FileID)
		assert.NotEmpty(t, v.Metadata.Text)
	}

	stored, err := files.GetByID(result.File.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SessionID)
	assert.Equal(t, "sess-9", *stored.SessionID)
	assert.Len(t, blobs.puts, 1)
}

func TestIngestOwnerUploadOmitsSessionID(t *testing.T) {
	svc, _, _, _, index := newIngestFixture()

	_, err := svc.Ingest(context.Background(), IngestInput{
		UserID:  7,
		Content: "owner document",
	})

	require.NoError(t, err)
	require.Len(t, index.upserts, 1)
	assert.Empty(t, index.upserts[0][0].Metadata.SessionID)
}

func TestDeleteFileRemovesVectorsBlobAndRow(t *testing.T) {
	svc, files, blobs, _, index := newIngestFixture()

	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		Content:   "delete me",
		Raw:       []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	index.queryIDsRet = []string{"id-1", "id-2"}

	err = svc.DeleteFile(context.Background(), result.File.ID, 0, "sess-1")

	require.NoError(t, err)
	require.Len(t, index.deletedIDs, 1)
	assert.Equal(t, []string{"id-1", "id-2"}, index.deletedIDs[0])
	assert.Equal(t, []string{result.File.FileKey}, blobs.deletes)
	assert.Equal(t, []uint{result.File.ID}, files.deletedIDs)

	gone, err := files.GetByID(result.File.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDeleteFilePagesThroughLargeIndex(t *testing.T) {
	svc, files, _, _, index := newIngestFixture()

	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		Content:   "large document",
	})
	require.NoError(t, err)

	stored := make([]string, 2500)
	for i := range stored {
		stored[i] = fmt.Sprintf("vec-%d", i)
	}
	index.storedIDs = stored

	err = svc.DeleteFile(context.Background(), result.File.ID, 0, "sess-1")

	require.NoError(t, err)
	assert.Empty(t, index.storedIDs, "no vector with the deleted file id may remain")
	require.Len(t, index.deletedIDs, 3)
	assert.Len(t, index.deletedIDs[0], 1000)
	assert.Len(t, index.deletedIDs[1], 1000)
	assert.Len(t, index.deletedIDs[2], 500)
	assert.Equal(t, []uint{result.File.ID}, files.deletedIDs)
}

func TestDeleteFileSweepsWhenPagingStalls(t *testing.T) {
	svc, files, _, _, index := newIngestFixture()

	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		Content:   "stubborn document",
	})
	require.NoError(t, err)

	stored := make([]string, 1000)
	for i := range stored {
		stored[i] = fmt.Sprintf("vec-%d", i)
	}
	index.storedIDs = stored
	// deletes never become visible to the id queries
	index.retainOnDelete = true

	err = svc.DeleteFile(context.Background(), result.File.ID, 0, "sess-1")

	require.NoError(t, err)
	assert.Len(t, index.deletedIDs, maxFileSweepRounds)
	assert.Empty(t, index.storedIDs, "the filtered sweep must catch what paging could not")
	require.NotEmpty(t, index.filters)
	assert.Equal(t, vectorindex.Filter{"file_id": result.File.ID}, index.filters[len(index.filters)-1])
	assert.Equal(t, []uint{result.File.ID}, files.deletedIDs)
}

func TestDownloadFileReturnsUploadedBytes(t *testing.T) {
	svc, _, _, _, _ := newIngestFixture()
	raw := []byte("%PDF-1.4 original bytes")

	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		FileName:  "resume",
		Content:   "some text",
		Raw:       raw,
	})
	require.NoError(t, err)

	file, data, err := svc.DownloadFile(context.Background(), result.File.ID, 0, "sess-1")

	require.NoError(t, err)
	assert.Equal(t, raw, data)
	assert.Equal(t, "resume", file.FileName)
}

func TestDownloadFileRejectsForeignOwner(t *testing.T) {
	svc, _, _, _, _ := newIngestFixture()

	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		Content:   "some text",
		Raw:       []byte("%PDF-1.4"),
	})
	require.NoError(t, err)

	_, _, err = svc.DownloadFile(context.Background(), result.File.ID, 0, "other-session")
	require.ErrorIs(t, err, ErrFileNotFound)
	_, _, err = svc.DownloadFile(context.Background(), 0, 0, "sess-1")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestDeleteFileRejectsForeignOwner(t *testing.T) {
	svc, files, _, _, index := newIngestFixture()

	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		Content:   "visitor document",
	})
	require.NoError(t, err)

	err = svc.DeleteFile(context.Background(), result.File.ID, 0, "other-session")
	require.ErrorIs(t, err, ErrFileNotFound)
	err = svc.DeleteFile(context.Background(), result.File.ID, 42, "")
	require.ErrorIs(t, err, ErrFileNotFound)

	assert.Empty(t, index.deletedIDs)
	assert.Empty(t, files.deletedIDs)
}

func TestDeleteFileVectorFailureKeepsRow(t *testing.T) {
	svc, files, _, _, index := newIngestFixture()

	result, err := svc.Ingest(context.Background(), IngestInput{
		SessionID: "sess-1",
		Content:   "visitor document",
	})
	require.NoError(t, err)
	index.queryIDsRet = []string{"id-1"}
	index.deleteByIDsErr = errors.New("index unavailable")

	err = svc.DeleteFile(context.Background(), result.File.ID, 0, "sess-1")

	require.Error(t, err)
	assert.Empty(t, files.deletedIDs)
	stored, err := files.GetByID(result.File.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}
