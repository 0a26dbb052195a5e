package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliohub/internal/ai"
	"portfoliohub/internal/model"
	"portfoliohub/internal/vectorindex"
)

type fakeUserStore struct {
	users     map[string]*model.User
	createErr error
}

func newFakeUserStore(users ...*model.User) *fakeUserStore {
	store := &fakeUserStore{users: map[string]*model.User{}}
	for _, u := range users {
		store.users[u.Username] = u
	}
	return store
}

func (f *fakeUserStore) Create(user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	user.ID = uint(len(f.users) + 1)
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserStore) GetByUsername(username string) (*model.User, error) {
	return f.users[username], nil
}

func (f *fakeUserStore) GetByEmail(email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) GetByID(id uint) (*model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

type fakeFileLister struct {
	byUser map[uint][]model.File
}

func (f *fakeFileLister) ListByUserID(userID uint) ([]model.File, error) {
	return f.byUser[userID], nil
}

type fakeTranscriptStore struct {
	messages []model.AssistantMessage
}

func (f *fakeTranscriptStore) ListBySessionToken(sessionToken string, limit int) ([]model.AssistantMessage, error) {
	var out []model.AssistantMessage
	for _, m := range f.messages {
		if m.SessionToken == sessionToken {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakePublisher struct {
	published  []model.AssistantMessage
	publishErr error
}

func (f *fakePublisher) Publish(_ context.Context, msg model.AssistantMessage) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeHistoryCache struct {
	entries map[string][]model.AssistantMessage
	deletes []string
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{entries: map[string][]model.AssistantMessage{}}
}

func (f *fakeHistoryCache) GetHistory(_ context.Context, token string) ([]model.AssistantMessage, bool, error) {
	messages, ok := f.entries[token]
	return messages, ok, nil
}

func (f *fakeHistoryCache) SetHistory(_ context.Context, token string, messages []model.AssistantMessage) error {
	f.entries[token] = messages
	return nil
}

func (f *fakeHistoryCache) DeleteHistory(_ context.Context, token string) error {
	delete(f.entries, token)
	f.deletes = append(f.deletes, token)
	return nil
}

type fakeChatClient struct {
	chunks    []string
	prompts   [][]ai.ChatMessage
	streamErr error
}

func (f *fakeChatClient) StreamComplete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	if f.streamErr != nil {
		return "", f.streamErr
	}
	f.prompts = append(f.prompts, messages)
	var full strings.Builder
	for _, chunk := range f.chunks {
		if err := onChunk(chunk); err != nil {
			return "", err
		}
		full.WriteString(chunk)
	}
	return full.String(), nil
}

type assistantFixture struct {
	svc         *AssistantService
	users       *fakeUserStore
	files       *fakeFileLister
	transcripts *fakeTranscriptStore
	index       *fakeVectorIndex
	llm         *fakeChatClient
	publisher   *fakePublisher
	history     *fakeHistoryCache
}

func newAssistantFixture() *assistantFixture {
	f := &assistantFixture{
		users:       newFakeUserStore(),
		files:       &fakeFileLister{byUser: map[uint][]model.File{}},
		transcripts: &fakeTranscriptStore{},
		index:       &fakeVectorIndex{},
		llm:         &fakeChatClient{chunks: []string{"Hello ", "world"}},
		publisher:   &fakePublisher{},
		history:     newFakeHistoryCache(),
	}
	f.index.queryMatches = []vectorindex.Match{
		{ID: "v1", Score: 0.92, Metadata: vectorindex.Metadata{Text: "Go developer since 2019", FileID: 3}},
	}
	f.svc = NewAssistantService(
		f.users, f.files, f.transcripts,
		&fakeEmbedder{}, f.index,
		f.llm, ai.ChatConfig{Model: "test-model"},
		f.publisher, f.history, 5,
	)
	return f
}

func TestAskSessionScope(t *testing.T) {
	f := newAssistantFixture()

	var streamed []string
	result, err := f.svc.Ask(context.Background(), AskInput{
		SessionID: "sess-1",
		Question:  "What languages?",
	}, func(chunk string) error {
		streamed = append(streamed, chunk)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello world", result.Answer)
	assert.Equal(t, []string{"Hello ", "world"}, streamed)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Go developer since 2019", result.Sources[0].Text)
	assert.Equal(t, uint(3), result.Sources[0].FileID)

	require.Len(t, f.index.queryFilters, 1)
	assert.Equal(t, vectorindex.Filter{"session_id": "sess-1"}, f.index.queryFilters[0])
	assert.Equal(t, []int{5}, f.index.queryTopKs)
}

func TestAskUsernameScopeFiltersByFileIDs(t *testing.T) {
	f := newAssistantFixture()
	f.users.users["jane"] = &model.User{Username: "jane"}
	f.users.users["jane"].ID = 7
	f.files.byUser[7] = []model.File{{FileName: "cv"}, {FileName: "notes"}}
	f.files.byUser[7][0].ID = 10
	f.files.byUser[7][1].ID = 11

	_, err := f.svc.Ask(context.Background(), AskInput{
		Username: "jane",
		Question: "What does she do?",
	}, func(string) error { return nil })

	require.NoError(t, err)
	require.Len(t, f.index.queryFilters, 1)
	assert.Equal(t,
		vectorindex.Filter{"file_id": map[string]any{"$in": []uint{10, 11}}},
		f.index.queryFilters[0])
}

func TestAskUnknownUsername(t *testing.T) {
	f := newAssistantFixture()
	_, err := f.svc.Ask(context.Background(), AskInput{Username: "ghost", Question: "hi"}, func(string) error { return nil })
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestAskUsernameWithoutFiles(t *testing.T) {
	f := newAssistantFixture()
	f.users.users["jane"] = &model.User{Username: "jane"}
	f.users.users["jane"].ID = 7

	_, err := f.svc.Ask(context.Background(), AskInput{Username: "jane", Question: "hi"}, func(string) error { return nil })
	require.ErrorIs(t, err, ErrNoDocuments)
}

func TestAskRequiresScope(t *testing.T) {
	f := newAssistantFixture()
	_, err := f.svc.Ask(context.Background(), AskInput{Question: "hi"}, func(string) error { return nil })
	require.ErrorIs(t, err, ErrMissingScope)
}

func TestAskEmptyQuestion(t *testing.T) {
	f := newAssistantFixture()
	_, err := f.svc.Ask(context.Background(), AskInput{SessionID: "s", Question: "  "}, func(string) error { return nil })
	require.ErrorIs(t, err, ErrQuestionEmpty)
}

func TestAskNoMatches(t *testing.T) {
	f := newAssistantFixture()
	f.index.queryMatches = nil
	_, err := f.svc.Ask(context.Background(), AskInput{SessionID: "s", Question: "hi"}, func(string) error { return nil })
	require.ErrorIs(t, err, ErrNoContext)
}

func TestAskPromptCarriesRetrievedContext(t *testing.T) {
	f := newAssistantFixture()

	_, err := f.svc.Ask(context.Background(), AskInput{SessionID: "s", Question: "What languages?"}, func(string) error { return nil })

	require.NoError(t, err)
	require.Len(t, f.llm.prompts, 1)
	prompt := f.llm.prompts[0]
	require.Len(t, prompt, 2)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Contains(t, prompt[1].Content, "Go developer since 2019")
	assert.Contains(t, prompt[1].Content, "What languages?")
}

func TestAskPublishesTranscriptTurns(t *testing.T) {
	f := newAssistantFixture()

	_, err := f.svc.Ask(context.Background(), AskInput{SessionID: "sess-1", Question: "hi"}, func(string) error { return nil })

	require.NoError(t, err)
	require.Len(t, f.publisher.published, 2)
	assert.Equal(t, "user", f.publisher.published[0].Role)
	assert.Equal(t, "hi", f.publisher.published[0].Content)
	assert.Equal(t, "assistant", f.publisher.published[1].Role)
	assert.Equal(t, "Hello world", f.publisher.published[1].Content)
	assert.Contains(t, f.history.deletes, "sess-1")
}

func TestAskPublishFailureDoesNotBreakAnswer(t *testing.T) {
	f := newAssistantFixture()
	f.publisher.publishErr = errors.New("broker down")

	result, err := f.svc.Ask(context.Background(), AskInput{SessionID: "sess-1", Question: "hi"}, func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, "Hello world", result.Answer)
}

func TestHistoryCacheMissFillsFromStore(t *testing.T) {
	f := newAssistantFixture()
	f.transcripts.messages = []model.AssistantMessage{
		{SessionToken: "sess-1", Role: "user", Content: "hi"},
		{SessionToken: "sess-1", Role: "assistant", Content: "hello"},
		{SessionToken: "other", Role: "user", Content: "not mine"},
	}

	messages, err := f.svc.History(context.Background(), "sess-1", 0)

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Len(t, f.history.entries["sess-1"], 2)
}

func TestHistoryServedFromCache(t *testing.T) {
	f := newAssistantFixture()
	f.history.entries["sess-1"] = []model.AssistantMessage{
		{SessionToken: "sess-1", Role: "user", Content: "cached"},
	}
	f.transcripts.messages = nil

	messages, err := f.svc.History(context.Background(), "sess-1", 0)

	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "cached", messages[0].Content)
}
