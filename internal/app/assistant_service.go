package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"portfoliohub/internal/ai"
	"portfoliohub/internal/model"
	"portfoliohub/internal/vectorindex"
)

const defaultTopK = 5

var (
	ErrQuestionEmpty = errors.New("question is empty")
	ErrMissingScope  = errors.New("ask requires a session id or a username")
	ErrNoDocuments   = errors.New("no documents to search")
	ErrNoContext     = errors.New("no relevant context found")
)

type FileLister interface {
	ListByUserID(userID uint) ([]model.File, error)
}

type TranscriptPublisher interface {
	Publish(ctx context.Context, msg model.AssistantMessage) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionToken string) ([]model.AssistantMessage, bool, error)
	SetHistory(ctx context.Context, sessionToken string, messages []model.AssistantMessage) error
	DeleteHistory(ctx context.Context, sessionToken string) error
}

type TranscriptStore interface {
	ListBySessionToken(sessionToken string, limit int) ([]model.AssistantMessage, error)
}

type chatClient interface {
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

// AssistantService answers visitor questions from indexed document chunks:
// embed the question, query the vector index, prompt the chat model with the
// retrieved text, stream the answer. Transcript persistence and history
// caching are advisory side paths.
type AssistantService struct {
	users       UserStore
	files       FileLister
	transcripts TranscriptStore
	embedder    Embedder
	index       VectorIndex
	llm         chatClient
	chatConfig  ai.ChatConfig
	publisher   TranscriptPublisher
	history     HistoryCache
	topK        int
}

func NewAssistantService(
	users UserStore,
	files FileLister,
	transcripts TranscriptStore,
	embedder Embedder,
	index VectorIndex,
	llm chatClient,
	chatConfig ai.ChatConfig,
	publisher TranscriptPublisher,
	history HistoryCache,
	topK int,
) *AssistantService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &AssistantService{
		users:       users,
		files:       files,
		transcripts: transcripts,
		embedder:    embedder,
		index:       index,
		llm:         llm,
		chatConfig:  chatConfig,
		publisher:   publisher,
		history:     history,
		topK:        topK,
	}
}

type AskInput struct {
	SessionID string // scope: visitor session uploads
	Username  string // scope: a portfolio owner's uploads
	Question  string
	TopK      int
}

type Source struct {
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
	FileID uint    `json:"file_id"`
}

type AskResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Ask streams the answer through onChunk and returns the full result.
func (s *AssistantService) Ask(ctx context.Context, input AskInput, onChunk func(string) error) (*AskResult, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrQuestionEmpty
	}

	filter, err := s.scopeFilter(input)
	if err != nil {
		return nil, err
	}

	topK := input.TopK
	if topK <= 0 {
		topK = s.topK
	}

	queryVec, err := s.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, err
	}

	matches, err := s.index.Query(ctx, queryVec, topK, filter)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoContext
	}

	sources := make([]Source, len(matches))
	var contextBlock strings.Builder
	for i, m := range matches {
		sources[i] = Source{Text: m.Metadata.Text, Score: m.Score, FileID: m.Metadata.FileID}
		contextBlock.WriteString("\n---\n")
		contextBlock.WriteString(m.Metadata.Text)
	}
	contextBlock.WriteString("\n---")

	messages := []ai.ChatMessage{
		{
			Role: "system",
			Content: "You are a portfolio assistant. Answer the visitor's question based only on the " +
				"following context from the owner's documents. If the context does not contain enough " +
				"information, say so. Do not make up facts.",
		},
		{
			Role:    "user",
			Content: "Context:" + contextBlock.String() + "\n\nQuestion: " + question + "\n\nAnswer:",
		},
	}

	s.record(ctx, input.SessionID, "user", question)

	answer, err := s.llm.StreamComplete(ctx, s.chatConfig, messages, onChunk)
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}

	s.record(ctx, input.SessionID, "assistant", answer)

	return &AskResult{Answer: answer, Sources: sources}, nil
}

// History returns recent turns for a visitor session, served from the cache
// when warm.
func (s *AssistantService) History(ctx context.Context, sessionToken string, limit int) ([]model.AssistantMessage, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return nil, ErrMissingScope
	}

	if s.history != nil {
		if cached, hit, err := s.history.GetHistory(ctx, sessionToken); err == nil && hit {
			return trimMessages(cached, limit), nil
		}
	}

	messages, err := s.transcripts.ListBySessionToken(sessionToken, limit)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		_ = s.history.SetHistory(ctx, sessionToken, messages)
	}
	return messages, nil
}

func (s *AssistantService) scopeFilter(input AskInput) (vectorindex.Filter, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID != "" {
		return vectorindex.Filter{"session_id": sessionID}, nil
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, ErrMissingScope
	}
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	files, err := s.files.ListByUserID(user.ID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoDocuments
	}
	ids := make([]uint, len(files))
	for i := range files {
		ids[i] = files[i].ID
	}
	return vectorindex.Filter{"file_id": map[string]any{"$in": ids}}, nil
}

// record publishes a transcript turn; failures are logged, not surfaced, so
// a broker outage never breaks the chat path.
func (s *AssistantService) record(ctx context.Context, sessionToken, role, content string) {
	if s.publisher == nil || strings.TrimSpace(sessionToken) == "" {
		return
	}
	if s.history != nil {
		_ = s.history.DeleteHistory(ctx, sessionToken)
	}
	msg := model.AssistantMessage{
		SessionToken: sessionToken,
		Role:         role,
		Content:      content,
		CreatedAt:    time.Now(),
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		log.Printf("publish transcript for session %s failed: %v", sessionToken, err)
	}
}

func trimMessages(messages []model.AssistantMessage, limit int) []model.AssistantMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
