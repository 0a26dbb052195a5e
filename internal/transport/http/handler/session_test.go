package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliohub/internal/app"
	"portfoliohub/internal/model"
)

type stubSessionStore struct {
	sessions map[string]*model.Session
}

func (s *stubSessionStore) Upsert(session *model.Session) error {
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *stubSessionStore) GetByID(id string) (*model.Session, error) {
	return s.sessions[id], nil
}

func newSessionRouter() (*gin.Engine, *stubSessionStore) {
	gin.SetMode(gin.TestMode)
	store := &stubSessionStore{sessions: map[string]*model.Session{}}
	h := NewSessionHandler(app.NewSessionService(store, 24))
	router := gin.New()
	router.POST("/api/v1/sessions", h.Create)
	return router, store
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSessionMintsToken(t *testing.T) {
	router, store := newSessionRouter()

	rec := postJSON(router, "/api/v1/sessions", `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Code int `json:"code"`
		Data struct {
			SessionID string `json:"session_id"`
			ExpiresAt string `json:"expires_at"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Code)
	assert.NotEmpty(t, body.Data.SessionID)
	assert.NotEmpty(t, body.Data.ExpiresAt)
	assert.Contains(t, store.sessions, body.Data.SessionID)
}

func TestCreateSessionRenewsExisting(t *testing.T) {
	router, store := newSessionRouter()

	rec := postJSON(router, "/api/v1/sessions", `{"session_id": "visitor-1", "duration_in_hours": 2}`)

	require.Equal(t, http.StatusOK, rec.Code)
	session := store.sessions["visitor-1"]
	require.NotNil(t, session)
	assert.Equal(t, "visitor-1", session.ID)
}

func TestCreateSessionRejectsBadPayload(t *testing.T) {
	router, _ := newSessionRouter()

	rec := postJSON(router, "/api/v1/sessions", `{"duration_in_hours": 9999}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
