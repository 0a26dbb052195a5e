package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfoliohub/internal/app"
	"portfoliohub/internal/transport/http/response"
)

type SessionHandler struct {
	sessionService *app.SessionService
}

type CreateSessionRequest struct {
	SessionID       string `json:"session_id" binding:"max=64"`
	DurationInHours int    `json:"duration_in_hours" binding:"min=0,max=168"`
}

func NewSessionHandler(sessionService *app.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Create issues or renews a visitor session. A store failure is not surfaced;
// the token is usable either way, it just loses guaranteed cleanup.
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session := h.sessionService.GetOrCreate(req.SessionID, req.DurationInHours)
	response.OK(c, gin.H{
		"session_id": session.ID,
		"expires_at": session.ExpiresAt,
	})
}
