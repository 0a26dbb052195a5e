package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfoliohub/internal/app"
	"portfoliohub/internal/transport/http/response"
)

type CleanupHandler struct {
	cleanupService *app.CleanupService
	secret         string
}

func NewCleanupHandler(cleanupService *app.CleanupService, secret string) *CleanupHandler {
	return &CleanupHandler{
		cleanupService: cleanupService,
		secret:         secret,
	}
}

// Run triggers the expired-session sweep. Meant for an external scheduler;
// guarded by a shared-secret bearer token.
func (h *CleanupHandler) Run(c *gin.Context) {
	if !h.authorized(c) {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid cleanup token")
		return
	}

	result, err := h.cleanupService.Run(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "cleanup failed")
		return
	}
	response.OK(c, result)
}

func (h *CleanupHandler) authorized(c *gin.Context) bool {
	if h.secret == "" {
		return false
	}
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}
