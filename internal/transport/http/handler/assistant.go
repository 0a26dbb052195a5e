package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"portfoliohub/internal/app"
	"portfoliohub/internal/pkg/pdfextract"
	"portfoliohub/internal/transport/http/response"
)

const maxUploadSize = 10 << 20 // 10 MB

type AssistantHandler struct {
	ingestService    *app.IngestService
	assistantService *app.AssistantService
	sessionService   *app.SessionService
}

type AskRequest struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"session_id" binding:"max=64"`
	Username  string `json:"username" binding:"max=64"`
	TopK      int    `json:"top_k" binding:"min=0,max=20"`
}

func NewAssistantHandler(ingestService *app.IngestService, assistantService *app.AssistantService, sessionService *app.SessionService) *AssistantHandler {
	return &AssistantHandler{
		ingestService:    ingestService,
		assistantService: assistantService,
		sessionService:   sessionService,
	}
}

// UploadFile accepts a multipart form with "file" (PDF) plus a session_id
// field or an authenticated owner, extracts text, and runs the ingestion
// pipeline.
func (h *AssistantHandler) UploadFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 10MB)")
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF files are allowed")
		return
	}

	userID, _ := getUserIDFromContext(c)
	sessionID := strings.TrimSpace(c.PostForm("session_id"))
	if userID == 0 && sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing session id")
		return
	}
	if userID == 0 {
		valid, err := h.sessionService.Validate(sessionID)
		if err != nil {
			if errors.Is(err, app.ErrInvalidSessionID) {
				response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			} else {
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "validate session failed")
			}
			return
		}
		if !valid {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unknown or expired session")
			return
		}
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	text, err := pdfextract.ExtractText(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, pdfextract.ErrNoText) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to extract text from PDF")
		}
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), app.IngestInput{
		UserID:    userID,
		SessionID: sessionID,
		FileName:  name,
		Content:   text,
		Raw:       raw,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmptyDocument), errors.Is(err, app.ErrMissingOwner):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed")
		}
		return
	}

	response.OK(c, result)
}

// DeleteFile removes a file's vectors, blob, and relational row.
func (h *AssistantHandler) DeleteFile(c *gin.Context) {
	fileID, err := parseUintParam(c, "id")
	if err != nil || fileID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid file id")
		return
	}

	userID, _ := getUserIDFromContext(c)
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if userID == 0 && sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing session id")
		return
	}

	if err := h.ingestService.DeleteFile(c.Request.Context(), fileID, userID, sessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrFileNotFound):
			response.Error(c, http.StatusNotFound, response.CodeFileNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete file failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_file_id": fileID})
}

// DownloadFile serves the original uploaded bytes back to the file's owner.
func (h *AssistantHandler) DownloadFile(c *gin.Context) {
	fileID, err := parseUintParam(c, "id")
	if err != nil || fileID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid file id")
		return
	}

	userID, _ := getUserIDFromContext(c)
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if userID == 0 && sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing session id")
		return
	}

	file, data, err := h.ingestService.DownloadFile(c.Request.Context(), fileID, userID, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrFileNotFound):
			response.Error(c, http.StatusNotFound, response.CodeFileNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "download file failed")
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.FileName+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

// Ask streams the assistant answer as server-sent events, then a final
// "result" event with the full answer and sources.
func (h *AssistantHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	result, err := h.assistantService.Ask(c.Request.Context(), app.AskInput{
		SessionID: req.SessionID,
		Username:  req.Username,
		Question:  req.Question,
		TopK:      req.TopK,
	}, func(chunk string) error {
		c.SSEvent("chunk", chunk)
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		c.SSEvent("error", askErrorMessage(err))
		c.Writer.Flush()
		return
	}

	c.SSEvent("result", result)
	c.Writer.Flush()
}

func (h *AssistantHandler) History(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing session id")
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			limit = parsed
		}
	}

	messages, err := h.assistantService.History(c.Request.Context(), sessionID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "fetch history failed")
		return
	}
	response.OK(c, messages)
}

func askErrorMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrQuestionEmpty),
		errors.Is(err, app.ErrMissingScope),
		errors.Is(err, app.ErrNoDocuments),
		errors.Is(err, app.ErrNoContext),
		errors.Is(err, app.ErrUserNotFound):
		return err.Error()
	default:
		return "ask failed"
	}
}
