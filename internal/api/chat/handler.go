package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/service"
)

// Limits bound what a single send may carry.
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

// Handler handles chat API requests
type Handler struct {
	chatService *service.ChatService
	limits      Limits
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService, limits Limits) *Handler {
	return &Handler{chatService: chatService, limits: limits}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions/:id", h.ResumeSession)
	r.POST("/sessions/:id/stream", h.SendStream)
	r.POST("/sessions/:id/stop", h.Stop)
	r.POST("/sessions/:id/messages/:message_id/feedback", h.Feedback)
}

// CreateSession starts a new conversation
func (h *Handler) CreateSession(c *gin.Context) {
	snap, err := h.chatService.NewConversation(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// ResumeSession attaches to an existing conversation and returns its state
func (h *Handler) ResumeSession(c *gin.Context) {
	sessionID := c.Param("id")
	userID := c.GetHeader("X-User-ID")

	snap := h.chatService.Resume(c.Request.Context(), sessionID, userID)
	c.JSON(http.StatusOK, snap)
}

// SendStream sends a message with optional attachments and streams the
// assistant reply back as SSE
func (h *Handler) SendStream(c *gin.Context) {
	sessionID := c.Param("id")

	req, err := h.parseSendRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := h.chatService.SendStream(c.Request.Context(), sessionID, req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrSendInFlight):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Drain until the engine closes the channel; the terminal event is
	// always last. Client disconnects cancel the request context, which
	// aborts the send upstream.
	for ev := range stream {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, string(data))
		c.Writer.Flush()
	}
}

// Stop cancels the in-flight send of a session
func (h *Handler) Stop(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.chatService.Stop(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

type feedbackRequest struct {
	Action string `json:"action" binding:"required"`
}

// Feedback toggles like/dislike on a message
func (h *Handler) Feedback(c *gin.Context) {
	sessionID := c.Param("id")
	messageID := c.Param("message_id")

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.chatService.Feedback(sessionID, messageID, req.Action); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be like or dislike"})
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseSendRequest reads the multipart send form: text, optional case_id,
// context and user_id fields, attached files and pre-resolved remote refs.
func (h *Handler) parseSendRequest(c *gin.Context) (domain.SendRequest, error) {
	req := domain.SendRequest{
		Text:    c.PostForm("text"),
		CaseID:  c.PostForm("case_id"),
		Context: c.PostForm("context"),
		UserID:  c.GetHeader("X-User-ID"),
	}
	if req.Text == "" {
		return req, fmt.Errorf("text is required")
	}

	// Already-resolved remote references pass through the upload step.
	if raw := c.PostForm("remote_files"); raw != "" {
		var remote []domain.FileRef
		if err := json.Unmarshal([]byte(raw), &remote); err != nil {
			return req, fmt.Errorf("invalid remote_files: %w", err)
		}
		req.Files = append(req.Files, remote...)
	}

	form, err := c.MultipartForm()
	if err != nil {
		if len(req.Files) > 0 || req.Text != "" {
			return req, nil // plain form post without attachments
		}
		return req, fmt.Errorf("invalid form: %w", err)
	}

	files := form.File["files"]
	if h.limits.MaxFiles > 0 && len(files) > h.limits.MaxFiles {
		return req, fmt.Errorf("too many files: max %d", h.limits.MaxFiles)
	}
	for _, fh := range files {
		if h.limits.MaxFileSize > 0 && fh.Size > h.limits.MaxFileSize {
			return req, fmt.Errorf("file %s exceeds size limit", fh.Filename)
		}
		src, err := fh.Open()
		if err != nil {
			return req, fmt.Errorf("open uploaded file %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return req, fmt.Errorf("read uploaded file %s: %w", fh.Filename, err)
		}
		req.Files = append(req.Files, domain.FileRef{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	return req, nil
}
