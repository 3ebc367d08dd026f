package handlers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"support-console/internal/export"
	"support-console/internal/models"
)

// PanelService is the chat panel controller.
type PanelService interface {
	Snapshot() models.PanelSnapshot
	Refresh(ctx context.Context) error
	Open(ctx context.Context, conversationID string) error
	Leave()
	LoadOlder(ctx context.Context) error
	Send(ctx context.Context, text string) (models.Message, error)
	SendFile(ctx context.Context, fileURL, fileName, caption string) (models.Message, error)
	MarkRead(messageIDs []string) int
	Typing(on bool) error
	Close(ctx context.Context, conversationID string) error
}

// ConversationHandler serves the chat panel endpoints.
type ConversationHandler struct {
	panel PanelService
	now   func() time.Time
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(panel PanelService) *ConversationHandler {
	return &ConversationHandler{panel: panel, now: time.Now}
}

// ListConversations returns the conversation list with local unread counts.
// ?refresh=true reloads it from the platform first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	if c.Query("refresh") == "true" {
		if err := h.panel.Refresh(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
	}
	snap := h.panel.Snapshot()
	c.JSON(http.StatusOK, gin.H{"conversations": snap.Conversations, "total_unread": snap.TotalUnread})
}

// OpenConversation makes a conversation the active one.
func (h *ConversationHandler) OpenConversation(c *gin.Context) {
	if err := h.panel.Open(c.Request.Context(), c.Param("conversation_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.panel.Snapshot())
}

// CloseConversation closes a conversation on the platform.
func (h *ConversationHandler) CloseConversation(c *gin.Context) {
	if err := h.panel.Close(requestContext(c), c.Param("conversation_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// GetPanel returns the full panel snapshot.
func (h *ConversationHandler) GetPanel(c *gin.Context) {
	c.JSON(http.StatusOK, h.panel.Snapshot())
}

// LeavePanel deactivates the current conversation.
func (h *ConversationHandler) LeavePanel(c *gin.Context) {
	h.panel.Leave()
	c.Status(http.StatusNoContent)
}

// GetMessages returns the active conversation's messages.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	snap := h.panel.Snapshot()
	if snap.ActiveConversationID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": snap.ActiveConversationID,
		"messages":        snap.Messages,
		"has_more":        snap.HasMore,
		"typing":          snap.Typing,
	})
}

// LoadOlder loads the next history page.
func (h *ConversationHandler) LoadOlder(c *gin.Context) {
	if err := h.panel.LoadOlder(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	snap := h.panel.Snapshot()
	c.JSON(http.StatusOK, gin.H{"messages": snap.Messages, "has_more": snap.HasMore})
}

// PostMessage sends a text message or an uploaded file to the active conversation.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	var req struct {
		Message  string `json:"message"`
		FileURL  string `json:"file_url"`
		FileName string `json:"file_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		msg models.Message
		err error
	)
	if req.FileURL != "" || req.FileName != "" {
		msg, err = h.panel.SendFile(c.Request.Context(), req.FileURL, req.FileName, req.Message)
	} else {
		msg, err = h.panel.Send(c.Request.Context(), req.Message)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, msg)
}

// MarkRead marks messages read; an empty list marks every visible unread message.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	var req struct {
		MessageIDs []string `json:"message_ids"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	marked := h.panel.MarkRead(req.MessageIDs)
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// Typing starts or stops the admin typing indicator.
func (h *ConversationHandler) Typing(c *gin.Context) {
	var req struct {
		Typing *bool `json:"typing" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.panel.Typing(*req.Typing); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportTranscript downloads the active conversation as CSV.
func (h *ConversationHandler) ExportTranscript(c *gin.Context) {
	snap := h.panel.Snapshot()
	if snap.ActiveConversationID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active conversation"})
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, export.MessageTable(snap.Messages)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build export"})
		return
	}
	name := export.Filename("conversation_"+snap.ActiveConversationID, export.FormatCSV, h.now())
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
