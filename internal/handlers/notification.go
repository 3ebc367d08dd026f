package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-console/internal/models"
)

// Inbox is the notification inbox.
type Inbox interface {
	List() []models.Notification
	Unread() int
	MarkRead(id string) error
	MarkAllRead() error
}

// NotificationHandler serves the notification inbox.
type NotificationHandler struct {
	inbox Inbox
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(inbox Inbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	list := h.inbox.List()
	if list == nil {
		list = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": h.inbox.Unread()})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.inbox.MarkRead(c.Param("notification_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": h.inbox.Unread()})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.inbox.MarkAllRead(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": h.inbox.Unread()})
}
