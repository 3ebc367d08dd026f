package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-console/internal/ws"
)

// SocketState reports a supervised socket's state.
type SocketState interface {
	State() ws.State
}

// BadgeReader reads the console-wide unread badge.
type BadgeReader interface {
	Total() int
	Counts() map[string]int
}

// StatusHandler reports connectivity and badge counts.
type StatusHandler struct {
	chat          SocketState
	notifications SocketState
	badge         BadgeReader
	uiClients     func() int
}

// NewStatusHandler builds a StatusHandler. notifications may be nil when the
// notification socket is not configured.
func NewStatusHandler(chat, notifications SocketState, badge BadgeReader, uiClients func() int) *StatusHandler {
	return &StatusHandler{chat: chat, notifications: notifications, badge: badge, uiClients: uiClients}
}

func (h *StatusHandler) GetStatus(c *gin.Context) {
	resp := gin.H{
		"chat":        h.chat.State(),
		"badge_total": h.badge.Total(),
		"badge":       h.badge.Counts(),
	}
	if h.notifications != nil {
		resp["notifications"] = h.notifications.State()
	} else {
		resp["notifications"] = "disabled"
	}
	if h.uiClients != nil {
		resp["ui_clients"] = h.uiClients()
	}
	c.JSON(http.StatusOK, resp)
}
