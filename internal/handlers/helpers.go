package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"support-console/internal/api"
	"support-console/internal/conversation"
	"support-console/internal/notifications"
	"support-console/internal/panel"
	"support-console/internal/payouts"
	"support-console/internal/telemetry"
	"support-console/internal/ws"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// requestContext carries the request id down to the audit journal.
func requestContext(c *gin.Context) context.Context {
	return telemetry.WithRequestID(c.Request.Context(), requestIDFromContext(c))
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrMissingFile),
		errors.Is(err, payouts.ErrReasonTooShort),
		errors.Is(err, payouts.ErrReferenceRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, notifications.ErrUnknownNotification):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, conversation.ErrNoActiveConversation),
		errors.Is(err, conversation.ErrConversationClosed),
		errors.Is(err, conversation.ErrNotActive),
		errors.Is(err, conversation.ErrSuperseded),
		errors.Is(err, panel.ErrNoMoreHistory),
		errors.Is(err, payouts.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ws.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		if apiErr, ok := api.AsAPIError(err); ok {
			status := http.StatusBadGateway
			if apiErr.Status >= 400 && apiErr.Status < 500 {
				status = apiErr.Status
			}
			c.JSON(status, gin.H{"error": apiErr.Message, "code": apiErr.ErrorCode, "hint": apiErr.Hint})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
