package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"support-console/internal/models"
	"support-console/internal/repositories"
)

const maxActionLimit = 200

// ActionHandler exposes the admin action journal.
type ActionHandler struct {
	actions repositories.ActionRepository
}

// NewActionHandler builds an ActionHandler.
func NewActionHandler(actions repositories.ActionRepository) *ActionHandler {
	return &ActionHandler{actions: actions}
}

// ListActions returns recent journal entries, or the entries of one target when
// target_type and target_id are given.
func (h *ActionHandler) ListActions(c *gin.Context) {
	targetType, targetID := c.Query("target_type"), c.Query("target_id")
	var (
		actions []models.AdminAction
		err     error
	)
	if targetType != "" && targetID != "" {
		actions, err = h.actions.ListForTarget(c.Request.Context(), targetType, targetID)
	} else {
		limit, convErr := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if convErr != nil || limit <= 0 || limit > maxActionLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		actions, err = h.actions.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load actions"})
		return
	}
	if actions == nil {
		actions = []models.AdminAction{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}
