package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"support-console/internal/models"
)

// DefaultPageSize is the number of messages per history page.
const DefaultPageSize = 50

// ListConversations returns the conversations visible to the admin, optionally filtered by status.
func (c *Client) ListConversations(ctx context.Context, status models.ConversationStatus) ([]models.Conversation, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	var data struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/support/admin/conversations", query, nil, &data); err != nil {
		return nil, err
	}
	return data.Conversations, nil
}

// GetConversation fetches one conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := c.do(ctx, http.MethodGet, "/support/conversations/"+url.PathEscape(conversationID), nil, nil, &conv)
	return conv, err
}

// GetMessages returns one page of a conversation's history.
func (c *Client) GetMessages(ctx context.Context, conversationID string, page int) (models.MessagePage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(DefaultPageSize))

	var result models.MessagePage
	if err := c.do(ctx, http.MethodGet, "/support/conversations/"+url.PathEscape(conversationID)+"/messages", query, nil, &result); err != nil {
		return models.MessagePage{}, err
	}
	if result.Page == 0 {
		result.Page = page
	}
	return result, nil
}

// CloseConversation closes a conversation.
func (c *Client) CloseConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPatch, "/support/conversations/"+url.PathEscape(conversationID)+"/close", nil, nil, nil)
}

// MarkConversationRead acknowledges every message of the conversation as read.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPatch, "/support/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil, nil)
}
