package models

import (
	"encoding/json"
	"time"
)

// ConversationStatus is the lifecycle state of a support conversation.
type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusClosed   ConversationStatus = "closed"
	StatusResolved ConversationStatus = "resolved"
)

// Priority ranks conversations in the admin queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Conversation is a support conversation between an admin and a user or guest.
type Conversation struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId,omitempty"`
	GuestID       string             `json:"guestId,omitempty"`
	Subject       string             `json:"subject,omitempty"`
	Status        ConversationStatus `json:"status"`
	Priority      Priority           `json:"priority"`
	UnreadCount   int                `json:"unreadCount"`
	LastMessage   string             `json:"lastMessage,omitempty"`
	LastMessageAt time.Time          `json:"lastMessageAt"`
}

// UnmarshalJSON decodes a conversation and normalizes lastMessageAt to UTC.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	type alias Conversation
	aux := struct {
		*alias
		LastMessageAt json.RawMessage `json:"lastMessageAt"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	at, err := decodeTimestamp(aux.LastMessageAt)
	if err != nil {
		return err
	}
	c.LastMessageAt = at
	return nil
}

// IsOpen reports whether the conversation still accepts messages.
func (c Conversation) IsOpen() bool {
	return c.Status == StatusOpen
}

// UnreadUpdate is pushed by the server with the authoritative unread count.
type UnreadUpdate struct {
	ConversationID string `json:"conversationId"`
	UnreadCount    int    `json:"unreadCount"`
}

// TypingUpdate reports typing activity in a conversation.
type TypingUpdate struct {
	ConversationID string     `json:"conversationId"`
	SenderType     SenderType `json:"senderType"`
	UserID         string     `json:"userId,omitempty"`
}

// ConversationNotice is the cross-conversation new message notice.
type ConversationNotice struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
	UnreadCount    *int    `json:"unreadCount,omitempty"`
}

// PanelSnapshot is everything the UI needs to render the chat panel.
type PanelSnapshot struct {
	Connected            bool           `json:"connected"`
	ActiveConversationID string         `json:"activeConversationId,omitempty"`
	ActiveConversation   *Conversation  `json:"activeConversation,omitempty"`
	Messages             []Message      `json:"messages"`
	HasMore              bool           `json:"hasMore"`
	Typing               bool           `json:"typing"`
	Conversations        []Conversation `json:"conversations"`
	TotalUnread          int            `json:"totalUnread"`
}
