package models

import (
	"encoding/json"
	"strings"
	"time"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderAdmin SenderType = "admin"
	SenderUser  SenderType = "user"
	SenderGuest SenderType = "guest"
)

// MessageType distinguishes plain text from file attachments.
type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
)

// TempIDPrefix marks ids generated locally before the server confirms a message.
const TempIDPrefix = "temp_"

// Message is a support chat message as delivered by the platform.
type Message struct {
	ID              string      `json:"id"`
	ConversationID  string      `json:"conversationId"`
	SenderType      SenderType  `json:"senderType"`
	Message         string      `json:"message"`
	MessageType     MessageType `json:"messageType"`
	FileURL         string      `json:"fileUrl,omitempty"`
	FileName        string      `json:"fileName,omitempty"`
	IsRead          bool        `json:"isRead"`
	CreatedAt       time.Time   `json:"createdAt"`
	ClientMessageID string      `json:"clientMessageId,omitempty"`

	// Pending is set on optimistic messages until the server echo arrives.
	Pending        bool      `json:"pending,omitempty"`
	LocalCreatedAt time.Time `json:"-"`
}

// UnmarshalJSON decodes a message and normalizes createdAt to UTC.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		CreatedAt json.RawMessage `json:"createdAt"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	createdAt, err := decodeTimestamp(aux.CreatedAt)
	if err != nil {
		return err
	}
	m.CreatedAt = createdAt
	if m.MessageType == "" {
		m.MessageType = MessageText
	}
	return nil
}

// IsTemporary reports whether the id was generated locally.
func (m Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// Text returns the trimmed body used for reconciliation.
func (m Message) Text() string {
	return strings.TrimSpace(m.Message)
}

// MessagePage is one page of conversation history.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
	HasMore    bool      `json:"hasMore"`
}
