package ws

import (
	"encoding/json"
	"errors"
)

// Outbound chat events.
const (
	EventSendMessage       = "sendMessage"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventStartTyping       = "startTyping"
	EventStopTyping        = "stopTyping"
	EventMarkMessageRead   = "markMessageRead"
)

// Inbound chat events.
const (
	EventMessageReceived        = "message_received"
	EventConversationNewMessage = "conversation_new_message"
	EventTypingStart            = "typing_start"
	EventTypingStop             = "typing_stop"
	EventUnreadCountUpdated     = "unread_count_updated"
	EventError                  = "error"
)

// Notification namespace events.
const (
	EventNotification   = "notification"
	EventUnreadCount    = "unread_count"
	EventMarkRead       = "mark_read"
	EventMarkAllRead    = "mark_all_read"
	EventGetUnreadCount = "get_unread_count"
)

// ErrNotConnected is returned by Emit while the socket is down. Nothing is buffered.
var ErrNotConnected = errors.New("socket not connected")

// Frame is the JSON envelope exchanged over platform sockets.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes an event with its payload.
func NewFrame(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v interface{}) error {
	if len(f.Data) == 0 {
		return errors.New("empty payload for " + f.Event)
	}
	return json.Unmarshal(f.Data, v)
}
