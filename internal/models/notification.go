package models

import (
	"encoding/json"
	"time"
)

// Notification is a push notification from the notification namespace.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// UnmarshalJSON decodes a notification and normalizes createdAt to UTC.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type alias Notification
	aux := struct {
		*alias
		CreatedAt json.RawMessage `json:"createdAt"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	at, err := decodeTimestamp(aux.CreatedAt)
	if err != nil {
		return err
	}
	n.CreatedAt = at
	return nil
}
