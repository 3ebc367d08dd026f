package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-console/internal/models"
	"support-console/internal/ws"
)

type fakeSocket struct {
	mu        sync.Mutex
	connected bool
	events    []string
	payloads  []interface{}
}

func (s *fakeSocket) Emit(event string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ws.ErrNotConnected
	}
	s.events = append(s.events, event)
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func note(id string, minute int) models.Notification {
	return models.Notification{ID: id, Type: "payout", Title: "Payout", Message: "needs review", CreatedAt: base.Add(time.Duration(minute) * time.Minute)}
}

func pushFrame(t *testing.T, event string, payload interface{}) ws.Frame {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return ws.Frame{Event: event, Data: data}
}

func TestInboxDeduplicatesAndOrdersNewestFirst(t *testing.T) {
	inbox := NewInbox(&fakeSocket{connected: true})

	assert.True(t, inbox.Add(note("n1", 1)))
	assert.True(t, inbox.Add(note("n2", 2)))
	assert.False(t, inbox.Add(note("n1", 1)))
	inbox.HandleFrame(pushFrame(t, ws.EventNotification, note("n2", 2)))

	list := inbox.List()
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].ID)
	assert.Equal(t, "n1", list[1].ID)
	assert.Equal(t, 2, inbox.Unread())
}

func TestInboxKeepsNewestHundred(t *testing.T) {
	inbox := NewInbox(&fakeSocket{connected: true})
	for k := 0; k < MaxNotifications+5; k++ {
		inbox.Add(note(fmt.Sprintf("n%d", k), k))
	}

	list := inbox.List()
	require.Len(t, list, MaxNotifications)
	assert.Equal(t, fmt.Sprintf("n%d", MaxNotifications+4), list[0].ID)
	assert.Equal(t, "n5", list[len(list)-1].ID)
}

func TestInboxServerCountIsAuthoritative(t *testing.T) {
	inbox := NewInbox(&fakeSocket{connected: true})
	inbox.Add(note("n1", 1))

	inbox.HandleFrame(ws.Frame{Event: ws.EventUnreadCount, Data: json.RawMessage(`{"count":12}`)})
	assert.Equal(t, 12, inbox.Unread())

	inbox.HandleFrame(ws.Frame{Event: ws.EventUnreadCount, Data: json.RawMessage(`{"unreadCount":4}`)})
	assert.Equal(t, 4, inbox.Unread())

	inbox.HandleFrame(ws.Frame{Event: ws.EventUnreadCount, Data: json.RawMessage(`{}`)})
	assert.Equal(t, 4, inbox.Unread())
}

func TestInboxMarkRead(t *testing.T) {
	socket := &fakeSocket{connected: true}
	inbox := NewInbox(socket)
	inbox.Add(note("n1", 1))
	inbox.Add(note("n2", 2))

	changes := 0
	inbox.Subscribe(func() { changes++ })

	require.NoError(t, inbox.MarkRead("n1"))
	assert.Equal(t, 1, inbox.Unread())
	assert.Equal(t, []string{ws.EventMarkRead}, socket.events)
	assert.Equal(t, idPayload{ID: "n1"}, socket.payloads[0])
	assert.Equal(t, 1, changes)

	// Already read: acknowledged again but the count does not move.
	require.NoError(t, inbox.MarkRead("n1"))
	assert.Equal(t, 1, inbox.Unread())

	require.ErrorIs(t, inbox.MarkRead("missing"), ErrUnknownNotification)
}

func TestInboxMarkReadOfflineKeepsState(t *testing.T) {
	socket := &fakeSocket{}
	inbox := NewInbox(socket)
	inbox.Add(note("n1", 1))

	require.ErrorIs(t, inbox.MarkRead("n1"), ws.ErrNotConnected)
	assert.Equal(t, 1, inbox.Unread())
	assert.False(t, inbox.List()[0].IsRead)

	require.ErrorIs(t, inbox.MarkAllRead(), ws.ErrNotConnected)
	assert.Equal(t, 1, inbox.Unread())
}

func TestInboxMarkAllReadAndResync(t *testing.T) {
	socket := &fakeSocket{connected: true}
	inbox := NewInbox(socket)
	inbox.Add(note("n1", 1))
	inbox.Add(note("n2", 2))

	require.NoError(t, inbox.MarkAllRead())
	assert.Equal(t, 0, inbox.Unread())
	for _, n := range inbox.List() {
		assert.True(t, n.IsRead)
	}

	inbox.Resync(context.Background())
	assert.Equal(t, []string{ws.EventMarkAllRead, ws.EventGetUnreadCount}, socket.events)
}

func TestInboxDoesNotCountTrimmedNotification(t *testing.T) {
	inbox := NewInbox(&fakeSocket{connected: true})
	for k := 0; k < MaxNotifications; k++ {
		inbox.Add(note(fmt.Sprintf("n%d", k), k+10))
	}
	require.Equal(t, MaxNotifications, inbox.Unread())

	// Older than everything kept: trimmed on arrival.
	assert.False(t, inbox.Add(note("stale", 0)))
	assert.Equal(t, MaxNotifications, inbox.Unread())
	for _, n := range inbox.List() {
		assert.NotEqual(t, "stale", n.ID)
	}

	// A newer one evicts the oldest and is counted.
	assert.True(t, inbox.Add(note("fresh", MaxNotifications+20)))
	assert.Equal(t, MaxNotifications+1, inbox.Unread())
	assert.Equal(t, "fresh", inbox.List()[0].ID)
}
