package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	hub.AddClient(nil, ConnInfo{ConnID: "c1"})
	if hub.Len() != 1 {
		t.Fatalf("expected client to be registered")
	}

	hub.RemoveClient(nil)
	if hub.Len() != 0 {
		t.Fatalf("expected client to be removed")
	}
}

func TestHubBroadcastReachesClient(t *testing.T) {
	hub := NewHub()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddClient(conn, ConnInfo{ConnID: newConnID()})
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.Broadcast("unread_changed", map[string]int{"total": 3})

	var frame Frame
	client.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, client.ReadJSON(&frame))
	assert.Equal(t, "unread_changed", frame.Event)

	var payload map[string]int
	require.NoError(t, frame.Decode(&payload))
	assert.Equal(t, 3, payload["total"])
}

func TestNewFrameWithoutPayload(t *testing.T) {
	raw, err := NewFrame(EventMarkAllRead, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"mark_all_read"}`, string(raw))
}
