package panel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-console/internal/conversation"
	"support-console/internal/mocks"
	"support-console/internal/models"
	"support-console/internal/telemetry"
	"support-console/internal/ws"
)

type emitted struct {
	event   string
	payload interface{}
}

type fakeSocket struct {
	mu        sync.Mutex
	connected bool
	frames    []emitted
}

func (s *fakeSocket) Emit(event string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ws.ErrNotConnected
	}
	s.frames = append(s.frames, emitted{event: event, payload: payload})
	return nil
}

func (s *fakeSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSocket) setConnected(on bool) {
	s.mu.Lock()
	s.connected = on
	s.mu.Unlock()
}

func (s *fakeSocket) events(name string) []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []emitted
	for _, f := range s.frames {
		if f.event == name {
			out = append(out, f)
		}
	}
	return out
}

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func userMsg(id, conv string, minute int) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conv,
		SenderType:     models.SenderUser,
		Message:        "msg " + id,
		MessageType:    models.MessageText,
		CreatedAt:      base.Add(time.Duration(minute) * time.Minute),
	}
}

func openConv(id string, unread int) models.Conversation {
	return models.Conversation{ID: id, Status: models.StatusOpen, Priority: models.PriorityNormal, UnreadCount: unread}
}

func frame(t *testing.T, event string, payload interface{}) ws.Frame {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return ws.Frame{Event: event, Data: data}
}

func newTestPanel(t *testing.T) (*Panel, *mocks.ConversationAPIMock, *fakeSocket, *mocks.RecorderMock) {
	t.Helper()
	api := new(mocks.ConversationAPIMock)
	socket := &fakeSocket{connected: true}
	recorder := new(mocks.RecorderMock)
	p := New(api, socket, recorder, Options{
		Store:          conversation.Options{ReadFlushDelay: 5 * time.Millisecond},
		TypingInterval: time.Hour,
	})
	t.Cleanup(p.Shutdown)
	return p, api, socket, recorder
}

func TestOpenJoinsLoadsAndMarksRead(t *testing.T) {
	p, api, socket, _ := newTestPanel(t)
	ctx := context.Background()

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 3), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{
		Messages: []models.Message{userMsg("m1", "c1", 1), userMsg("m2", "c1", 2), userMsg("m3", "c1", 3)},
		Page:     1, TotalPages: 1,
	}, nil).Once()

	require.NoError(t, p.Open(ctx, "c1"))

	assert.Equal(t, "c1", p.Store().Active())
	assert.Equal(t, 0, p.Store().Unread("c1"))
	require.Len(t, socket.events(ws.EventJoinConversation), 1)
	for _, m := range p.Store().Messages() {
		assert.True(t, m.IsRead, m.ID)
	}

	require.Eventually(t, func() bool {
		return len(socket.events(ws.EventMarkMessageRead)) == 1
	}, time.Second, 5*time.Millisecond)
	ack := socket.events(ws.EventMarkMessageRead)[0].payload.(readPayload)
	assert.Equal(t, "c1", ack.ConversationID)
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, ack.MessageIDs)

	// A fourth message arriving before the server confirms counts once.
	p.HandleFrame(frame(t, ws.EventMessageReceived, userMsg("m4", "c1", 4)))
	p.HandleFrame(frame(t, ws.EventConversationNewMessage, models.ConversationNotice{ConversationID: "c1", Message: userMsg("m4", "c1", 4)}))
	assert.Equal(t, 1, p.Store().Unread("c1"))
	assert.Len(t, p.Store().Messages(), 4)
	api.AssertExpectations(t)
}

func TestOpenLeavesPreviousRoom(t *testing.T) {
	p, api, socket, _ := newTestPanel(t)
	ctx := context.Background()

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil)
	api.On("GetConversation", mock.Anything, "c2").Return(openConv("c2", 0), nil)
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Messages: []models.Message{userMsg("m1", "c1", 1)}, Page: 1, TotalPages: 1}, nil)
	api.On("GetMessages", mock.Anything, "c2", 1).Return(models.MessagePage{Page: 1, TotalPages: 1}, nil)

	require.NoError(t, p.Open(ctx, "c1"))
	require.NoError(t, p.Open(ctx, "c2"))
	require.NoError(t, p.Open(ctx, "c1"))

	leaves := socket.events(ws.EventLeaveConversation)
	require.Len(t, leaves, 2)
	assert.Equal(t, roomPayload{ConversationID: "c1"}, leaves[0].payload)
	assert.Equal(t, roomPayload{ConversationID: "c2"}, leaves[1].payload)
	assert.Len(t, p.Store().Messages(), 1)
}

func TestOpenPropagatesAPIError(t *testing.T) {
	p, api, socket, _ := newTestPanel(t)

	api.On("GetConversation", mock.Anything, "c1").Return(nil, assert.AnError).Once()

	err := p.Open(context.Background(), "c1")
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, p.Store().Active())
	assert.Empty(t, socket.events(ws.EventJoinConversation))
}

func TestHandleFrameDispatch(t *testing.T) {
	p, api, _, _ := newTestPanel(t)
	ctx := context.Background()

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Page: 1, TotalPages: 1}, nil).Once()
	require.NoError(t, p.Open(ctx, "c1"))
	p.Store().SetConversations([]models.Conversation{openConv("c1", 0), openConv("c2", 2)})

	var toasts []Toast
	p.OnToast(func(tt Toast) { toasts = append(toasts, tt) })

	p.HandleFrame(frame(t, ws.EventMessageReceived, userMsg("m1", "c1", 1)))
	assert.Len(t, p.Store().Messages(), 1)

	five := 5
	p.HandleFrame(frame(t, ws.EventConversationNewMessage, models.ConversationNotice{ConversationID: "c2", Message: userMsg("x1", "", 2), UnreadCount: &five}))
	assert.Equal(t, 5, p.Store().Unread("c2"))
	assert.Len(t, p.Store().Messages(), 1)

	p.HandleFrame(frame(t, ws.EventTypingStart, models.TypingUpdate{ConversationID: "c1", SenderType: models.SenderAdmin}))
	assert.False(t, p.Store().Typing())
	p.HandleFrame(frame(t, ws.EventTypingStart, models.TypingUpdate{ConversationID: "c1", SenderType: models.SenderUser}))
	assert.True(t, p.Store().Typing())
	p.HandleFrame(frame(t, ws.EventTypingStop, models.TypingUpdate{ConversationID: "c1", SenderType: models.SenderUser}))
	assert.False(t, p.Store().Typing())

	p.HandleFrame(frame(t, ws.EventUnreadCountUpdated, models.UnreadUpdate{ConversationID: "c2", UnreadCount: 7}))
	assert.Equal(t, 7, p.Store().Unread("c2"))

	p.HandleFrame(frame(t, ws.EventError, errorPayload{Message: "rate limited"}))
	require.Len(t, toasts, 1)
	assert.Equal(t, "rate limited", toasts[0].Message)

	p.HandleFrame(ws.Frame{Event: ws.EventMessageReceived, Data: json.RawMessage(`{"id":`)})
	assert.Len(t, p.Store().Messages(), 1)
}

func TestSendEmitsClientMessageID(t *testing.T) {
	p, api, socket, _ := newTestPanel(t)

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Page: 1, TotalPages: 1}, nil).Once()
	require.NoError(t, p.Open(context.Background(), "c1"))

	temp, err := p.Send(context.Background(), "hello")
	require.NoError(t, err)

	sends := socket.events(ws.EventSendMessage)
	require.Len(t, sends, 1)
	payload := sends[0].payload.(sendPayload)
	assert.Equal(t, "c1", payload.ConversationID)
	assert.Equal(t, "hello", payload.Message)
	assert.Equal(t, temp.ClientMessageID, payload.ClientMessageID)
	assert.NotEmpty(t, payload.ClientMessageID)

	echo := models.Message{ID: "srv-1", ConversationID: "c1", SenderType: models.SenderAdmin, Message: "hello", MessageType: models.MessageText, CreatedAt: time.Now().UTC(), ClientMessageID: payload.ClientMessageID}
	p.HandleFrame(frame(t, ws.EventMessageReceived, echo))
	msgs := p.Store().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.False(t, msgs[0].Pending)
}

func TestSendWhileOfflineToastsAndRollsBack(t *testing.T) {
	p, api, socket, _ := newTestPanel(t)

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Page: 1, TotalPages: 1}, nil).Once()
	require.NoError(t, p.Open(context.Background(), "c1"))

	var toasts []Toast
	p.OnToast(func(tt Toast) { toasts = append(toasts, tt) })
	socket.setConnected(false)

	_, err := p.Send(context.Background(), "hello")
	require.ErrorIs(t, err, ws.ErrNotConnected)
	assert.Empty(t, p.Store().Messages())
	require.Len(t, toasts, 1)
	assert.Equal(t, "c1", toasts[0].ConversationID)
	assert.Contains(t, toasts[0].Message, "offline")
}

func TestAcknowledgeFallsBackToREST(t *testing.T) {
	p, api, socket, _ := newTestPanel(t)
	socket.setConnected(false)

	api.On("MarkConversationRead", mock.Anything, "c1").Return(nil).Once()

	require.NoError(t, p.AcknowledgeRead("c1", []string{"m1"}))
	api.AssertExpectations(t)
}

func TestTypingIsThrottled(t *testing.T) {
	p, api, socket, _ := newTestPanel(t)

	require.ErrorIs(t, p.Typing(true), conversation.ErrNoActiveConversation)

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Page: 1, TotalPages: 1}, nil).Once()
	require.NoError(t, p.Open(context.Background(), "c1"))

	require.NoError(t, p.Typing(true))
	require.NoError(t, p.Typing(true))
	require.NoError(t, p.Typing(false))
	require.NoError(t, p.Typing(false))

	assert.Len(t, socket.events(ws.EventStartTyping), 1)
	assert.Len(t, socket.events(ws.EventStopTyping), 2)
}

func TestCloseJournalsAndBlocksSends(t *testing.T) {
	p, api, _, recorder := newTestPanel(t)
	ctx := context.Background()

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Page: 1, TotalPages: 1}, nil).Once()
	api.On("CloseConversation", mock.Anything, "c1").Return(nil).Once()
	recorder.On("Record", mock.Anything, telemetry.ActionConversationClosed, telemetry.TargetConversation, "c1", "").Once()

	require.NoError(t, p.Open(ctx, "c1"))
	require.NoError(t, p.Close(ctx, "c1"))

	_, err := p.Send(ctx, "hello")
	require.ErrorIs(t, err, conversation.ErrConversationClosed)
	api.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestCloseFailureIsNotJournaled(t *testing.T) {
	p, api, _, recorder := newTestPanel(t)

	api.On("CloseConversation", mock.Anything, "c1").Return(assert.AnError).Once()

	require.ErrorIs(t, p.Close(context.Background(), "c1"), assert.AnError)
	recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResyncRefetchesWithoutDuplicates(t *testing.T) {
	p, api, socket, _ := newTestPanel(t)
	ctx := context.Background()

	page := models.MessagePage{Messages: []models.Message{userMsg("m1", "c1", 1), userMsg("m2", "c1", 2)}, Page: 1, TotalPages: 1}
	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(page, nil).Once()
	require.NoError(t, p.Open(ctx, "c1"))

	// m3 was delivered live just before the drop; m4 arrived while offline.
	p.HandleFrame(frame(t, ws.EventMessageReceived, userMsg("m3", "c1", 3)))
	socket.setConnected(false)

	missed := models.MessagePage{Messages: []models.Message{userMsg("m1", "c1", 1), userMsg("m2", "c1", 2), userMsg("m3", "c1", 3), userMsg("m4", "c1", 4)}, Page: 1, TotalPages: 1}
	api.On("ListConversations", mock.Anything, models.ConversationStatus("")).Return([]models.Conversation{openConv("c1", 1)}, nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(missed, nil).Once()

	socket.setConnected(true)
	p.Resync(ctx)

	ids := make([]string, 0, 4)
	for _, m := range p.Store().Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids)
	assert.Len(t, socket.events(ws.EventJoinConversation), 2)
	api.AssertExpectations(t)
}

func TestLoadOlder(t *testing.T) {
	p, api, _, _ := newTestPanel(t)
	ctx := context.Background()

	require.ErrorIs(t, p.LoadOlder(ctx), conversation.ErrNoActiveConversation)

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Messages: []models.Message{userMsg("m3", "c1", 3)}, Page: 1, TotalPages: 2, HasMore: true}, nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 2).Return(models.MessagePage{Messages: []models.Message{userMsg("m1", "c1", 1)}, Page: 2, TotalPages: 2}, nil).Once()

	require.NoError(t, p.Open(ctx, "c1"))
	require.NoError(t, p.LoadOlder(ctx))
	require.ErrorIs(t, p.LoadOlder(ctx), ErrNoMoreHistory)

	msgs := p.Store().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestSnapshot(t *testing.T) {
	p, api, _, _ := newTestPanel(t)

	snap := p.Snapshot()
	assert.True(t, snap.Connected)
	assert.Empty(t, snap.ActiveConversationID)
	assert.NotNil(t, snap.Messages)

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Messages: []models.Message{userMsg("m1", "c1", 1)}, Page: 1, TotalPages: 1}, nil).Once()
	require.NoError(t, p.Open(context.Background(), "c1"))

	snap = p.Snapshot()
	assert.Equal(t, "c1", snap.ActiveConversationID)
	require.NotNil(t, snap.ActiveConversation)
	assert.Len(t, snap.Messages, 1)
	assert.False(t, snap.HasMore)
	require.Len(t, snap.Conversations, 1)
}

func TestServerCountsDoNotOverrideOpenConversation(t *testing.T) {
	p, api, _, _ := newTestPanel(t)
	ctx := context.Background()

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 3), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{
		Messages: []models.Message{userMsg("m1", "c1", 1), userMsg("m2", "c1", 2), userMsg("m3", "c1", 3)},
		Page:     1, TotalPages: 1,
	}, nil).Once()
	require.NoError(t, p.Open(ctx, "c1"))
	require.Equal(t, 0, p.Store().Unread("c1"))

	p.HandleFrame(frame(t, ws.EventMessageReceived, userMsg("m4", "c1", 4)))
	require.Equal(t, 1, p.Store().Unread("c1"))

	// Computed by the server before it processed the read acknowledgement.
	p.HandleFrame(frame(t, ws.EventUnreadCountUpdated, models.UnreadUpdate{ConversationID: "c1", UnreadCount: 4}))
	assert.Equal(t, 1, p.Store().Unread("c1"))

	four := 4
	p.HandleFrame(frame(t, ws.EventConversationNewMessage, models.ConversationNotice{ConversationID: "c1", Message: userMsg("m4", "c1", 4), UnreadCount: &four}))
	assert.Equal(t, 1, p.Store().Unread("c1"))

	api.On("ListConversations", mock.Anything, models.ConversationStatus("")).Return([]models.Conversation{openConv("c1", 4), openConv("c2", 2)}, nil).Once()
	require.NoError(t, p.Refresh(ctx))
	assert.Equal(t, 1, p.Store().Unread("c1"))
	assert.Equal(t, 2, p.Store().Unread("c2"))

	// Once the panel moves on, the server count is taken again.
	p.Leave()
	p.HandleFrame(frame(t, ws.EventUnreadCountUpdated, models.UnreadUpdate{ConversationID: "c1", UnreadCount: 1}))
	assert.Equal(t, 1, p.Store().Unread("c1"))
	p.HandleFrame(frame(t, ws.EventUnreadCountUpdated, models.UnreadUpdate{ConversationID: "c1", UnreadCount: 0}))
	assert.Equal(t, 0, p.Store().Unread("c1"))
	api.AssertExpectations(t)
}

func TestRefreshKeepsOpenConversationUsable(t *testing.T) {
	p, api, _, _ := newTestPanel(t)
	ctx := context.Background()

	api.On("GetConversation", mock.Anything, "c1").Return(openConv("c1", 0), nil).Once()
	api.On("GetMessages", mock.Anything, "c1", 1).Return(models.MessagePage{Page: 1, TotalPages: 1}, nil).Once()
	api.On("ListConversations", mock.Anything, models.ConversationStatus("")).Return([]models.Conversation{openConv("c2", 1)}, nil).Once()

	require.NoError(t, p.Open(ctx, "c1"))
	require.NoError(t, p.Refresh(ctx))

	_, err := p.Send(ctx, "still here")
	require.NoError(t, err)
}

func TestUnknownConversationIsLookedUpOnce(t *testing.T) {
	p, api, _, _ := newTestPanel(t)

	release := make(chan struct{})
	api.On("GetConversation", mock.Anything, "c9").Run(func(mock.Arguments) { <-release }).Return(openConv("c9", 0), nil).Once()

	p.HandleFrame(frame(t, ws.EventMessageReceived, userMsg("x1", "c9", 1)))
	p.HandleFrame(frame(t, ws.EventMessageReceived, userMsg("x2", "c9", 2)))
	p.HandleFrame(frame(t, ws.EventConversationNewMessage, models.ConversationNotice{ConversationID: "c9", Message: userMsg("x3", "c9", 3)}))
	close(release)

	require.Eventually(t, func() bool {
		_, known := p.Store().Conversation("c9")
		return known
	}, time.Second, 5*time.Millisecond)

	p.HandleFrame(frame(t, ws.EventMessageReceived, userMsg("x4", "c9", 4)))
	assert.Equal(t, 4, p.Store().Unread("c9"))
	api.AssertNumberOfCalls(t, "GetConversation", 1)
	api.AssertNotCalled(t, "ListConversations", mock.Anything, mock.Anything)
}
