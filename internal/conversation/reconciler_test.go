package conversation_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-console/internal/conversation"
	"support-console/internal/mocks"
	"support-console/internal/models"
)

func echoOf(temp models.Message, id string, serverTime time.Time) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: temp.ConversationID,
		SenderType:     models.SenderAdmin,
		Message:        temp.Message,
		MessageType:    models.MessageText,
		IsRead:         true,
		CreatedAt:      serverTime,
	}
}

func newReconciler(t *testing.T, clk *clock) (*conversation.Store, *conversation.Reconciler, *mocks.SenderMock, *mocks.NotifierMock) {
	t.Helper()
	store := newStore(t, nil, nil, clk)
	sender := new(mocks.SenderMock)
	notifier := new(mocks.NotifierMock)
	return store, conversation.NewReconciler(store, sender, notifier), sender, notifier
}

func TestSendIsReplacedByServerEcho(t *testing.T) {
	clk := &clock{now: base.Add(10 * time.Minute)}
	store, rec, sender, _ := newReconciler(t, clk)
	store.SetActive(openConv("c1", 0))
	store.ApplyIncoming(userMsg("m1", "c1", 1))
	sender.On("SendMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool { return m.Message == "hello" })).Return(nil).Once()

	temp, err := rec.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(temp.ID, models.TempIDPrefix))
	require.Len(t, store.Messages(), 2)

	// Server clock is two minutes behind the local one; only the local window matters.
	clk.Advance(15 * time.Second)
	outcome := store.ApplyIncoming(echoOf(temp, "srv-9", base.Add(8*time.Minute)))

	assert.Equal(t, conversation.OutcomeReplaced, outcome)
	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"m1", "srv-9"}, ids(msgs))
	assert.False(t, msgs[1].Pending)
	assert.Equal(t, 1, store.Unread("c1"))
	sender.AssertExpectations(t)
}

func TestSendFailureRemovesTemporary(t *testing.T) {
	store, rec, sender, notifier := newReconciler(t, nil)
	store.SetActive(openConv("c1", 0))
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(assert.AnError).Once()
	notifier.On("NotifyError", "c1", mock.Anything).Once()

	_, err := rec.Send(context.Background(), "hello")

	assert.ErrorIs(t, err, assert.AnError)
	for _, m := range store.Messages() {
		assert.NotEqual(t, "hello", m.Message)
	}
	assert.Empty(t, store.Messages())
	notifier.AssertExpectations(t)
}

func TestEchoOutsideWindowIsAppended(t *testing.T) {
	clk := &clock{now: base}
	store, rec, sender, _ := newReconciler(t, clk)
	store.SetActive(openConv("c1", 0))
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	temp, err := rec.Send(context.Background(), "same text")
	require.NoError(t, err)

	clk.Advance(conversation.DefaultRecencyWindow + time.Second)
	outcome := store.ApplyIncoming(echoOf(temp, "srv-1", base.Add(time.Hour)))

	assert.Equal(t, conversation.OutcomeAppended, outcome)
	assert.Len(t, store.Messages(), 2)
}

func TestEchoedClientIDWinsOverContent(t *testing.T) {
	clk := &clock{now: base}
	store, rec, sender, _ := newReconciler(t, clk)
	store.SetActive(openConv("c1", 0))
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	first, err := rec.Send(context.Background(), "ok")
	require.NoError(t, err)
	second, err := rec.Send(context.Background(), "ok")
	require.NoError(t, err)

	echo := echoOf(second, "srv-2", base)
	echo.ClientMessageID = second.ClientMessageID
	require.Equal(t, conversation.OutcomeReplaced, store.ApplyIncoming(echo))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.True(t, msgs[0].Pending)
	assert.Equal(t, "srv-2", msgs[1].ID)
}

func TestIdenticalSendsReconcileInOrder(t *testing.T) {
	clk := &clock{now: base}
	store, rec, sender, _ := newReconciler(t, clk)
	store.SetActive(openConv("c1", 0))
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	first, _ := rec.Send(context.Background(), "yes")
	second, _ := rec.Send(context.Background(), "yes")

	store.ApplyIncoming(echoOf(first, "srv-a", base))
	store.ApplyIncoming(echoOf(second, "srv-b", base.Add(time.Second)))
	// Duplicate delivery of the first echo.
	store.ApplyIncoming(echoOf(first, "srv-a", base))

	assert.Equal(t, []string{"srv-a", "srv-b"}, ids(store.Messages()))
}

func TestSendValidation(t *testing.T) {
	store, rec, sender, _ := newReconciler(t, nil)
	ctx := context.Background()

	_, err := rec.Send(ctx, "   ")
	assert.ErrorIs(t, err, conversation.ErrEmptyMessage)

	_, err = rec.Send(ctx, "hi")
	assert.ErrorIs(t, err, conversation.ErrNoActiveConversation)

	store.SetActive(models.Conversation{ID: "c1", Status: models.StatusClosed})
	_, err = rec.Send(ctx, "hi")
	assert.ErrorIs(t, err, conversation.ErrConversationClosed)

	_, err = rec.SendFile(ctx, "", "doc.pdf", "")
	assert.ErrorIs(t, err, conversation.ErrMissingFile)

	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestSendFileReconcilesOnURL(t *testing.T) {
	clk := &clock{now: base}
	store, rec, sender, _ := newReconciler(t, clk)
	store.SetActive(openConv("c1", 0))
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	temp, err := rec.SendFile(context.Background(), "https://files/x.pdf", "x.pdf", "")
	require.NoError(t, err)

	echo := echoOf(temp, "srv-f", base)
	echo.MessageType = models.MessageFile
	echo.FileURL = "https://files/x.pdf"
	echo.FileName = "x.pdf"
	assert.Equal(t, conversation.OutcomeReplaced, store.ApplyIncoming(echo))
	assert.Len(t, store.Messages(), 1)
}
