package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"support-console/internal/models"
)

type HistoryFetcherMock struct {
	mock.Mock
}

func (m *HistoryFetcherMock) GetMessages(ctx context.Context, conversationID string, page int) (models.MessagePage, error) {
	args := m.Called(ctx, conversationID, page)
	var result models.MessagePage
	if val := args.Get(0); val != nil {
		result = val.(models.MessagePage)
	}
	return result, args.Error(1)
}

type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) SendMessage(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) NotifyError(conversationID string, err error) {
	m.Called(conversationID, err)
}

type ConversationAPIMock struct {
	mock.Mock
}

func (m *ConversationAPIMock) ListConversations(ctx context.Context, status models.ConversationStatus) ([]models.Conversation, error) {
	args := m.Called(ctx, status)
	var result []models.Conversation
	if val := args.Get(0); val != nil {
		result = val.([]models.Conversation)
	}
	return result, args.Error(1)
}

func (m *ConversationAPIMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var result models.Conversation
	if val := args.Get(0); val != nil {
		result = val.(models.Conversation)
	}
	return result, args.Error(1)
}

func (m *ConversationAPIMock) GetMessages(ctx context.Context, conversationID string, page int) (models.MessagePage, error) {
	args := m.Called(ctx, conversationID, page)
	var result models.MessagePage
	if val := args.Get(0); val != nil {
		result = val.(models.MessagePage)
	}
	return result, args.Error(1)
}

func (m *ConversationAPIMock) CloseConversation(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *ConversationAPIMock) MarkConversationRead(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type RecorderMock struct {
	mock.Mock
}

func (m *RecorderMock) Record(ctx context.Context, action, targetType, targetID, detail string) {
	m.Called(ctx, action, targetType, targetID, detail)
}
