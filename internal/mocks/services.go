package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"support-console/internal/models"
)

type PanelServiceMock struct {
	mock.Mock
}

func (m *PanelServiceMock) Snapshot() models.PanelSnapshot {
	args := m.Called()
	return args.Get(0).(models.PanelSnapshot)
}

func (m *PanelServiceMock) Refresh(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *PanelServiceMock) Open(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *PanelServiceMock) Leave() {
	m.Called()
}

func (m *PanelServiceMock) LoadOlder(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *PanelServiceMock) Send(ctx context.Context, text string) (models.Message, error) {
	args := m.Called(ctx, text)
	var result models.Message
	if val := args.Get(0); val != nil {
		result = val.(models.Message)
	}
	return result, args.Error(1)
}

func (m *PanelServiceMock) SendFile(ctx context.Context, fileURL, fileName, caption string) (models.Message, error) {
	args := m.Called(ctx, fileURL, fileName, caption)
	var result models.Message
	if val := args.Get(0); val != nil {
		result = val.(models.Message)
	}
	return result, args.Error(1)
}

func (m *PanelServiceMock) MarkRead(messageIDs []string) int {
	args := m.Called(messageIDs)
	return args.Int(0)
}

func (m *PanelServiceMock) Typing(on bool) error {
	args := m.Called(on)
	return args.Error(0)
}

func (m *PanelServiceMock) Close(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type InboxMock struct {
	mock.Mock
}

func (m *InboxMock) List() []models.Notification {
	args := m.Called()
	var result []models.Notification
	if val := args.Get(0); val != nil {
		result = val.([]models.Notification)
	}
	return result
}

func (m *InboxMock) Unread() int {
	args := m.Called()
	return args.Int(0)
}

func (m *InboxMock) MarkRead(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *InboxMock) MarkAllRead() error {
	args := m.Called()
	return args.Error(0)
}

type PayoutServiceMock struct {
	mock.Mock
}

func (m *PayoutServiceMock) List(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error) {
	args := m.Called(ctx, status)
	var result []models.Payout
	if val := args.Get(0); val != nil {
		result = val.([]models.Payout)
	}
	return result, args.Error(1)
}

func (m *PayoutServiceMock) Process(ctx context.Context, payoutID string) (models.PayoutResult, error) {
	args := m.Called(ctx, payoutID)
	var result models.PayoutResult
	if val := args.Get(0); val != nil {
		result = val.(models.PayoutResult)
	}
	return result, args.Error(1)
}

func (m *PayoutServiceMock) Reject(ctx context.Context, payoutID, reason string) (models.Payout, error) {
	args := m.Called(ctx, payoutID, reason)
	var result models.Payout
	if val := args.Get(0); val != nil {
		result = val.(models.Payout)
	}
	return result, args.Error(1)
}

func (m *PayoutServiceMock) ManualComplete(ctx context.Context, payoutID, reference string) (models.Payout, error) {
	args := m.Called(ctx, payoutID, reference)
	var result models.Payout
	if val := args.Get(0); val != nil {
		result = val.(models.Payout)
	}
	return result, args.Error(1)
}

type ActionRepositoryMock struct {
	mock.Mock
}

func (m *ActionRepositoryMock) Record(ctx context.Context, action models.AdminAction) (models.AdminAction, error) {
	args := m.Called(ctx, action)
	var result models.AdminAction
	if val := args.Get(0); val != nil {
		result = val.(models.AdminAction)
	}
	return result, args.Error(1)
}

func (m *ActionRepositoryMock) ListRecent(ctx context.Context, limit int) ([]models.AdminAction, error) {
	args := m.Called(ctx, limit)
	var result []models.AdminAction
	if val := args.Get(0); val != nil {
		result = val.([]models.AdminAction)
	}
	return result, args.Error(1)
}

func (m *ActionRepositoryMock) ListForTarget(ctx context.Context, targetType, targetID string) ([]models.AdminAction, error) {
	args := m.Called(ctx, targetType, targetID)
	var result []models.AdminAction
	if val := args.Get(0); val != nil {
		result = val.([]models.AdminAction)
	}
	return result, args.Error(1)
}

// AuditPublisherMock stands in for the audit exchange.
type AuditPublisherMock struct {
	mock.Mock
}

func (m *AuditPublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *AuditPublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Published returns the events handed to Publish, in call order.
func (m *AuditPublisherMock) Published() []any {
	var events []any
	for _, call := range m.Calls {
		if call.Method == "Publish" {
			events = append(events, call.Arguments.Get(2))
		}
	}
	return events
}
