package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"support-console/internal/models"
)

type AdminAPIMock struct {
	mock.Mock
}

func (m *AdminAPIMock) ListPayouts(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error) {
	args := m.Called(ctx, status)
	var result []models.Payout
	if val := args.Get(0); val != nil {
		result = val.([]models.Payout)
	}
	return result, args.Error(1)
}

func (m *AdminAPIMock) GetPayout(ctx context.Context, payoutID string) (models.Payout, error) {
	args := m.Called(ctx, payoutID)
	var result models.Payout
	if val := args.Get(0); val != nil {
		result = val.(models.Payout)
	}
	return result, args.Error(1)
}

func (m *AdminAPIMock) ProcessPayout(ctx context.Context, payoutID string) (models.Payout, error) {
	args := m.Called(ctx, payoutID)
	var result models.Payout
	if val := args.Get(0); val != nil {
		result = val.(models.Payout)
	}
	return result, args.Error(1)
}

func (m *AdminAPIMock) RejectPayout(ctx context.Context, payoutID, reason string) (models.Payout, error) {
	args := m.Called(ctx, payoutID, reason)
	var result models.Payout
	if val := args.Get(0); val != nil {
		result = val.(models.Payout)
	}
	return result, args.Error(1)
}

func (m *AdminAPIMock) CompletePayoutManually(ctx context.Context, payoutID, reference string) (models.Payout, error) {
	args := m.Called(ctx, payoutID, reference)
	var result models.Payout
	if val := args.Get(0); val != nil {
		result = val.(models.Payout)
	}
	return result, args.Error(1)
}
