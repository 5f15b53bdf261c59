package mocks

import (
	"context"

	"cinema-checkout/internal/model"

	"github.com/stretchr/testify/mock"
)

type OrderHistoryServiceMock struct {
	mock.Mock
}

func NewOrderHistoryServiceMock() *OrderHistoryServiceMock {
	return &OrderHistoryServiceMock{}
}

func (m *OrderHistoryServiceMock) Record(ctx context.Context, event *model.OrderConfirmedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *OrderHistoryServiceMock) History(ctx context.Context, userID string) ([]*model.OrderHistoryEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OrderHistoryEntry), args.Error(1)
}
