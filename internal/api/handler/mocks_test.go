package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/bus-seat-reservation/internal/application"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
)

// MockCoordinator はReservationCoordinatorInterfaceのモック
type MockCoordinator struct {
	mock.Mock
}

func (m *MockCoordinator) Reserve(ctx context.Context, input application.ReserveInput) (*reservation.Transaction, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Transaction), args.Error(1)
}

func (m *MockCoordinator) Release(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockQueryService はQueryServiceInterfaceのモック
type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Availability(ctx context.Context) *seat.Availability {
	args := m.Called(ctx)
	return args.Get(0).(*seat.Availability)
}

func (m *MockQueryService) Manifest(ctx context.Context, id string) ([]reservation.PassengerRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reservation.PassengerRecord), args.Error(1)
}

func (m *MockQueryService) Bookings(ctx context.Context) []application.Booking {
	args := m.Called(ctx)
	return args.Get(0).([]application.Booking)
}

func (m *MockQueryService) Transactions(ctx context.Context, filter application.TransactionFilter) []*reservation.Transaction {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*reservation.Transaction)
}
