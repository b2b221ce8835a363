package application

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/transaction"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/trip"
)

// MockLedgerRepository implements reservation.Repository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Create(ctx context.Context, t *reservation.Transaction) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockLedgerRepository) Commit(ctx context.Context, t *reservation.Transaction) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockLedgerRepository) Abort(ctx context.Context, t *reservation.Transaction) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockLedgerRepository) Status(ctx context.Context, id string) (reservation.Status, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(reservation.Status), args.Error(1)
}

func (m *MockLedgerRepository) List(ctx context.Context) ([]*reservation.Transaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Transaction), args.Error(1)
}

// MockEventPublisher implements EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishCommitted(ctx context.Context, tx *reservation.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

// MockAvailabilityCache implements AvailabilityCache
type MockAvailabilityCache struct {
	mock.Mock
}

func (m *MockAvailabilityCache) Get(ctx context.Context, tripID string, version uint64) (*seat.Availability, error) {
	args := m.Called(ctx, tripID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seat.Availability), args.Error(1)
}

func (m *MockAvailabilityCache) Set(ctx context.Context, a *seat.Availability) error {
	return m.Called(ctx, a).Error(0)
}

// MockTripRepository implements trip.Repository
type MockTripRepository struct {
	mock.Mock
}

func (m *MockTripRepository) Upsert(ctx context.Context, t *trip.Trip) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.Trip), args.Error(1)
}

// MockSeatRepository implements seat.Repository
type MockSeatRepository struct {
	mock.Mock
}

func (m *MockSeatRepository) CreateBulk(ctx context.Context, tripID string, seats []*seat.Seat) error {
	return m.Called(ctx, tripID, seats).Error(0)
}

func (m *MockSeatRepository) CountByTrip(ctx context.Context, tripID string) (int, error) {
	args := m.Called(ctx, tripID)
	return args.Int(0), args.Error(1)
}

func (m *MockSeatRepository) GetByTrip(ctx context.Context, tripID string) ([]*seat.Seat, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*seat.Seat), args.Error(1)
}

func (m *MockSeatRepository) BookSeats(ctx context.Context, tx transaction.Tx, tripID string, numbers []int, txID string) error {
	return m.Called(ctx, tx, tripID, numbers, txID).Error(0)
}
