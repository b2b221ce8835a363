package handler

import (
	"context"

	"github.com/sanosuguru/bus-seat-reservation/internal/application"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
)

// ReservationCoordinatorInterface は予約処理のインターフェース
type ReservationCoordinatorInterface interface {
	Reserve(ctx context.Context, input application.ReserveInput) (*reservation.Transaction, error)
	Release(ctx context.Context, id string) error
}

// QueryServiceInterface は参照系サービスのインターフェース
type QueryServiceInterface interface {
	Availability(ctx context.Context) *seat.Availability
	Manifest(ctx context.Context, id string) ([]reservation.PassengerRecord, error)
	Bookings(ctx context.Context) []application.Booking
	Transactions(ctx context.Context, filter application.TransactionFilter) []*reservation.Transaction
}
