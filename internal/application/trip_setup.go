package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/trip"
	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/logger"
)

// TripSetup は起動時に運行と座席を永続化先に用意する
type TripSetup struct {
	trips trip.Repository
	seats seat.Repository
}

func NewTripSetup(trips trip.Repository, seats seat.Repository) *TripSetup {
	return &TripSetup{trips: trips, seats: seats}
}

// Ensure は運行を登録し、座席がなければ全席空席で作成する
// 登録済みの座席数と t.TotalSeats が異なる場合は trip.ErrSeatCountMismatch を返す
func (s *TripSetup) Ensure(ctx context.Context, t *trip.Trip) error {
	if err := t.Validate(); err != nil {
		return err
	}
	want := t.TotalSeats
	if err := s.trips.Upsert(ctx, t); err != nil {
		return err
	}
	if t.TotalSeats != want {
		return fmt.Errorf("%w: 登録済み %d 席, 設定 %d 席", trip.ErrSeatCountMismatch, t.TotalSeats, want)
	}

	count, err := s.seats.CountByTrip(ctx, t.ID)
	if err != nil {
		return err
	}
	switch {
	case count == 0:
		seats := make([]*seat.Seat, want)
		for i := range seats {
			seats[i] = seat.NewSeat(i + 1)
		}
		if err := s.seats.CreateBulk(ctx, t.ID, seats); err != nil {
			return err
		}
		logger.Info("座席を作成", zap.String("trip_id", t.ID), zap.Int("total_seats", want))
	case count != want:
		return fmt.Errorf("%w: 座席 %d 席, 設定 %d 席", trip.ErrSeatCountMismatch, count, want)
	}
	return nil
}

// Verify は座席テーブルの予約状態を台帳から復元した予約と比較し、食い違う座席番号を返す
func (s *TripSetup) Verify(ctx context.Context, tripID string, booked map[int]string) ([]int, error) {
	stored, err := s.seats.GetByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	var mismatched []int
	for _, st := range stored {
		holder, ok := booked[st.Number]
		switch {
		case st.State == seat.StateBooked && (!ok || holder != st.HolderTx):
			mismatched = append(mismatched, st.Number)
		case st.State != seat.StateBooked && ok:
			mismatched = append(mismatched, st.Number)
		}
	}
	return mismatched, nil
}
