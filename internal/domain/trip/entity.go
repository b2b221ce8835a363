package trip

import "time"

// Trip は1便のバス運行を表す
type Trip struct {
	ID          string
	Route       string
	DepartureAt time.Time
	TotalSeats  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTrip は新しい運行を作成する
func NewTrip(id, route string, departureAt time.Time, totalSeats int) *Trip {
	now := time.Now()
	return &Trip{
		ID:          id,
		Route:       route,
		DepartureAt: departureAt,
		TotalSeats:  totalSeats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate は運行の検証を行う
func (t *Trip) Validate() error {
	if t.ID == "" {
		return ErrTripIDRequired
	}
	if t.TotalSeats <= 0 {
		return ErrInvalidTotalSeats
	}
	return nil
}

// HasSeat は座席番号がこの運行の範囲内かを返す
func (t *Trip) HasSeat(seatNumber int) bool {
	return seatNumber >= 1 && seatNumber <= t.TotalSeats
}
