package seat

// Availability は座席の空き状況
// 仮押さえ中の座席はどちらの一覧にも含めない
type Availability struct {
	TripID         string `json:"tripId"`
	TotalSeats     int    `json:"totalSeats"`
	BookedSeats    []int  `json:"bookedSeats"`
	AvailableSeats []int  `json:"availableSeats"`
	Version        uint64 `json:"version"`
}

// Availability は現在の空き状況を返す
// 各座席のスナップショットを1回だけ読むため、同じ座席が両方の一覧に現れることはない
func (m *SeatMap) Availability(tripID string) *Availability {
	a := &Availability{
		TripID:         tripID,
		TotalSeats:     len(m.slots),
		BookedSeats:    make([]int, 0),
		AvailableSeats: make([]int, 0, len(m.slots)),
		Version:        m.Version(),
	}
	for _, sl := range m.slots {
		s := sl.seat.Load()
		switch s.State {
		case StateAvailable:
			a.AvailableSeats = append(a.AvailableSeats, s.Number)
		case StateBooked:
			a.BookedSeats = append(a.BookedSeats, s.Number)
		}
	}
	return a
}

// Counts は状態ごとの座席数を返す
func (m *SeatMap) Counts() (available, held, booked int) {
	for _, sl := range m.slots {
		switch sl.seat.Load().State {
		case StateAvailable:
			available++
		case StateHeld:
			held++
		case StateBooked:
			booked++
		}
	}
	return available, held, booked
}
