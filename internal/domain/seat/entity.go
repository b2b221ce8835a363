package seat

import "time"

// State は座席の状態を表す
type State string

const (
	StateAvailable State = "available"
	StateHeld      State = "held"
	StateBooked    State = "booked"
)

// Seat は座席エンティティを表す
// SeatMap 内では不変のスナップショットとして扱い、状態遷移はコピーに対して行う
type Seat struct {
	Number    int
	State     State
	HolderTx  string // 保持または予約している取引ID
	UpdatedAt time.Time
}

// NewSeat は空席を作成する
func NewSeat(number int) *Seat {
	return &Seat{
		Number:    number,
		State:     StateAvailable,
		UpdatedAt: time.Now(),
	}
}

// IsAvailable は座席が予約可能かを返す
func (s *Seat) IsAvailable() bool {
	return s.State == StateAvailable
}

// IsHeldBy は座席が指定の取引に仮押さえされているかを返す
func (s *Seat) IsHeldBy(txID string) bool {
	return s.State == StateHeld && s.HolderTx == txID
}

// Hold は座席を仮押さえ状態にする
func (s *Seat) Hold(txID string) error {
	if s.State != StateAvailable {
		return ErrSeatUnavailable
	}
	s.State = StateHeld
	s.HolderTx = txID
	s.UpdatedAt = time.Now()
	return nil
}

// Commit は仮押さえを予約確定にする
func (s *Seat) Commit(txID string) error {
	if !s.IsHeldBy(txID) {
		return ErrSeatNotHeld
	}
	s.State = StateBooked
	s.UpdatedAt = time.Now()
	return nil
}

// Release は仮押さえを解除して空席に戻す
func (s *Seat) Release(txID string) error {
	if !s.IsHeldBy(txID) {
		return ErrSeatNotHeld
	}
	s.State = StateAvailable
	s.HolderTx = ""
	s.UpdatedAt = time.Now()
	return nil
}

// Book は台帳の再生時に空席を直接予約済みにする
func (s *Seat) Book(txID string) error {
	if s.State != StateAvailable {
		return ErrSeatUnavailable
	}
	s.State = StateBooked
	s.HolderTx = txID
	s.UpdatedAt = time.Now()
	return nil
}

func (s *Seat) clone() *Seat {
	c := *s
	return &c
}
