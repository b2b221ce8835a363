package reservation

import (
	"sort"
	"strings"
	"time"
)

// Status は予約取引の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusAborted   Status = "aborted"
)

// Passenger は1座席分の乗客情報
type Passenger struct {
	Name  string
	Phone string
	Email string
}

// Validate は乗客情報の必須項目を検証する
func (p Passenger) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrPassengerNameRequired
	}
	if strings.TrimSpace(p.Phone) == "" {
		return ErrPhoneNumberRequired
	}
	if strings.TrimSpace(p.Email) == "" {
		return ErrEmailRequired
	}
	return nil
}

// PassengerRecord は座席番号付きの乗客情報
type PassengerRecord struct {
	SeatNumber int
	Passenger
}

// Transaction は複数座席をまとめて予約する1件の取引
type Transaction struct {
	ID          string
	TripID      string
	SeatNumbers []int
	Passengers  map[int]Passenger
	Status      Status
	BookedBy    string
	CreatedAt   time.Time
	FinishedAt  *time.Time
	// FinishSeq は台帳が採番する終端順序。保留中は最初の確定・中断の試行で採番した値を持つ
	FinishSeq   int64
}

// NewTransaction は保留中の取引を作成する
// 座席番号は昇順に並べ替えて保持する
func NewTransaction(tripID, bookedBy string, seatNumbers []int, passengers map[int]Passenger) *Transaction {
	seats := make([]int, len(seatNumbers))
	copy(seats, seatNumbers)
	sort.Ints(seats)

	ps := make(map[int]Passenger, len(passengers))
	for n, p := range passengers {
		ps[n] = p
	}

	return &Transaction{
		TripID:      tripID,
		SeatNumbers: seats,
		Passengers:  ps,
		Status:      StatusPending,
		BookedBy:    bookedBy,
		CreatedAt:   time.Now(),
	}
}

// Validate は取引の検証を行う
// 座席番号が空でなく重複せず、乗客情報が座席とちょうど1対1であることを確認する
func (t *Transaction) Validate() error {
	if len(t.SeatNumbers) == 0 {
		return ErrSeatNumbersRequired
	}
	seen := make(map[int]struct{}, len(t.SeatNumbers))
	for _, n := range t.SeatNumbers {
		if _, dup := seen[n]; dup {
			return ErrDuplicateSeatNumber
		}
		seen[n] = struct{}{}
	}
	if len(t.Passengers) != len(seen) {
		return ErrPassengerMismatch
	}
	for n, p := range t.Passengers {
		if _, ok := seen[n]; !ok {
			return ErrPassengerMismatch
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsPending は取引が保留中かを返す
func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}

// IsTerminal は取引が確定または中断済みかを返す
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCommitted || t.Status == StatusAborted
}

// Commit は取引を確定する
func (t *Transaction) Commit() error {
	if t.Status != StatusPending {
		return ErrInvalidTransition
	}
	now := time.Now()
	t.Status = StatusCommitted
	t.FinishedAt = &now
	return nil
}

// Abort は取引を中断する
func (t *Transaction) Abort() error {
	if t.Status != StatusPending {
		return ErrInvalidTransition
	}
	now := time.Now()
	t.Status = StatusAborted
	t.FinishedAt = &now
	return nil
}

// Manifest は乗客情報を座席番号順に返す
func (t *Transaction) Manifest() []PassengerRecord {
	records := make([]PassengerRecord, 0, len(t.SeatNumbers))
	for _, n := range t.SeatNumbers {
		records = append(records, PassengerRecord{SeatNumber: n, Passenger: t.Passengers[n]})
	}
	return records
}

// Clone は取引のディープコピーを返す
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.SeatNumbers = make([]int, len(t.SeatNumbers))
	copy(c.SeatNumbers, t.SeatNumbers)
	c.Passengers = make(map[int]Passenger, len(t.Passengers))
	for n, p := range t.Passengers {
		c.Passengers[n] = p
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		c.FinishedAt = &f
	}
	return &c
}
