package seat

import (
	"sort"
	"sync"
	"sync/atomic"
)

// slot は1座席分の排他ロックと現在状態を持つ
// 状態の書き換えは mu を保持した状態でのみ行い、読み取りはロックなしで行う
type slot struct {
	mu   sync.Mutex
	seat atomic.Pointer[Seat]
}

// SeatMap は1運行分の座席状態を管理する
// 座席番号は 1..totalSeats の連番で、サイズは作成後に変わらない
type SeatMap struct {
	slots   []*slot
	version atomic.Uint64
}

// NewSeatMap は全席空席の SeatMap を作成する
func NewSeatMap(totalSeats int) (*SeatMap, error) {
	if totalSeats <= 0 {
		return nil, ErrInvalidSeatCount
	}
	m := &SeatMap{slots: make([]*slot, totalSeats)}
	for i := range m.slots {
		sl := &slot{}
		sl.seat.Store(NewSeat(i + 1))
		m.slots[i] = sl
	}
	return m, nil
}

// TotalSeats は座席数を返す
func (m *SeatMap) TotalSeats() int {
	return len(m.slots)
}

// Contains は座席番号が範囲内かを返す
func (m *SeatMap) Contains(number int) bool {
	return number >= 1 && number <= len(m.slots)
}

// Version は座席状態が変わるたびに増える値を返す
func (m *SeatMap) Version() uint64 {
	return m.version.Load()
}

// Get は座席のスナップショットを返す
func (m *SeatMap) Get(number int) (Seat, error) {
	if !m.Contains(number) {
		return Seat{}, ErrSeatOutOfRange
	}
	return *m.slots[number-1].seat.Load(), nil
}

// Snapshot は全座席のスナップショットを座席番号順に返す
func (m *SeatMap) Snapshot() []Seat {
	seats := make([]Seat, len(m.slots))
	for i, sl := range m.slots {
		seats[i] = *sl.seat.Load()
	}
	return seats
}

// AvailableSeats は空席の座席番号を昇順で返す
func (m *SeatMap) AvailableSeats() []int {
	return m.numbersIn(StateAvailable)
}

// BookedSeats は予約済みの座席番号を昇順で返す
func (m *SeatMap) BookedSeats() []int {
	return m.numbersIn(StateBooked)
}

// HeldSeats は仮押さえ中の座席番号を昇順で返す
func (m *SeatMap) HeldSeats() []int {
	return m.numbersIn(StateHeld)
}

func (m *SeatMap) numbersIn(state State) []int {
	numbers := make([]int, 0, len(m.slots))
	for _, sl := range m.slots {
		if s := sl.seat.Load(); s.State == state {
			numbers = append(numbers, s.Number)
		}
	}
	return numbers
}

// TrySetHeld は指定座席をすべて空席の場合に限り txID で仮押さえする
// 1席でも埋まっていれば状態は一切変えず、埋まっている座席を UnavailableError で返す
func (m *SeatMap) TrySetHeld(numbers []int, txID string) error {
	unlock, err := m.lock(numbers)
	if err != nil {
		return err
	}
	defer unlock()

	var conflicts []int
	for _, n := range numbers {
		if !m.slots[n-1].seat.Load().IsAvailable() {
			conflicts = append(conflicts, n)
		}
	}
	if len(conflicts) > 0 {
		return NewUnavailableError(conflicts)
	}

	for _, n := range numbers {
		sl := m.slots[n-1]
		next := sl.seat.Load().clone()
		if err := next.Hold(txID); err != nil {
			return err
		}
		sl.seat.Store(next)
	}
	m.version.Add(1)
	return nil
}

// CommitHeld は txID が仮押さえしている座席を予約済みにする
// 1席でも txID の仮押さえでなければ何も変更しない
func (m *SeatMap) CommitHeld(numbers []int, txID string) error {
	unlock, err := m.lock(numbers)
	if err != nil {
		return err
	}
	defer unlock()

	for _, n := range numbers {
		if !m.slots[n-1].seat.Load().IsHeldBy(txID) {
			return ErrSeatNotHeld
		}
	}
	for _, n := range numbers {
		sl := m.slots[n-1]
		next := sl.seat.Load().clone()
		if err := next.Commit(txID); err != nil {
			return err
		}
		sl.seat.Store(next)
	}
	m.version.Add(1)
	return nil
}

// ReleaseHeld は txID が仮押さえしている座席を空席に戻し、解放した座席数を返す
// 他の取引の座席や既に解放済みの座席は無視する
func (m *SeatMap) ReleaseHeld(numbers []int, txID string) (int, error) {
	unlock, err := m.lock(numbers)
	if err != nil {
		return 0, err
	}
	defer unlock()

	released := 0
	for _, n := range numbers {
		sl := m.slots[n-1]
		next := sl.seat.Load().clone()
		if err := next.Release(txID); err != nil {
			continue
		}
		sl.seat.Store(next)
		released++
	}
	if released > 0 {
		m.version.Add(1)
	}
	return released, nil
}

// Restore は台帳の再生結果（座席番号 → 取引ID）を予約済みとして反映する
// 1席でも反映できなければ状態は一切変えず、反映できない座席を UnavailableError で返す
// 同じ取引で既に予約済みの座席はそのままにする
func (m *SeatMap) Restore(booked map[int]string) error {
	numbers := make([]int, 0, len(booked))
	for n := range booked {
		numbers = append(numbers, n)
	}
	if len(numbers) == 0 {
		return nil
	}
	unlock, err := m.lock(numbers)
	if err != nil {
		return err
	}
	defer unlock()

	var conflicts []int
	for _, n := range numbers {
		s := m.slots[n-1].seat.Load()
		if !s.IsAvailable() && !(s.State == StateBooked && s.HolderTx == booked[n]) {
			conflicts = append(conflicts, n)
		}
	}
	if len(conflicts) > 0 {
		return NewUnavailableError(conflicts)
	}

	changed := false
	for _, n := range numbers {
		sl := m.slots[n-1]
		next := sl.seat.Load().clone()
		if !next.IsAvailable() {
			continue
		}
		if err := next.Book(booked[n]); err != nil {
			return err
		}
		sl.seat.Store(next)
		changed = true
	}
	if changed {
		m.version.Add(1)
	}
	return nil
}

// lock は座席ロックを座席番号の昇順で取得し、逆順で解放する関数を返す
// 取得順を固定することで、複数座席が重なるリクエスト同士のデッドロックを防ぐ
func (m *SeatMap) lock(numbers []int) (func(), error) {
	if len(numbers) == 0 {
		return nil, ErrNoSeats
	}
	sorted := make([]int, len(numbers))
	copy(sorted, numbers)
	sort.Ints(sorted)
	for i, n := range sorted {
		if !m.Contains(n) {
			return nil, ErrSeatOutOfRange
		}
		if i > 0 && sorted[i-1] == n {
			return nil, ErrDuplicateSeat
		}
	}

	for _, n := range sorted {
		m.slots[n-1].mu.Lock()
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			m.slots[sorted[i]-1].mu.Unlock()
		}
	}, nil
}
