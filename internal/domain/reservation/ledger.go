package reservation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// SeatRange は座席番号の範囲検証を行う
type SeatRange interface {
	Contains(number int) bool
}

// entry は台帳内の1取引
// tx は不変のスナップショットとして扱い、状態が変わるたびに差し替える
type entry struct {
	mu sync.Mutex
	tx *Transaction
}

// Ledger は予約取引の追記型台帳
// 確定・中断した取引は FinishSeq の順で保持し、削除しない
// FinishSeq は永続化先にも保存されるため、再起動後も同じ順序で列挙される
type Ledger struct {
	seats SeatRange
	repo  Repository

	mu       sync.RWMutex
	entries  map[string]*entry
	journal  []*entry
	unsynced map[string]struct{}
	seq      int64
}

// ResyncResult は Resync の結果
type ResyncResult struct {
	// Synced は中断を永続化できた取引数
	Synced int
	// Recovered は永続化先で確定済みだったため、確定に戻した取引
	Recovered []*Transaction
}

// NewLedger は台帳を作成する
// repo が nil の場合はメモリ上でのみ保持する
func NewLedger(seats SeatRange, repo Repository) *Ledger {
	return &Ledger{
		seats:    seats,
		repo:     repo,
		entries:  make(map[string]*entry),
		unsynced: make(map[string]struct{}),
	}
}

// Validate は取引の内容と座席番号の範囲を検証する
func (l *Ledger) Validate(t *Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	for _, n := range t.SeatNumbers {
		if !l.seats.Contains(n) {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrSeatNumberOutOfRange)
		}
	}
	return nil
}

// Append は保留中の取引を台帳に追加し、取引IDを返す
// ID が空の場合は UUID を採番する
func (l *Ledger) Append(ctx context.Context, t *Transaction) (string, error) {
	if !t.IsPending() {
		return "", ErrInvalidTransition
	}
	if err := l.Validate(t); err != nil {
		return "", err
	}

	tx := t.Clone()
	tx.FinishSeq = 0
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	// 永続化が終わるまで他の状態遷移を待たせる
	e := &entry{tx: tx}
	e.mu.Lock()
	defer e.mu.Unlock()

	l.mu.Lock()
	if _, exists := l.entries[tx.ID]; exists {
		l.mu.Unlock()
		return "", ErrDuplicateID
	}
	l.entries[tx.ID] = e
	l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.Create(ctx, tx.Clone()); err != nil {
			l.mu.Lock()
			delete(l.entries, tx.ID)
			l.mu.Unlock()
			return "", fmt.Errorf("%w: %w", ErrStorageFault, err)
		}
	}

	t.ID = tx.ID
	return tx.ID, nil
}

// MarkCommitted は保留中の取引を確定する
// 永続化に失敗した場合は保留中のまま ErrStorageFault を返す
func (l *Ledger) MarkCommitted(ctx context.Context, id string) (*Transaction, error) {
	e, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !l.current(e).IsPending() {
		return nil, ErrInvalidTransition
	}
	next := l.reserveSeq(e).Clone()
	if err := next.Commit(); err != nil {
		return nil, err
	}
	if l.repo != nil {
		if err := l.repo.Commit(ctx, next.Clone()); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrStorageFault, err)
		}
	}
	l.finish(e, next, true)
	return next.Clone(), nil
}

// MarkAborted は保留中の取引を中断する
//
// 永続化に失敗してもメモリ上は中断済みとし、Resync で再送するため記録したうえで ErrStorageFault を返す。
// 永続化先の行が既に終端だった場合はその状態に合わせる。確定済みだった場合は確定に戻した取引と
// ErrDurablyCommitted を返す。
func (l *Ledger) MarkAborted(ctx context.Context, id string) (*Transaction, error) {
	e, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !l.current(e).IsPending() {
		return nil, ErrInvalidTransition
	}
	next := l.reserveSeq(e).Clone()
	if err := next.Abort(); err != nil {
		return nil, err
	}
	if l.repo == nil {
		l.finish(e, next, true)
		return next.Clone(), nil
	}

	recovered, err := l.abortDurably(ctx, next)
	if err != nil {
		l.finish(e, next, false)
		return next.Clone(), fmt.Errorf("%w: %w", ErrStorageFault, err)
	}
	if recovered != nil {
		l.finish(e, recovered, true)
		return recovered.Clone(), ErrDurablyCommitted
	}
	l.finish(e, next, true)
	return next.Clone(), nil
}

// abortDurably は中断済みの tx を永続化する
// 永続化先で既に確定済みだった場合は、確定に書き換えた取引を返す
func (l *Ledger) abortDurably(ctx context.Context, tx *Transaction) (*Transaction, error) {
	err := l.repo.Abort(ctx, tx.Clone())
	if !errors.Is(err, ErrInvalidTransition) {
		return nil, err
	}

	status, err := l.repo.Status(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("取引 %s の状態取得に失敗: %w", tx.ID, err)
	}
	switch status {
	case StatusAborted:
		return nil, nil
	case StatusCommitted:
		committed := tx.Clone()
		committed.Status = StatusCommitted
		return committed, nil
	default:
		return nil, fmt.Errorf("取引 %s は永続化先で %s のままです", tx.ID, status)
	}
}

// Get は取引のコピーを返す
func (l *Ledger) Get(id string) (*Transaction, error) {
	e, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	return l.current(e).Clone(), nil
}

// All は確定・中断済みの取引を FinishSeq の順に返すシーケンス
// 呼び出すたびに先頭から列挙し直し、列挙開始時点の取引で終わる
func (l *Ledger) All() iter.Seq[*Transaction] {
	return func(yield func(*Transaction) bool) {
		l.mu.RLock()
		journal := slices.Clone(l.journal)
		l.mu.RUnlock()

		for _, e := range journal {
			if !yield(l.current(e).Clone()) {
				return
			}
		}
	}
}

// Pending は保留中の取引を作成順に返す
func (l *Ledger) Pending() []*Transaction {
	l.mu.RLock()
	pending := make([]*Transaction, 0)
	for _, e := range l.entries {
		if e.tx.IsPending() {
			pending = append(pending, e.tx.Clone())
		}
	}
	l.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending
}

// Len は台帳内の取引数を返す
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Unsynced は中断の永続化が未完了の取引数を返す
func (l *Ledger) Unsynced() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.unsynced)
}

// Restore は永続化先から台帳を再構築し、予約済み座席（座席番号 → 取引ID）を返す
// 起動時点で保留中の取引は、保持者のいない仮押さえとみなして中断する
// 同じ座席を含む確定済み取引が複数あれば ErrDoubleBooked を返す
func (l *Ledger) Restore(ctx context.Context) (map[int]string, error) {
	booked := make(map[int]string)
	if l.repo == nil {
		return booked, nil
	}

	txs, err := l.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFault, err)
	}

	var stale []string
	l.mu.Lock()
	for _, tx := range txs {
		if _, exists := l.entries[tx.ID]; exists {
			l.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
		}
		e := &entry{tx: tx.Clone()}
		l.entries[tx.ID] = e
		l.seq = max(l.seq, tx.FinishSeq)
		switch tx.Status {
		case StatusCommitted:
			if err := claimSeats(booked, tx); err != nil {
				l.mu.Unlock()
				return nil, err
			}
			l.insertJournal(e)
		case StatusAborted:
			l.insertJournal(e)
		default:
			stale = append(stale, tx.ID)
		}
	}
	l.mu.Unlock()

	for _, id := range stale {
		tx, err := l.MarkAborted(ctx, id)
		switch {
		case errors.Is(err, ErrDurablyCommitted):
			if err := claimSeats(booked, tx); err != nil {
				return nil, err
			}
		case err != nil && !errors.Is(err, ErrStorageFault):
			return nil, err
		}
	}
	return booked, nil
}

func claimSeats(booked map[int]string, tx *Transaction) error {
	for _, n := range tx.SeatNumbers {
		if holder, taken := booked[n]; taken && holder != tx.ID {
			return fmt.Errorf("%w: 座席 %d (%s, %s)", ErrDoubleBooked, n, holder, tx.ID)
		}
		booked[n] = tx.ID
	}
	return nil
}

// Resync は中断の永続化に失敗した取引を再送する
// 永続化先で既に中断済みなら同期済みとし、確定済みなら台帳上も確定に戻して Recovered で返す
func (l *Ledger) Resync(ctx context.Context) (ResyncResult, error) {
	var result ResyncResult
	if l.repo == nil {
		return result, nil
	}

	l.mu.RLock()
	ids := make([]string, 0, len(l.unsynced))
	for id := range l.unsynced {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		e, err := l.lookup(id)
		if err != nil {
			continue
		}
		recovered, err := l.resyncEntry(ctx, e)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("取引 %s の再送に失敗: %w", id, err))
		case recovered != nil:
			result.Recovered = append(result.Recovered, recovered)
		default:
			result.Synced++
		}
	}
	if len(errs) > 0 {
		return result, fmt.Errorf("%w: %w", ErrStorageFault, errors.Join(errs...))
	}
	return result, nil
}

func (l *Ledger) resyncEntry(ctx context.Context, e *entry) (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := l.current(e)
	recovered, err := l.abortDurably(ctx, tx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.unsynced, tx.ID)
	if recovered == nil {
		return nil, nil
	}
	e.tx = recovered
	return recovered.Clone(), nil
}

func (l *Ledger) lookup(id string) (*entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return e, nil
}

func (l *Ledger) current(e *entry) *Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return e.tx
}

// reserveSeq は取引の FinishSeq を採番し、採番後の保留中の取引を返す
// 永続化に失敗して保留中のままの取引は、最初に採番した値を使い続ける
func (l *Ledger) reserveSeq(e *entry) *Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.tx.FinishSeq == 0 {
		l.seq++
		pending := e.tx.Clone()
		pending.FinishSeq = l.seq
		e.tx = pending
	}
	return e.tx
}

func (l *Ledger) finish(e *entry, next *Transaction, synced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.tx = next
	l.insertJournal(e)
	if !synced {
		l.unsynced[next.ID] = struct{}{}
	}
}

// insertJournal は l.mu を保持した状態で呼ぶ
func (l *Ledger) insertJournal(e *entry) {
	seq := e.tx.FinishSeq
	i := sort.Search(len(l.journal), func(i int) bool {
		return l.journal[i].tx.FinishSeq > seq
	})
	l.journal = slices.Insert(l.journal, i, e)
}
