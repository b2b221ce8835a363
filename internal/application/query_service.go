package application

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/logger"
)

// AvailabilityCache は空き状況のキャッシュ
// キーに座席の変更バージョンを含めるため、座席が変わると古いエントリは参照されなくなる
type AvailabilityCache interface {
	Get(ctx context.Context, tripID string, version uint64) (*seat.Availability, error)
	Set(ctx context.Context, a *seat.Availability) error
}

// QueryService は座席と台帳から読み取り専用の情報を組み立てる
type QueryService struct {
	tripID string
	seats  *seat.SeatMap
	ledger *reservation.Ledger
	cache  AvailabilityCache
}

// NewQueryService は QueryService を作成する
// cache は nil でもよい
func NewQueryService(tripID string, seats *seat.SeatMap, ledger *reservation.Ledger, cache AvailabilityCache) *QueryService {
	return &QueryService{tripID: tripID, seats: seats, ledger: ledger, cache: cache}
}

// Availability は現在の空き状況を返す
// 呼び出し開始前に完了した予約はすべて反映される
func (s *QueryService) Availability(ctx context.Context) *seat.Availability {
	version := s.seats.Version()
	if s.cache != nil {
		if a, err := s.cache.Get(ctx, s.tripID, version); err == nil {
			return a
		}
	}

	a := s.seats.Availability(s.tripID)
	if s.cache != nil && a.Version == version {
		if err := s.cache.Set(ctx, a); err != nil {
			logger.Warn("空き状況のキャッシュ保存に失敗", zap.Error(err))
		}
	}
	return a
}

// Manifest は確定済み取引の乗客情報を座席番号順に返す
// 未知の取引や確定していない取引には ErrTransactionNotFound を返す
func (s *QueryService) Manifest(_ context.Context, id string) ([]reservation.PassengerRecord, error) {
	tx, err := s.ledger.Get(id)
	if err != nil {
		return nil, err
	}
	if tx.Status != reservation.StatusCommitted {
		return nil, reservation.ErrTransactionNotFound
	}
	return tx.Manifest(), nil
}

// Booking は予約済み座席1席分の情報
type Booking struct {
	TransactionID string
	reservation.PassengerRecord
	BookedBy string
}

// Bookings は確定済みの全予約を座席番号順に返す
func (s *QueryService) Bookings(_ context.Context) []Booking {
	bookings := make([]Booking, 0)
	for tx := range s.ledger.All() {
		if tx.Status != reservation.StatusCommitted {
			continue
		}
		for _, r := range tx.Manifest() {
			bookings = append(bookings, Booking{TransactionID: tx.ID, PassengerRecord: r, BookedBy: tx.BookedBy})
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].SeatNumber < bookings[j].SeatNumber
	})
	return bookings
}

// TransactionFilter は取引一覧の絞り込み条件
type TransactionFilter struct {
	Status reservation.Status
	Limit  int
	Offset int
}

// Transactions は終端になった取引を確定・中断順に返す
func (s *QueryService) Transactions(_ context.Context, filter TransactionFilter) []*reservation.Transaction {
	txs := make([]*reservation.Transaction, 0)
	skipped := 0
	for tx := range s.ledger.All() {
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		txs = append(txs, tx)
		if filter.Limit > 0 && len(txs) >= filter.Limit {
			break
		}
	}
	return txs
}
