package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/metrics"
)

// EventPublisher は確定した予約を外部に通知する
type EventPublisher interface {
	PublishCommitted(ctx context.Context, tx *reservation.Transaction) error
}

// ReservationCoordinator は複数座席の予約を全件成功か全件失敗のどちらかで実行する
// 座席状態の変更はすべてこの型を経由する
type ReservationCoordinator struct {
	tripID    string
	seats     *seat.SeatMap
	ledger    *reservation.Ledger
	publisher EventPublisher
	metrics   *metrics.Metrics

	// recovering は台帳上は確定済みだが座席を予約済みに反映できていない取引（取引ID → 座席番号）
	mu         sync.Mutex
	recovering map[string][]int
}

// NewReservationCoordinator は ReservationCoordinator を作成する
// publisher と m は nil でもよい
func NewReservationCoordinator(tripID string, seats *seat.SeatMap, ledger *reservation.Ledger, publisher EventPublisher, m *metrics.Metrics) *ReservationCoordinator {
	c := &ReservationCoordinator{
		tripID:     tripID,
		seats:      seats,
		ledger:     ledger,
		publisher:  publisher,
		metrics:    m,
		recovering: make(map[string][]int),
	}
	c.recordSeatCounts()
	return c
}

type ReserveInput struct {
	SeatNumbers []int
	Passengers  map[int]reservation.Passenger
	BookedBy    string
}

// Reserve は指定座席をまとめて予約する
//
// 座席の仮押さえに成功した後は ctx のキャンセルを無視し、確定か中断のどちらかで終わらせる。
// 返すエラーは reservation.ErrInvalidRequest, seat.ErrSeatUnavailable（*seat.UnavailableError）,
// reservation.ErrStorageFault, reservation.ErrTransactionAborted のいずれかを包んだもの。
func (c *ReservationCoordinator) Reserve(ctx context.Context, input ReserveInput) (*reservation.Transaction, error) {
	tx := reservation.NewTransaction(c.tripID, input.BookedBy, input.SeatNumbers, input.Passengers)
	if err := c.ledger.Validate(tx); err != nil {
		c.countResult(metrics.ResultInvalid)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := c.ledger.Append(ctx, tx)
	if err != nil {
		if errors.Is(err, reservation.ErrInvalidRequest) {
			c.countResult(metrics.ResultInvalid)
		} else {
			c.countResult(metrics.ResultStorageFault)
			logger.Error("予約取引の登録に失敗", logger.Seats(tx.SeatNumbers), zap.Error(err))
		}
		return nil, err
	}
	log := logger.With(logger.TransactionID(id), logger.Seats(tx.SeatNumbers))

	// 仮押さえ以降は呼び出し元のキャンセルで中断しない
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	err = c.seats.TrySetHeld(tx.SeatNumbers, id)
	c.observeLock("hold", start)
	if err != nil {
		c.abort(ctx, id, log)
		var unavailable *seat.UnavailableError
		if errors.As(err, &unavailable) {
			c.countResult(metrics.ResultConflict)
			log.Info("座席が埋まっているため予約を中断", logger.Conflicts(unavailable.Conflicts))
			return nil, err
		}
		c.countResult(metrics.ResultInvalid)
		return nil, fmt.Errorf("%w: %w", reservation.ErrInvalidRequest, err)
	}

	committed, err := c.ledger.MarkCommitted(ctx, id)
	if err != nil {
		if errors.Is(err, reservation.ErrInvalidTransition) {
			// 確定前に Release された
			c.releaseHeld(tx.SeatNumbers, id, log)
			c.countResult(metrics.ResultAborted)
			log.Warn("確定前に取引が中断された")
			return nil, reservation.ErrTransactionAborted
		}
		if _, abortErr := c.ledger.MarkAborted(ctx, id); abortErr != nil && !errors.Is(abortErr, reservation.ErrDurablyCommitted) {
			log.Warn("取引の中断に失敗", zap.Error(abortErr))
		}
		// 確定の応答だけが失われた場合、中断時に永続化先の確定が検出される
		if current, getErr := c.ledger.Get(id); getErr == nil && current.Status == reservation.StatusCommitted {
			log.Warn("確定の応答は失敗したが永続化先では確定済み", zap.Error(err))
			return c.commitSeats(ctx, current, log)
		}
		c.releaseHeld(tx.SeatNumbers, id, log)
		c.countResult(metrics.ResultStorageFault)
		log.Error("予約の確定に失敗", zap.Error(err))
		return nil, err
	}
	return c.commitSeats(ctx, committed, log)
}

// commitSeats は台帳で確定した取引の仮押さえを予約済みにする
// 反映できなかった座席は仮押さえを解放し、Resync で予約済みへの反映を再試行する
func (c *ReservationCoordinator) commitSeats(ctx context.Context, committed *reservation.Transaction, log *zap.Logger) (*reservation.Transaction, error) {
	start := time.Now()
	err := c.seats.CommitHeld(committed.SeatNumbers, committed.ID)
	c.observeLock("commit", start)
	if err != nil {
		c.releaseHeld(committed.SeatNumbers, committed.ID, log)
		c.trackRecovery(committed.ID, committed.SeatNumbers)
		c.recordSeatCounts()
		c.countResult(metrics.ResultStorageFault)
		log.Error("確定済み取引の座席を予約済みにできません", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", reservation.ErrStorageFault, err)
	}
	c.recordSeatCounts()
	c.countResult(metrics.ResultCommitted)
	log.Info("予約を確定", zap.String("booked_by", committed.BookedBy))

	c.publish(ctx, committed, log)
	return committed, nil
}

// Resync は中断の永続化に失敗した取引を再送し、同期できた件数を返す
// 永続化先で確定済みだった取引は座席を予約済みに戻す。反映できない座席は次回以降も再試行する
func (c *ReservationCoordinator) Resync(ctx context.Context) (int, error) {
	result, err := c.ledger.Resync(ctx)
	for _, tx := range result.Recovered {
		logger.Warn("中断した取引が永続化先では確定済みのため確定に戻す",
			logger.TransactionID(tx.ID), logger.Seats(tx.SeatNumbers))
		c.trackRecovery(tx.ID, tx.SeatNumbers)
	}
	c.restoreRecovered()
	return result.Synced + len(result.Recovered), err
}

// Recovering は予約済みへの反映を待っている確定済み取引の数を返す
func (c *ReservationCoordinator) Recovering() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recovering)
}

func (c *ReservationCoordinator) trackRecovery(id string, numbers []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recovering[id] = numbers
}

func (c *ReservationCoordinator) restoreRecovered() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.recovering) == 0 {
		return
	}
	for id, numbers := range c.recovering {
		booked := make(map[int]string, len(numbers))
		for _, n := range numbers {
			booked[n] = id
		}
		if err := c.seats.Restore(booked); err != nil {
			logger.Error("確定済み取引の座席を予約済みに反映できません",
				logger.TransactionID(id), logger.Seats(numbers), zap.Error(err))
			continue
		}
		delete(c.recovering, id)
	}
	c.recordSeatCounts()
}

// Release は保留中の取引を中断し、仮押さえしている座席を解放する
// 確定・中断済みの取引には ErrAlreadyTerminal を返す
func (c *ReservationCoordinator) Release(ctx context.Context, id string) error {
	return c.release(ctx, id, "manual")
}

// ReleaseExpired は作成から olderThan 以上経過した保留中の取引を解放し、解放した件数を返す
func (c *ReservationCoordinator) ReleaseExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	deadline := time.Now().Add(-olderThan)
	released := 0
	for _, tx := range c.ledger.Pending() {
		if tx.CreatedAt.After(deadline) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return released, err
		}
		err := c.release(ctx, tx.ID, "expired")
		switch {
		case err == nil:
			released++
		case errors.Is(err, reservation.ErrAlreadyTerminal):
		default:
			return released, err
		}
	}
	return released, nil
}

func (c *ReservationCoordinator) release(ctx context.Context, id, reason string) error {
	current, err := c.ledger.Get(id)
	if err != nil {
		return err
	}
	if current.IsTerminal() {
		return reservation.ErrAlreadyTerminal
	}

	log := logger.With(logger.TransactionID(id), logger.Seats(current.SeatNumbers), zap.String("reason", reason))

	aborted, err := c.ledger.MarkAborted(ctx, id)
	switch {
	case errors.Is(err, reservation.ErrInvalidTransition):
		return reservation.ErrAlreadyTerminal
	case errors.Is(err, reservation.ErrDurablyCommitted):
		// 仮押さえは確定処理中の Reserve が予約済みにする
		log.Warn("解放しようとした取引は永続化先で確定済み")
		return reservation.ErrAlreadyTerminal
	case errors.Is(err, reservation.ErrStorageFault):
		log.Warn("中断の永続化に失敗、再送待ち", zap.Error(err))
	case err != nil:
		return err
	}

	c.releaseHeld(aborted.SeatNumbers, id, log)
	c.recordSeatCounts()
	if c.metrics != nil {
		c.metrics.ReleasedTransactionsTotal.WithLabelValues(reason).Inc()
	}
	log.Info("保留中の取引を解放")
	return nil
}

func (c *ReservationCoordinator) abort(ctx context.Context, id string, log *zap.Logger) {
	if _, err := c.ledger.MarkAborted(ctx, id); err != nil {
		log.Warn("取引の中断に失敗", zap.Error(err))
	}
}

func (c *ReservationCoordinator) releaseHeld(numbers []int, id string, log *zap.Logger) {
	start := time.Now()
	n, err := c.seats.ReleaseHeld(numbers, id)
	c.observeLock("release", start)
	if err != nil {
		log.Error("仮押さえの解放に失敗", zap.Error(err))
		return
	}
	if n > 0 {
		log.Debug("仮押さえを解放", zap.Int("released", n))
	}
}

func (c *ReservationCoordinator) publish(ctx context.Context, tx *reservation.Transaction, log *zap.Logger) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishCommitted(ctx, tx); err != nil {
		log.Warn("予約確定イベントの送信に失敗", zap.Error(err))
	}
}

func (c *ReservationCoordinator) countResult(result string) {
	if c.metrics != nil {
		c.metrics.ReservationsTotal.WithLabelValues(result).Inc()
	}
}

func (c *ReservationCoordinator) observeLock(operation string, start time.Time) {
	if c.metrics != nil {
		c.metrics.SeatLockDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (c *ReservationCoordinator) recordSeatCounts() {
	if c.metrics != nil {
		c.metrics.SetSeatCounts(c.seats.Counts())
	}
}
