package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/transaction"
)

type transactionRow struct {
	ID         string     `db:"id"`
	TripID     string     `db:"trip_id"`
	Status     string     `db:"status"`
	BookedBy   string     `db:"booked_by"`
	CreatedAt  time.Time  `db:"created_at"`
	FinishedAt *time.Time `db:"finished_at"`
	FinishSeq  *int64     `db:"finish_seq"`
}

type passengerRow struct {
	TransactionID string `db:"transaction_id"`
	SeatNumber    int    `db:"seat_number"`
	Name          string `db:"passenger_name"`
	Phone         string `db:"phone_number"`
	Email         string `db:"email"`
}

func (r *transactionRow) toEntity(passengers []passengerRow) *reservation.Transaction {
	tx := &reservation.Transaction{
		ID:          r.ID,
		TripID:      r.TripID,
		Status:      reservation.Status(r.Status),
		BookedBy:    r.BookedBy,
		CreatedAt:   r.CreatedAt,
		FinishedAt:  r.FinishedAt,
		FinishSeq:   seqOrZero(r.FinishSeq),
		SeatNumbers: make([]int, 0, len(passengers)),
		Passengers:  make(map[int]reservation.Passenger, len(passengers)),
	}
	for _, p := range passengers {
		tx.SeatNumbers = append(tx.SeatNumbers, p.SeatNumber)
		tx.Passengers[p.SeatNumber] = reservation.Passenger{Name: p.Name, Phone: p.Phone, Email: p.Email}
	}
	return tx
}

// LedgerRepository は1運行分の予約台帳を reservation_transactions と reservation_passengers に保存する
// 確定時は座席テーブルの更新と同じトランザクションで状態を書き換える
type LedgerRepository struct {
	db        *sqlx.DB
	txManager transaction.Manager
	seatRepo  seat.Repository
	tripID    string
}

func NewLedgerRepository(db *sqlx.DB, txManager transaction.Manager, seatRepo seat.Repository, tripID string) *LedgerRepository {
	return &LedgerRepository{db: db, txManager: txManager, seatRepo: seatRepo, tripID: tripID}
}

func (r *LedgerRepository) Create(ctx context.Context, t *reservation.Transaction) error {
	return WithTx(ctx, r.txManager, func(tx transaction.Tx) error {
		sqlTx := UnwrapTx(tx)
		query := `INSERT INTO reservation_transactions (id, trip_id, status, booked_by, created_at) VALUES ($1, $2, $3, $4, $5)`
		if _, err := sqlTx.ExecContext(ctx, query, t.ID, t.TripID, string(t.Status), t.BookedBy, t.CreatedAt); err != nil {
			if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
				return reservation.ErrDuplicateID
			}
			return fmt.Errorf("予約取引の保存に失敗: %w", err)
		}
		for _, rec := range t.Manifest() {
			if _, err := sqlTx.ExecContext(ctx,
				`INSERT INTO reservation_passengers (transaction_id, seat_number, passenger_name, phone_number, email) VALUES ($1, $2, $3, $4, $5)`,
				t.ID, rec.SeatNumber, rec.Name, rec.Phone, rec.Email); err != nil {
				return fmt.Errorf("乗客情報の保存に失敗: %w", err)
			}
		}
		return nil
	})
}

// Commit は取引を確定し、座席を予約済みにする
func (r *LedgerRepository) Commit(ctx context.Context, t *reservation.Transaction) error {
	return WithTx(ctx, r.txManager, func(tx transaction.Tx) error {
		if err := r.finish(ctx, UnwrapTx(tx), t); err != nil {
			return err
		}
		return r.seatRepo.BookSeats(ctx, tx, t.TripID, t.SeatNumbers, t.ID)
	})
}

func (r *LedgerRepository) Abort(ctx context.Context, t *reservation.Transaction) error {
	return WithTx(ctx, r.txManager, func(tx transaction.Tx) error {
		return r.finish(ctx, UnwrapTx(tx), t)
	})
}

// finish は保留中の行のみを終端状態に更新し、台帳が採番した終端順序を保存する
func (r *LedgerRepository) finish(ctx context.Context, sqlTx *sqlx.Tx, t *reservation.Transaction) error {
	query := `UPDATE reservation_transactions
		SET status = $1, finished_at = $2, finish_seq = $3
		WHERE id = $4 AND status = 'pending'`
	result, err := sqlTx.ExecContext(ctx, query, string(t.Status), t.FinishedAt, t.FinishSeq, t.ID)
	if err != nil {
		return fmt.Errorf("予約取引の更新に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("予約取引の更新に失敗: %w", err)
	}
	if rows == 0 {
		return reservation.ErrInvalidTransition
	}
	return nil
}

// Status は取引の現在の状態を返す
func (r *LedgerRepository) Status(ctx context.Context, id string) (reservation.Status, error) {
	var status string
	query := `SELECT status FROM reservation_transactions WHERE id = $1 AND trip_id = $2`
	if err := r.db.GetContext(ctx, &status, query, id, r.tripID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", reservation.ErrTransactionNotFound
		}
		return "", fmt.Errorf("予約取引の状態取得に失敗: %w", err)
	}
	return reservation.Status(status), nil
}

// List はこの運行の取引を、終端順序の順、続いて保留中のものを作成順に返す
func (r *LedgerRepository) List(ctx context.Context) ([]*reservation.Transaction, error) {
	var rows []transactionRow
	query := `SELECT id, trip_id, status, booked_by, created_at, finished_at, finish_seq FROM reservation_transactions
		WHERE trip_id = $1
		ORDER BY finish_seq NULLS LAST, created_at`
	if err := r.db.SelectContext(ctx, &rows, query, r.tripID); err != nil {
		return nil, fmt.Errorf("予約取引一覧の取得に失敗: %w", err)
	}

	var passengers []passengerRow
	if err := r.db.SelectContext(ctx, &passengers,
		`SELECT p.transaction_id, p.seat_number, p.passenger_name, p.phone_number, p.email
		FROM reservation_passengers p JOIN reservation_transactions t ON t.id = p.transaction_id
		WHERE t.trip_id = $1
		ORDER BY p.transaction_id, p.seat_number`, r.tripID); err != nil {
		return nil, fmt.Errorf("乗客情報の取得に失敗: %w", err)
	}
	byTx := make(map[string][]passengerRow, len(rows))
	for _, p := range passengers {
		byTx[p.TransactionID] = append(byTx[p.TransactionID], p)
	}

	txs := make([]*reservation.Transaction, len(rows))
	for i := range rows {
		txs[i] = rows[i].toEntity(byTx[rows[i].ID])
	}
	return txs, nil
}

func seqOrZero(seq *int64) int64 {
	if seq == nil {
		return 0
	}
	return *seq
}

var _ reservation.Repository = (*LedgerRepository)(nil)
