package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/transaction"
)

type seatRow struct {
	TripID        string    `db:"trip_id"`
	SeatNumber    int       `db:"seat_number"`
	Status        string    `db:"status"`
	TransactionID *string   `db:"transaction_id"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *seatRow) toEntity() *seat.Seat {
	s := &seat.Seat{
		Number:    r.SeatNumber,
		State:     seat.State(r.Status),
		UpdatedAt: r.UpdatedAt,
	}
	if r.TransactionID != nil {
		s.HolderTx = *r.TransactionID
	}
	return s
}

type SeatRepository struct{ db *sqlx.DB }

func NewSeatRepository(db *sqlx.DB) *SeatRepository { return &SeatRepository{db: db} }

// CreateBulk はマルチバリューINSERTで座席を一括作成する
func (r *SeatRepository) CreateBulk(ctx context.Context, tripID string, seats []*seat.Seat) error {
	const batchSize = 1000
	for i := 0; i < len(seats); i += batchSize {
		end := min(i+batchSize, len(seats))
		if err := r.createBulkBatch(ctx, tripID, seats[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *SeatRepository) createBulkBatch(ctx context.Context, tripID string, seats []*seat.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	query := `INSERT INTO seats (trip_id, seat_number, status, updated_at) VALUES `
	args := make([]interface{}, 0, len(seats)*4)
	placeholders := make([]string, 0, len(seats))
	for i, s := range seats {
		base := i * 4
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, tripID, s.Number, string(s.State), s.UpdatedAt)
	}
	query += strings.Join(placeholders, ", ") + ` ON CONFLICT (trip_id, seat_number) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("座席一括作成に失敗: %w", err)
	}
	return nil
}

func (r *SeatRepository) CountByTrip(ctx context.Context, tripID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM seats WHERE trip_id = $1`, tripID); err != nil {
		return 0, fmt.Errorf("座席数の取得に失敗: %w", err)
	}
	return count, nil
}

func (r *SeatRepository) GetByTrip(ctx context.Context, tripID string) ([]*seat.Seat, error) {
	query := `SELECT trip_id, seat_number, status, transaction_id, updated_at FROM seats WHERE trip_id = $1 ORDER BY seat_number`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, tripID); err != nil {
		return nil, fmt.Errorf("座席一覧の取得に失敗: %w", err)
	}
	seats := make([]*seat.Seat, len(rows))
	for i, row := range rows {
		seats[i] = row.toEntity()
	}
	return seats, nil
}

// BookSeats は空席を取引IDで予約済みにする
// 1席でも空席でなければ seat.UnavailableError を返す（呼び出し側でロールバックする）
func (r *SeatRepository) BookSeats(ctx context.Context, tx transaction.Tx, tripID string, numbers []int, txID string) error {
	if len(numbers) == 0 {
		return seat.ErrNoSeats
	}
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return fmt.Errorf("座席予約にはトランザクションが必要です")
	}

	nums := make([]int64, len(numbers))
	for i, n := range numbers {
		nums[i] = int64(n)
	}

	query := `UPDATE seats SET status = 'booked', transaction_id = $1, updated_at = NOW()
		WHERE trip_id = $2 AND seat_number = ANY($3) AND status = 'available'
		RETURNING seat_number`
	var booked []int
	if err := sqlTx.SelectContext(ctx, &booked, query, txID, tripID, pq.Array(nums)); err != nil {
		return fmt.Errorf("座席予約に失敗: %w", err)
	}
	if len(booked) != len(numbers) {
		return seat.NewUnavailableError(missing(numbers, booked))
	}
	return nil
}

func missing(requested, got []int) []int {
	seen := make(map[int]struct{}, len(got))
	for _, n := range got {
		seen[n] = struct{}{}
	}
	var out []int
	for _, n := range requested {
		if _, ok := seen[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

var _ seat.Repository = (*SeatRepository)(nil)
