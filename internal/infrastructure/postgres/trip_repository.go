package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/trip"
)

type tripRow struct {
	ID          string    `db:"id"`
	Route       string    `db:"route"`
	DepartureAt time.Time `db:"departure_at"`
	TotalSeats  int       `db:"total_seats"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *tripRow) toEntity() *trip.Trip {
	return &trip.Trip{
		ID:          r.ID,
		Route:       r.Route,
		DepartureAt: r.DepartureAt,
		TotalSeats:  r.TotalSeats,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type TripRepository struct{ db *sqlx.DB }

func NewTripRepository(db *sqlx.DB) *TripRepository { return &TripRepository{db: db} }

// Upsert は運行を作成し、既存の場合は路線と出発時刻のみ更新する
// 座席数は作成後に変えられないため、既存の値を t に書き戻す
func (r *TripRepository) Upsert(ctx context.Context, t *trip.Trip) error {
	query := `INSERT INTO trips (id, route, departure_at, total_seats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET route = EXCLUDED.route, departure_at = EXCLUDED.departure_at, updated_at = EXCLUDED.updated_at
		RETURNING total_seats, created_at`
	err := r.db.QueryRowContext(ctx, query, t.ID, t.Route, t.DepartureAt, t.TotalSeats, t.CreatedAt, t.UpdatedAt).
		Scan(&t.TotalSeats, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("運行の保存に失敗: %w", err)
	}
	return nil
}

func (r *TripRepository) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	query := `SELECT id, route, departure_at, total_seats, created_at, updated_at FROM trips WHERE id = $1`
	var row tripRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, trip.ErrTripNotFound
		}
		return nil, fmt.Errorf("運行取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

var _ trip.Repository = (*TripRepository)(nil)
