package seat

import (
	"context"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/transaction"
)

// Repository は座席テーブルのリポジトリインターフェース
// メモリ上の SeatMap が正であり、DB側は確定済み予約のミラーとして扱う
type Repository interface {
	// CreateBulk は運行の座席を一括作成する
	CreateBulk(ctx context.Context, tripID string, seats []*Seat) error
	// CountByTrip は運行の座席数を取得する
	CountByTrip(ctx context.Context, tripID string) (int, error)
	// GetByTrip は運行の座席一覧を座席番号順に取得する
	GetByTrip(ctx context.Context, tripID string) ([]*Seat, error)
	// BookSeats は空席を予約済みに更新する（トランザクション必須）
	BookSeats(ctx context.Context, tx transaction.Tx, tripID string, numbers []int, txID string) error
}
