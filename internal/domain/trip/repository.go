package trip

import "context"

// Repository は運行リポジトリのインターフェース
type Repository interface {
	// Upsert は運行を作成し、既存の場合は路線と出発時刻を更新する
	Upsert(ctx context.Context, t *Trip) error
	// GetByID はIDから運行を取得する
	GetByID(ctx context.Context, id string) (*Trip, error)
}
