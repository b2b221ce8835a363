package transaction

import "context"

// Tx は永続化先のトランザクション
// 台帳の状態更新と座席テーブルの更新を同じ単位で確定させるために、リポジトリ間で受け渡す
type Tx interface {
	Commit() error
	Rollback() error
}

// Manager は Tx を開始する
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}
