package reservation

import "context"

// Repository は台帳の永続化先のインターフェース
// 状態更新は保留中の行に対してのみ成功し、それ以外は ErrInvalidTransition を返す
type Repository interface {
	// Create は保留中の取引と乗客情報を保存する
	Create(ctx context.Context, t *Transaction) error
	// Commit は取引を確定し、座席を予約済みにする（1つのDBトランザクションで実行）
	Commit(ctx context.Context, t *Transaction) error
	// Abort は取引を中断済みにする
	// Commit と Abort は取引の FinishSeq をそのまま保存する
	Abort(ctx context.Context, t *Transaction) error
	// Status は永続化先での取引の状態を返す
	// 存在しない場合は ErrTransactionNotFound を返す
	Status(ctx context.Context, id string) (Status, error)
	// List は全取引を FinishSeq 順に取得し、保留中の取引は作成順で末尾に並べる
	List(ctx context.Context) ([]*Transaction, error)
}
