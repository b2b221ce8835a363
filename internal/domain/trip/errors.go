package trip

import "errors"

// Trip ドメインのエラー定義
var (
	ErrTripNotFound      = errors.New("運行が見つかりません")
	ErrTripIDRequired    = errors.New("運行IDは必須です")
	ErrInvalidTotalSeats = errors.New("座席数は1以上である必要があります")
	ErrSeatCountMismatch = errors.New("保存済みの座席数と設定が一致しません")
)
