package reservation

import "errors"

// Reservation ドメインのエラー定義
var (
	ErrInvalidRequest      = errors.New("不正な予約リクエストです")
	ErrTransactionNotFound = errors.New("予約取引が見つかりません")
	ErrDuplicateID         = errors.New("取引IDが既に存在します")
	ErrInvalidTransition   = errors.New("取引は保留中ではありません")
	ErrAlreadyTerminal     = errors.New("取引は既に確定または中断されています")
	ErrTransactionAborted  = errors.New("取引は確定前に中断されました")
	ErrStorageFault        = errors.New("ストレージ障害が発生しました")
	ErrDurablyCommitted    = errors.New("取引は永続化先で確定済みです")
	ErrDoubleBooked        = errors.New("同じ座席が複数の確定済み取引に含まれています")

	ErrSeatNumbersRequired   = errors.New("座席番号は必須です")
	ErrDuplicateSeatNumber   = errors.New("座席番号が重複しています")
	ErrSeatNumberOutOfRange  = errors.New("座席番号が範囲外です")
	ErrPassengerMismatch     = errors.New("乗客情報が座席と一致しません")
	ErrPassengerNameRequired = errors.New("乗客名は必須です")
	ErrPhoneNumberRequired   = errors.New("電話番号は必須です")
	ErrEmailRequired         = errors.New("メールアドレスは必須です")
)
