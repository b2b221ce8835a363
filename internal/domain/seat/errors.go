package seat

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Seat ドメインのエラー定義
var (
	ErrSeatUnavailable  = errors.New("座席は予約できません")
	ErrSeatNotHeld      = errors.New("座席はこの取引に仮押さえされていません")
	ErrSeatOutOfRange   = errors.New("座席番号が範囲外です")
	ErrDuplicateSeat    = errors.New("座席番号が重複しています")
	ErrNoSeats          = errors.New("座席番号は必須です")
	ErrInvalidSeatCount = errors.New("座席数は1以上である必要があります")
)

// UnavailableError は既に埋まっている座席の一覧を持つ競合エラー
type UnavailableError struct {
	Conflicts []int
}

// NewUnavailableError は競合座席を昇順に並べたエラーを作成する
func NewUnavailableError(conflicts []int) *UnavailableError {
	sorted := make([]int, len(conflicts))
	copy(sorted, conflicts)
	sort.Ints(sorted)
	return &UnavailableError{Conflicts: sorted}
}

func (e *UnavailableError) Error() string {
	nums := make([]string, len(e.Conflicts))
	for i, n := range e.Conflicts {
		nums[i] = strconv.Itoa(n)
	}
	return fmt.Sprintf("%s: [%s]", ErrSeatUnavailable.Error(), strings.Join(nums, ","))
}

// Is により errors.Is(err, ErrSeatUnavailable) が成立する
func (e *UnavailableError) Is(target error) bool {
	return target == ErrSeatUnavailable
}
