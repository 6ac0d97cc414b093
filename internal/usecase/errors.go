package usecase

import (
	"errors"
	"fmt"

	"app/internal/domain/model"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// イベント単位の終端条件。再試行しても結果は変わらないので台帳にはapplied=trueで残す。
var (
	ErrUnmappedProduct = errors.New("no channel mapping for product")
	ErrMissingQuantity = errors.New("event lacks quantity fields")
)

// 反対チャネルへの書き込み失敗。ローカルの台帳は正のまま、propagated=falseで残す。
// 後続の一括再同期で回復する。
type PropagationError struct {
	Target model.Channel
	SKU    string
	Err    error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation to %s failed for sku %s: %v", e.Target, e.SKU, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }
