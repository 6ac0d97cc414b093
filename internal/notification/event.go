package notification

import (
	"fmt"

	"app/internal/domain/model"
)

// イベント種別
type Kind string

const (
	// 絶対数量の言い直し（gross/soldの分解はチャネル側を正とする）
	KindRevision Kind = "REVISION"
	// 購入による相対減算
	KindSale Kind = "SALE"
	// 在庫に関係しない通知。適用済み扱いにして再処理させない。
	KindIgnored Kind = "IGNORED"
)

// 正規化済みの変更イベント。数量系は「欠落」と「0」を区別するためポインタ。
type ChangeEvent struct {
	Channel   model.Channel
	EventID   string
	EventType string

	// 少なくともどちらかで対応表を引ける必要がある
	SKU            string
	ExternalItemID string

	Kind Kind

	// REVISION用
	Quantity     *int64
	QuantitySold *int64

	// SALE用
	QuantityPurchased *int64
}

// 入力payloadの解析失敗。呼び出し側はログして捨てる（台帳には残さない）。
type ParseError struct {
	Channel model.Channel
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s notification parse failed: %s: %v", e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s notification parse failed: %s", e.Channel, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
