package usecase

import (
	"time"

	"app/internal/domain/model"
)

// isEcho は「自分が書いた値が通知として戻ってきただけ」かを判定する。
// 全条件が揃ったときだけ抑止する：
//   - 現在値を作ったのが相手側チャネル（＝このエンジンの書き込み）
//   - その書き込みから時間窓の内側
//   - 通知の数量が現在値と一致
//
// 値が違う通知はエコーであり得ないので、窓の内側でも抑止しない。
// 因果の証明ではなくヒューリスティクス。窓は設定で調整する。
func isEcho(rec model.StockRecord, from model.Channel, candidate int64, now time.Time, window time.Duration) bool {
	if candidate != rec.OnHand {
		return false
	}
	if rec.LastSource == model.ChannelNone || rec.LastSource == from {
		return false
	}
	if rec.LastSourceAt == nil {
		return false
	}
	return now.Sub(*rec.LastSourceAt) <= window
}
