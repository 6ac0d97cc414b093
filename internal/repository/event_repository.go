package repository

import (
	"app/internal/domain/model"
	"context"
)

// 冪等性台帳。event_idの一意性はDBの主キーで保証する。
type ProcessedEventRepository interface {
	FindByID(ctx context.Context, eventID string) (model.ProcessedEvent, error)

	// 未登録なら作成してtrueを返す。主キー衝突（既に処理中/処理済み）はfalse。
	CreateIfAbsent(ctx context.Context, ev model.ProcessedEvent) (bool, error)

	// false→trueのみ。戻すことはない。
	MarkApplied(ctx context.Context, eventID string) error
	MarkPropagated(ctx context.Context, eventID string) error
}
