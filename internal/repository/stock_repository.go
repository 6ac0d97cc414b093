package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// 在庫の永続化だけを約束。
type StockRepository interface {
	FindBySKU(ctx context.Context, sku string) (model.StockRecord, error)

	// 行ロック付きで取得し、なければon_hand=0で作る。
	// 同一SKUの同時イベントはここで直列化される。
	GetOrCreateForUpdate(ctx context.Context, sku string) (model.StockRecord, error)

	Save(ctx context.Context, rec model.StockRecord) error
	ListAll(ctx context.Context) ([]model.StockRecord, error)
}
