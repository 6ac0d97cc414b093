package repository

import (
	"app/internal/domain/model"
	"context"
)

// SKU・外部IDの対応表の永続化。
type MappingRepository interface {
	FindBySKU(ctx context.Context, sku string) (model.ProductMap, error)
	FindBySquareVariationID(ctx context.Context, variationID string) (model.ProductMap, error)
	FindByEbayListingID(ctx context.Context, listingID string) (model.ProductMap, error)

	Save(ctx context.Context, m model.ProductMap) error
	ListAll(ctx context.Context) ([]model.ProductMap, error)
}
