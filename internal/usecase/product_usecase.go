package usecase

import (
	"context"
	"net/http"
	"time"

	repo "app/internal/repository"
)

// 対応表と在庫をまとめて見せる読み取り専用ユースケース。
type ProductUsecase struct {
	stocks   repo.StockRepository
	mappings repo.MappingRepository
}

func NewProductUsecase(stocks repo.StockRepository, mappings repo.MappingRepository) *ProductUsecase {
	return &ProductUsecase{stocks: stocks, mappings: mappings}
}

type ProductOutput struct {
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	OnHand            int64     `json:"on_hand"`
	SquareItemID      string    `json:"square_item_id"`
	SquareVariationID string    `json:"square_variation_id"`
	EbayInventorySKU  string    `json:"ebay_inventory_sku"`
	EbayOfferID       string    `json:"ebay_offer_id"`
	EbayListingID     string    `json:"ebay_listing_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (u *ProductUsecase) ListProducts(ctx context.Context) ([]ProductOutput, error) {
	mappings, err := u.mappings.ListAll(ctx)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	stocks, err := u.stocks.ListAll(ctx)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	onHand := make(map[string]int64, len(stocks))
	for _, s := range stocks {
		onHand[s.SKU] = s.OnHand
	}

	outs := make([]ProductOutput, 0, len(mappings))
	for _, m := range mappings {
		outs = append(outs, ProductOutput{
			SKU:               m.SKU,
			Name:              m.Name,
			OnHand:            onHand[m.SKU],
			SquareItemID:      m.SquareItemID,
			SquareVariationID: m.SquareVariationID,
			EbayInventorySKU:  m.EbayInventorySKU,
			EbayOfferID:       m.EbayOfferID,
			EbayListingID:     m.EbayListingID,
			UpdatedAt:         m.UpdatedAt,
		})
	}
	return outs, nil
}
