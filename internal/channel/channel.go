// Package channel は外部チャネルのクライアントが満たす約束を定義する。
// コアはこれらを不透明なRPCとして扱い、プロトコルの詳細には依存しない。
package channel

import "context"

// 1件分の在庫書き込み
type StockUpdate struct {
	SKU     string
	OfferID string
	// Square用
	VariationID string
	Quantity    int64
}

// Square側の操作
type SquareClient interface {
	// IN_STOCKを正確にこの値へ合わせる
	SetStockExact(ctx context.Context, variationID string, quantity int64) error

	// 注文明細から variation_id → 購入数 を集計して返す
	OrderQuantities(ctx context.Context, orderID string) (map[string]int64, error)

	// カタログにITEMを登録/更新してSquare側IDを返す
	UpsertItem(ctx context.Context, in SquareListingInput) (SquareListingResult, error)
}

// eBay側の操作
type EbayClient interface {
	// 複数オファーの数量を一括更新
	BulkSetQuantity(ctx context.Context, updates []StockUpdate) error

	// inventory item → offer → publish の一連を行いeBay側IDを返す
	UpsertListing(ctx context.Context, in EbayListingInput) (EbayListingResult, error)
}

type SquareListingInput struct {
	SKU         string
	Name        string
	Description string
	PricePence  int64
	Category    string
}

type SquareListingResult struct {
	ItemID      string
	VariationID string
}

type EbayListingInput struct {
	SKU             string
	Title           string
	Description     string
	CategoryID      string
	Condition       string
	PricePence      int64
	Quantity        int64
	ExistingOfferID string
}

type EbayListingResult struct {
	InventorySKU string
	OfferID      string
	ListingID    string
}
