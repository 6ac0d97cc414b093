package model

import "time"

// SKUと各チャネルの外部IDの対応表。IDは不透明な文字列として扱う。
type ProductMap struct {
	SKU  string `gorm:"primaryKey;type:varchar(80)" json:"sku"`
	Name string `gorm:"type:varchar(255)" json:"name"`

	// Square
	SquareItemID      string `gorm:"type:varchar(64)" json:"square_item_id"`
	SquareVariationID string `gorm:"type:varchar(64);index" json:"square_variation_id"`

	// eBay
	EbayInventorySKU string `gorm:"type:varchar(80)" json:"ebay_inventory_sku"`
	EbayOfferID      string `gorm:"type:varchar(32)" json:"ebay_offer_id"`
	EbayListingID    string `gorm:"type:varchar(32);index" json:"ebay_listing_id"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// Square側へ在庫を書き込めるか
func (m ProductMap) HasSquareTarget() bool {
	return m.SquareVariationID != ""
}

// eBay側へ在庫を書き込めるか
func (m ProductMap) HasEbayTarget() bool {
	return m.EbayOfferID != ""
}
