package model

import "time"

// SKUごとの正本在庫。on_handは常に0以上（負になる減算は0にクランプ）。
type StockRecord struct {
	SKU          string     `gorm:"primaryKey;type:varchar(80)" json:"sku"`
	OnHand       int64      `gorm:"not null;default:0" json:"on_hand"`
	LastSource   Channel    `gorm:"type:varchar(16)" json:"last_source"`
	LastSourceAt *time.Time `json:"last_source_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
