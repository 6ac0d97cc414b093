package model

import "time"

// 受信イベントの冪等性台帳。event_idが主キーで重複適用を防ぐ。
// applied/propagatedはfalse→trueの一方向のみ。行は削除しない（監査証跡）。
type ProcessedEvent struct {
	EventID   string  `gorm:"primaryKey;type:varchar(128)" json:"event_id"`
	Channel   Channel `gorm:"type:varchar(20);not null" json:"channel"`
	EventType string  `gorm:"type:varchar(80)" json:"event_type"`
	OrderID   string  `gorm:"type:varchar(64)" json:"order_id"`

	Applied    bool `gorm:"not null;default:false" json:"applied"`
	Propagated bool `gorm:"not null;default:false" json:"propagated"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
