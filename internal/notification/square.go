package notification

import (
	"encoding/json"
	"strconv"
	"strings"

	"app/internal/domain/model"
)

// Square webhookの外枠。payment系は注文IDだけ分かればよく、
// 数量は後段で注文APIから取る。
type SquareEnvelope struct {
	EventID   string
	EventType string

	// payment.* のとき
	OrderID       string
	PaymentStatus string

	// inventory.count.updated のとき
	Counts []SquareInventoryCount
}

// {catalog_object_id, quantity, state} の正規化済みタプル
type SquareInventoryCount struct {
	CatalogObjectID string
	Quantity        int64
	State           string
}

// 支払い完了した注文か
func (e SquareEnvelope) IsCompletedPayment() bool {
	return e.OrderID != "" && strings.EqualFold(e.PaymentStatus, "COMPLETED")
}

// ParseSquareEnvelope はSquareのJSON通知を外枠まで解析する。
// 歴史的にフィールド名の揺れ（snake/camel、単数/複数）があるので防御的に読む。
func ParseSquareEnvelope(raw []byte) (SquareEnvelope, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return SquareEnvelope{}, &ParseError{Channel: model.ChannelSquare, Reason: "invalid json", Err: err}
	}

	env := SquareEnvelope{
		EventID:   firstString(payload, "event_id", "eventId", "id"),
		EventType: firstString(payload, "type", "event_type"),
	}

	obj, _ := dig(payload, "data", "object").(map[string]any)
	if obj == nil {
		return env, nil
	}

	// payment.* : data.object.payment.{order_id,status}
	if payment, ok := obj["payment"].(map[string]any); ok {
		env.OrderID = firstString(payment, "order_id", "orderId")
		env.PaymentStatus = firstString(payment, "status")
	}

	// inventory_counts（リスト）またはinventory_count（単体）
	if counts, ok := firstValue(obj, "inventory_counts", "inventoryCounts").([]any); ok {
		for _, c := range counts {
			if m, ok := c.(map[string]any); ok {
				if sc, ok := squareCount(m); ok {
					env.Counts = append(env.Counts, sc)
				}
			}
		}
	} else if m, ok := firstValue(obj, "inventory_count", "inventoryCount").(map[string]any); ok {
		if sc, ok := squareCount(m); ok {
			env.Counts = append(env.Counts, sc)
		}
	}

	return env, nil
}

// ChangeEvents は在庫カウントをイベントに起こす。
// 1つのSquareイベントが複数商品に触れるので、event_idは対象IDで枝分かれさせる。
// IN_STOCK以外のカウントは同期対象外。
func (e SquareEnvelope) ChangeEvents() []ChangeEvent {
	out := make([]ChangeEvent, 0, len(e.Counts))
	for _, c := range e.Counts {
		if c.State != "" && c.State != "IN_STOCK" {
			continue
		}
		if c.CatalogObjectID == "" {
			continue
		}
		qty := c.Quantity
		out = append(out, ChangeEvent{
			Channel:        model.ChannelSquare,
			EventID:        e.EventID + ":" + c.CatalogObjectID,
			EventType:      e.EventType,
			ExternalItemID: c.CatalogObjectID,
			Kind:           KindRevision,
			Quantity:       &qty,
		})
	}
	return out
}

// SaleEvents は取得済みの注文明細（variation_id→購入数）をSALEイベントに起こす。
func (e SquareEnvelope) SaleEvents(soldByVariation map[string]int64) []ChangeEvent {
	out := make([]ChangeEvent, 0, len(soldByVariation))
	for varID, qty := range soldByVariation {
		if varID == "" || qty <= 0 {
			continue
		}
		q := qty
		out = append(out, ChangeEvent{
			Channel:           model.ChannelSquare,
			EventID:           e.EventID + ":" + varID,
			EventType:         e.EventType,
			ExternalItemID:    varID,
			Kind:              KindSale,
			QuantityPurchased: &q,
		})
	}
	return out
}

func squareCount(m map[string]any) (SquareInventoryCount, bool) {
	catID := firstString(m, "catalog_object_id", "catalogObjectId")
	if catID == "" {
		return SquareInventoryCount{}, false
	}
	return SquareInventoryCount{
		CatalogObjectID: catID,
		// quantityは "3" のような文字列で来ることが多い。読めなければ0。
		Quantity: parseLooseInt(firstValue(m, "quantity")),
		State:    firstString(m, "state"),
	}, true
}

func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[k]
	}
	return cur
}

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func parseLooseInt(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return int64(f)
	default:
		return 0
	}
}
