package notification

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"app/internal/domain/model"
)

// eBay Platform NotificationのSOAP風XMLを正規化する。
// 名前空間プレフィックスが配信元バージョンで揺れるので、ローカル名だけで照合する。
func ParseEbayNotification(raw []byte) (ChangeEvent, error) {
	root, err := parseXMLTree(raw)
	if err != nil {
		return ChangeEvent{}, &ParseError{Channel: model.ChannelEbay, Reason: "invalid xml", Err: err}
	}

	eventName := root.firstText("NotificationEventName")
	correlationID := root.firstText("CorrelationID")
	itemID := root.firstText("ItemID")
	sku := root.firstText("SKU")

	ev := ChangeEvent{
		Channel:        model.ChannelEbay,
		EventID:        correlationID,
		EventType:      eventName,
		SKU:            sku,
		ExternalItemID: itemID,
	}

	// CorrelationIDがない配信もある。イベントの構成要素から決定的に合成する。
	if ev.EventID == "" {
		ev.EventID = syntheticEbayEventID(eventName, sku, itemID)
	}

	// Quantity/QuantitySoldはSOAP内の無関係なサブツリーにも現れうる。
	// Item直下→Itemサブツリー→文書全体の順で狭い方から探す。
	item := root.firstElement("Item")

	var qtyTxt, qtySoldTxt string
	if item != nil {
		qtyTxt = item.directChildText("Quantity")
		if qtyTxt == "" {
			qtyTxt = item.firstText("Quantity")
		}
		if ss := item.firstElement("SellingStatus"); ss != nil {
			qtySoldTxt = ss.firstText("QuantitySold")
		}
	}
	if qtyTxt == "" {
		qtyTxt = root.firstText("Quantity")
	}
	if qtySoldTxt == "" {
		qtySoldTxt = root.firstText("QuantitySold")
	}

	if qtyTxt != "" {
		q := parseLooseInt(qtyTxt)
		ev.Quantity = &q
	}
	if qtySoldTxt != "" {
		q := parseLooseInt(qtySoldTxt)
		ev.QuantitySold = &q
	}

	// FixedPriceTransactionはQuantityPurchasedが複数回現れるので合算。
	// 1つも無ければ「購入数不明」としてnilのまま（0とは区別する）。
	var purchased int64
	found := false
	root.walk(func(n *xmlNode) {
		if n.local == "QuantityPurchased" && strings.TrimSpace(n.text) != "" {
			purchased += parseLooseInt(n.text)
			found = true
		}
	})
	if found {
		ev.QuantityPurchased = &purchased
	}

	switch eventName {
	case "ItemRevised":
		ev.Kind = KindRevision
	case "FixedPriceTransaction":
		ev.Kind = KindSale
	default:
		ev.Kind = KindIgnored
	}

	return ev, nil
}

func syntheticEbayEventID(eventName, sku, itemID string) string {
	if eventName == "" {
		eventName = "Unknown"
	}
	if sku == "" {
		sku = "nosku"
	}
	if itemID == "" {
		itemID = "noitem"
	}
	return "ebay:" + eventName + ":" + sku + ":" + itemID
}

// ---- 名前空間非依存の軽量XMLツリー ----

type xmlNode struct {
	local    string
	text     string
	children []*xmlNode
}

func parseXMLTree(raw []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	root := &xmlNode{local: ""}
	stack := []*xmlNode{root}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{local: t.Name.Local}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			cur := stack[len(stack)-1]
			cur.text += string(t)
		}
	}

	if len(root.children) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return root, nil
}

// 深さ優先で全ノードを訪問
func (n *xmlNode) walk(fn func(*xmlNode)) {
	fn(n)
	for _, c := range n.children {
		c.walk(fn)
	}
}

// ローカル名が一致する最初の要素（文書順）
func (n *xmlNode) firstElement(local string) *xmlNode {
	var hit *xmlNode
	n.walk(func(m *xmlNode) {
		if hit == nil && m != n && m.local == local {
			hit = m
		}
	})
	return hit
}

// ローカル名が一致し、非空テキストを持つ最初の要素のテキスト
func (n *xmlNode) firstText(local string) string {
	var hit string
	n.walk(func(m *xmlNode) {
		if hit == "" && m != n && m.local == local {
			if s := strings.TrimSpace(m.text); s != "" {
				hit = s
			}
		}
	})
	return hit
}

// 直下の子だけを見る
func (n *xmlNode) directChildText(local string) string {
	for _, c := range n.children {
		if c.local == local {
			if s := strings.TrimSpace(c.text); s != "" {
				return s
			}
		}
	}
	return ""
}
