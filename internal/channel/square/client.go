package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"app/internal/channel"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://connect.squareup.com/v2"

// Square APIクライアント
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	version     string
	locationID  string
}

func NewClient(accessToken string, version string, locationID string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		version:     version,
		locationID:  locationID,
	}
}

// テスト用にエンドポイントを差し替える
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

func (c *Client) do(ctx context.Context, method string, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Square-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("square %s %s failed: HTTP %d: %s", method, path, res.StatusCode, string(raw))
	}

	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("square %s %s: invalid response json: %w", method, path, err)
		}
	}
	return out, nil
}

// 現在のIN_STOCK数を取る。読めなければ0扱い。
func (c *Client) currentInStock(ctx context.Context, variationID string) (int64, error) {
	payload := map[string]any{
		"catalog_object_ids": []string{variationID},
		"location_ids":       []string{c.locationID},
		"states":             []string{"IN_STOCK"},
	}

	res, err := c.do(ctx, http.MethodPost, "/inventory/counts/batch-retrieve", payload)
	if err != nil {
		return 0, err
	}

	counts, _ := res["counts"].([]any)
	if len(counts) == 0 {
		return 0, nil
	}
	first, _ := counts[0].(map[string]any)
	q, _ := first["quantity"].(string)
	n, err := strconv.ParseInt(strings.TrimSpace(q), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SetStockExact はIN_STOCKを差分調整で正確にquantityへ合わせる。
// 増やすとき: NONE -> IN_STOCK、減らすとき: IN_STOCK -> SOLD。
// 負数の調整は無効なので必ず差分の絶対値で送る。
func (c *Client) SetStockExact(ctx context.Context, variationID string, quantity int64) error {
	target := quantity
	if target < 0 {
		target = 0
	}

	current, err := c.currentInStock(ctx, variationID)
	if err != nil {
		return err
	}

	delta := target - current
	if delta == 0 {
		return nil
	}

	fromState, toState := "NONE", "IN_STOCK"
	qty := delta
	if delta < 0 {
		fromState, toState = "IN_STOCK", "SOLD"
		qty = -delta
	}

	payload := map[string]any{
		"idempotency_key": uuid.NewString(),
		"changes": []map[string]any{
			{
				"type": "ADJUSTMENT",
				"adjustment": map[string]any{
					"catalog_object_id": variationID,
					"location_id":       c.locationID,
					"quantity":          strconv.FormatInt(qty, 10),
					"from_state":        fromState,
					"to_state":          toState,
					"occurred_at":       time.Now().UTC().Format(time.RFC3339),
				},
			},
		},
	}

	_, err = c.do(ctx, http.MethodPost, "/inventory/changes/batch-create", payload)
	return err
}

// OrderQuantities は注文明細を variation_id → 購入数 に集計する。
func (c *Client) OrderQuantities(ctx context.Context, orderID string) (map[string]int64, error) {
	res, err := c.do(ctx, http.MethodGet, "/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}

	order, _ := res["order"].(map[string]any)
	lineItems, _ := order["line_items"].([]any)

	sold := map[string]int64{}
	for _, li := range lineItems {
		m, ok := li.(map[string]any)
		if !ok {
			continue
		}
		varID, _ := m["catalog_object_id"].(string)
		qtyRaw, _ := m["quantity"].(string)
		qty, err := strconv.ParseFloat(strings.TrimSpace(qtyRaw), 64)
		if err != nil {
			qty = 0
		}
		if varID != "" && qty > 0 {
			sold[varID] += int64(qty)
		}
	}
	return sold, nil
}

// UpsertItem はカタログにITEM+ITEM_VARIATIONを登録してSquare側の実IDを返す。
func (c *Client) UpsertItem(ctx context.Context, in channel.SquareListingInput) (channel.SquareListingResult, error) {
	idem := uuid.NewString()
	clientItemID := "#item-" + in.SKU + "-" + idem
	clientVarID := "#var-" + in.SKU + "-" + idem

	itemData := map[string]any{
		"name":        in.Name,
		"description": in.Description,
		"variations": []map[string]any{
			{
				"type": "ITEM_VARIATION",
				"id":   clientVarID,
				"item_variation_data": map[string]any{
					"name":         "Regular",
					"sku":          in.SKU,
					"pricing_type": "FIXED_PRICING",
					"price_money":  map[string]any{"amount": in.PricePence, "currency": "GBP"},
				},
			},
		},
	}

	payload := map[string]any{
		"idempotency_key": idem,
		"object": map[string]any{
			"type":      "ITEM",
			"id":        clientItemID,
			"item_data": itemData,
		},
	}

	res, err := c.do(ctx, http.MethodPost, "/catalog/object", payload)
	if err != nil {
		return channel.SquareListingResult{}, err
	}

	itemID := mappedID(res, clientItemID)
	varID := variationIDFromCatalogObject(res)
	if varID == "" {
		varID = mappedID(res, clientVarID)
	}

	if itemID == "" {
		if obj, ok := res["catalog_object"].(map[string]any); ok {
			if id, _ := obj["id"].(string); id != "" && !strings.HasPrefix(id, "#") {
				itemID = id
			}
		}
	}

	if itemID == "" || strings.HasPrefix(itemID, "#") {
		return channel.SquareListingResult{}, fmt.Errorf("square did not return a real ITEM id for sku %s", in.SKU)
	}
	if varID == "" || strings.HasPrefix(varID, "#") {
		return channel.SquareListingResult{}, fmt.Errorf("square did not return a real VARIATION id for sku %s", in.SKU)
	}

	return channel.SquareListingResult{ItemID: itemID, VariationID: varID}, nil
}

// id_mappingsからclient_object_idに対応する実IDを引く
func mappedID(res map[string]any, clientObjectID string) string {
	mappings, _ := res["id_mappings"].([]any)
	for _, m := range mappings {
		mm, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if cid, _ := mm["client_object_id"].(string); cid == clientObjectID {
			if oid, _ := mm["object_id"].(string); oid != "" {
				return oid
			}
		}
	}
	return ""
}

func variationIDFromCatalogObject(res map[string]any) string {
	obj, _ := res["catalog_object"].(map[string]any)
	if t, _ := obj["type"].(string); t != "ITEM" {
		return ""
	}
	itemData, _ := obj["item_data"].(map[string]any)
	variations, _ := itemData["variations"].([]any)
	for _, v := range variations {
		vm, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := vm["id"].(string); id != "" && !strings.HasPrefix(id, "#") {
			return id
		}
	}
	return ""
}
