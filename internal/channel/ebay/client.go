package ebay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"app/internal/channel"

	"golang.org/x/sync/singleflight"
)

const defaultBaseURL = "https://api.ebay.com"

var oauthScopes = []string{
	"https://api.ebay.com/oauth/api_scope/sell.inventory",
	"https://api.ebay.com/oauth/api_scope/sell.account",
}

// eBay Sell APIクライアント。
// アクセストークンはプロセス内キャッシュし、期限2分前から先行更新する。
// 同時に期限切れを踏んだ呼び出しはsingleflightで1回の更新にまとめる。
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	refreshToken string

	marketplaceID       string
	merchantLocationKey string
	fulfillmentPolicyID string
	paymentPolicyID     string
	returnPolicyID      string

	mu          sync.Mutex
	cachedToken string
	expiresAt   time.Time
	refreshSF   singleflight.Group
}

type Config struct {
	ClientID            string
	ClientSecret        string
	RefreshToken        string
	MarketplaceID       string
	MerchantLocationKey string
	FulfillmentPolicyID string
	PaymentPolicyID     string
	ReturnPolicyID      string
}

func NewClient(cfg Config) *Client {
	return &Client{
		httpClient:          &http.Client{Timeout: 60 * time.Second},
		baseURL:             defaultBaseURL,
		clientID:            cfg.ClientID,
		clientSecret:        cfg.ClientSecret,
		refreshToken:        cfg.RefreshToken,
		marketplaceID:       cfg.MarketplaceID,
		merchantLocationKey: cfg.MerchantLocationKey,
		fulfillmentPolicyID: cfg.FulfillmentPolicyID,
		paymentPolicyID:     cfg.PaymentPolicyID,
		returnPolicyID:      cfg.ReturnPolicyID,
	}
}

// テスト用にエンドポイントを差し替える
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

func basicAuthHeader(clientID, clientSecret string) string {
	raw := clientID + ":" + clientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// AccessToken は有効なアクセストークンを返す（必要ならrefresh）。
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cachedToken != "" && c.expiresAt.After(time.Now().Add(2*time.Minute)) {
		tok := c.cachedToken
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	// 同時リフレッシュは1回に畳む
	v, err, _ := c.refreshSF.Do("token", func() (any, error) {
		return c.refreshAccessToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.refreshToken)
	form.Set("scope", strings.Join(oauthScopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", basicAuthHeader(c.clientID, c.clientSecret))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("ebay token refresh failed: HTTP %d: %s", res.StatusCode, string(raw))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("ebay token refresh: invalid response json: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("ebay token refresh: empty access_token")
	}
	if payload.ExpiresIn == 0 {
		payload.ExpiresIn = 7200
	}

	c.mu.Lock()
	c.cachedToken = payload.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	c.mu.Unlock()

	return payload.AccessToken, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any) (int, []byte, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Language", "en-GB")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, raw, nil
}

// BulkSetQuantity は複数オファーの数量をまとめて更新する。
func (c *Client) BulkSetQuantity(ctx context.Context, updates []channel.StockUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	requests := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		requests = append(requests, map[string]any{
			"sku":                        u.SKU,
			"shipToLocationAvailability": map[string]any{"quantity": u.Quantity},
			"offers": []map[string]any{
				{"offerId": u.OfferID, "availableQuantity": u.Quantity},
			},
		})
	}

	status, raw, err := c.do(ctx, http.MethodPost,
		"/sell/inventory/v1/bulk_update_price_quantity",
		map[string]any{"requests": requests})
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("ebay bulk_update_price_quantity failed: HTTP %d: %s", status, string(raw))
	}
	return nil
}

// UpsertListing は inventory item → offer → publish の順で出品を作る。
func (c *Client) UpsertListing(ctx context.Context, in channel.EbayListingInput) (channel.EbayListingResult, error) {
	if err := c.putInventoryItem(ctx, in); err != nil {
		return channel.EbayListingResult{}, err
	}

	offerID := in.ExistingOfferID
	if offerID == "" {
		id, err := c.createOffer(ctx, in)
		if err != nil {
			return channel.EbayListingResult{}, err
		}
		offerID = id
	} else {
		if err := c.updateOffer(ctx, offerID, in); err != nil {
			return channel.EbayListingResult{}, err
		}
	}

	listingID, err := c.publishOffer(ctx, offerID)
	if err != nil {
		return channel.EbayListingResult{}, err
	}

	return channel.EbayListingResult{
		InventorySKU: in.SKU,
		OfferID:      offerID,
		ListingID:    listingID,
	}, nil
}

func (c *Client) putInventoryItem(ctx context.Context, in channel.EbayListingInput) error {
	payload := map[string]any{
		"condition": in.Condition,
		"availability": map[string]any{
			"shipToLocationAvailability": map[string]any{"quantity": in.Quantity},
		},
		"product": map[string]any{
			"title":       in.Title,
			"description": in.Description,
		},
	}

	status, raw, err := c.do(ctx, http.MethodPut, "/sell/inventory/v1/inventory_item/"+url.PathEscape(in.SKU), payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("ebay inventory_item put failed: HTTP %d: %s", status, string(raw))
	}
	return nil
}

func (c *Client) offerPayload(in channel.EbayListingInput) map[string]any {
	return map[string]any{
		"sku":                 in.SKU,
		"marketplaceId":       c.marketplaceID,
		"format":              "FIXED_PRICE",
		"availableQuantity":   in.Quantity,
		"categoryId":          in.CategoryID,
		"listingDescription":  in.Description,
		"merchantLocationKey": c.merchantLocationKey,
		"pricingSummary": map[string]any{
			"price": map[string]any{
				"value":    fmt.Sprintf("%d.%02d", in.PricePence/100, in.PricePence%100),
				"currency": "GBP",
			},
		},
		"listingPolicies": map[string]any{
			"fulfillmentPolicyId": c.fulfillmentPolicyID,
			"paymentPolicyId":     c.paymentPolicyID,
			"returnPolicyId":      c.returnPolicyID,
		},
	}
}

func (c *Client) createOffer(ctx context.Context, in channel.EbayListingInput) (string, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "/sell/inventory/v1/offer", c.offerPayload(in))
	if err != nil {
		return "", err
	}

	if status >= 400 {
		// 既にオファーがある場合（errorId 25002）はそのIDを拾って更新に回す
		if existing := offerIDFromOfferExistsError(raw); existing != "" {
			if err := c.updateOffer(ctx, existing, in); err != nil {
				return "", err
			}
			return existing, nil
		}
		return "", fmt.Errorf("ebay offer create failed: HTTP %d: %s", status, string(raw))
	}

	var res struct {
		OfferID string `json:"offerId"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.OfferID == "" {
		return "", fmt.Errorf("ebay offer create: no offerId in response: %s", string(raw))
	}
	return res.OfferID, nil
}

func (c *Client) updateOffer(ctx context.Context, offerID string, in channel.EbayListingInput) error {
	status, raw, err := c.do(ctx, http.MethodPut, "/sell/inventory/v1/offer/"+url.PathEscape(offerID), c.offerPayload(in))
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("ebay offer update failed: HTTP %d: %s", status, string(raw))
	}
	return nil
}

func (c *Client) publishOffer(ctx context.Context, offerID string) (string, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "/sell/inventory/v1/offer/"+url.PathEscape(offerID)+"/publish", nil)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("ebay offer publish failed: HTTP %d: %s", status, string(raw))
	}

	var res struct {
		ListingID string `json:"listingId"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.ListingID == "" {
		return "", fmt.Errorf("ebay offer publish: no listingId in response: %s", string(raw))
	}
	return res.ListingID, nil
}

func offerIDFromOfferExistsError(raw []byte) string {
	var body struct {
		Errors []struct {
			ErrorID    int `json:"errorId"`
			Parameters []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"parameters"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, e := range body.Errors {
		if e.ErrorID != 25002 {
			continue
		}
		for _, p := range e.Parameters {
			if p.Name == "offerId" && p.Value != "" {
				return p.Value
			}
		}
	}
	return ""
}
