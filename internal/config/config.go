package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	// Square
	SquareAccessToken            string
	SquareLocationID             string
	SquareVersion                string
	SquareWebhookSignatureKey    string
	SquareWebhookNotificationURL string

	// eBay
	EbayClientID            string
	EbayClientSecret        string
	EbayRefreshToken        string
	EbayMarketplaceID       string
	EbayMerchantLocationKey string
	EbayFulfillmentPolicyID string
	EbayPaymentPolicyID     string
	EbayReturnPolicyID      string
	EbayWebhookPathToken    string // eBay側通知URLの秘匿パス片

	OpsJWTSecret string // 運用APIのJWT署名シークレット

	// チューニング値
	EchoWindow         time.Duration // エコー抑止の時間窓（既定5分）
	PropagationTimeout time.Duration // 伝搬1回あたりのタイムアウト（既定30秒）
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: getenv("PORT", "8080"),

		SquareAccessToken:            os.Getenv("SQUARE_ACCESS_TOKEN"),
		SquareLocationID:             os.Getenv("SQUARE_LOCATION_ID"),
		SquareVersion:                getenv("SQUARE_VERSION", "2025-01-22"),
		SquareWebhookSignatureKey:    os.Getenv("SQUARE_WEBHOOK_SIGNATURE_KEY"),
		SquareWebhookNotificationURL: os.Getenv("SQUARE_WEBHOOK_NOTIFICATION_URL"),

		EbayClientID:            os.Getenv("EBAY_CLIENT_ID"),
		EbayClientSecret:        os.Getenv("EBAY_CLIENT_SECRET"),
		EbayRefreshToken:        os.Getenv("EBAY_REFRESH_TOKEN"),
		EbayMarketplaceID:       getenv("EBAY_MARKETPLACE_ID", "EBAY_GB"),
		EbayMerchantLocationKey: os.Getenv("EBAY_MERCHANT_LOCATION_KEY"),
		EbayFulfillmentPolicyID: os.Getenv("EBAY_FULFILLMENT_POLICY_ID"),
		EbayPaymentPolicyID:     os.Getenv("EBAY_PAYMENT_POLICY_ID"),
		EbayReturnPolicyID:      os.Getenv("EBAY_RETURN_POLICY_ID"),
		EbayWebhookPathToken:    os.Getenv("EBAY_WEBHOOK_PATH_TOKEN"),

		OpsJWTSecret: os.Getenv("OPS_JWT_SECRET"),
	}

	echoMinutes, err := atoiDefault("ECHO_WINDOW_MINUTES", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.EchoWindow = time.Duration(echoMinutes) * time.Minute

	propSeconds, err := atoiDefault("PROPAGATION_TIMEOUT_SECONDS", 30)
	if err != nil {
		return Config{}, err
	}
	cfg.PropagationTimeout = time.Duration(propSeconds) * time.Second

	//必須チェック
	required := map[string]string{
		"SQUARE_ACCESS_TOKEN":             cfg.SquareAccessToken,
		"SQUARE_LOCATION_ID":              cfg.SquareLocationID,
		"SQUARE_WEBHOOK_SIGNATURE_KEY":    cfg.SquareWebhookSignatureKey,
		"SQUARE_WEBHOOK_NOTIFICATION_URL": cfg.SquareWebhookNotificationURL,
		"EBAY_CLIENT_ID":                  cfg.EbayClientID,
		"EBAY_CLIENT_SECRET":              cfg.EbayClientSecret,
		"EBAY_REFRESH_TOKEN":              cfg.EbayRefreshToken,
		"EBAY_MERCHANT_LOCATION_KEY":      cfg.EbayMerchantLocationKey,
		"EBAY_FULFILLMENT_POLICY_ID":      cfg.EbayFulfillmentPolicyID,
		"EBAY_PAYMENT_POLICY_ID":          cfg.EbayPaymentPolicyID,
		"EBAY_RETURN_POLICY_ID":           cfg.EbayReturnPolicyID,
		"EBAY_WEBHOOK_PATH_TOKEN":         cfg.EbayWebhookPathToken,
		"OPS_JWT_SECRET":                  cfg.OpsJWTSecret,
	}
	for key, v := range required {
		if v == "" {
			return Config{}, fmt.Errorf("%s is required", key)
		}
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
