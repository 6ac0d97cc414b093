package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// VerifySignature はSquare webhookの署名を検証する。
// base64(HMAC_SHA256(signature_key, notification_url + request_body))
// 署名鍵か通知URLが未設定なら常にfalse（検証不能な通知は受け付けない）。
func VerifySignature(signatureKey string, notificationURL string, rawBody []byte, signature string) bool {
	if signature == "" || signatureKey == "" || notificationURL == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
