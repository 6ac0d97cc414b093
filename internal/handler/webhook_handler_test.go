package handler_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/handler"
	"app/internal/notification"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

// 非同期ディスパッチをチャネルで観測するスタブ
type stubProcessor struct {
	squareCh chan notification.SquareEnvelope
	ebayCh   chan []byte
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{
		squareCh: make(chan notification.SquareEnvelope, 1),
		ebayCh:   make(chan []byte, 1),
	}
}

func (s *stubProcessor) HandleSquareNotification(ctx context.Context, env notification.SquareEnvelope) {
	s.squareCh <- env
}

func (s *stubProcessor) HandleEbayNotification(ctx context.Context, raw []byte) {
	s.ebayCh <- raw
}

func (s *stubProcessor) ResyncAll(ctx context.Context) error { return nil }

func testConfig() config.Config {
	return config.Config{
		SquareWebhookSignatureKey:    "signature-key",
		SquareWebhookNotificationURL: "https://example.com/webhooks/square",
		EbayWebhookPathToken:         "secret-path",
	}
}

func signBody(cfg config.Config, body string) string {
	mac := hmac.New(sha256.New, []byte(cfg.SquareWebhookSignatureKey))
	mac.Write([]byte(cfg.SquareWebhookNotificationURL))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newWebhookServer(proc *stubProcessor) *echo.Echo {
	e := echo.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler.NewWebhookHandler(proc, testConfig(), logger).RegisterRoutes(e)
	return e
}

func TestSquareWebhook_ValidSignatureAcksAndDispatches(t *testing.T) {
	proc := newStubProcessor()
	e := newWebhookServer(proc)

	body := `{"event_id":"ev-1","type":"inventory.count.updated"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", strings.NewReader(body))
	req.Header.Set("x-square-hmacsha256-signature", signBody(testConfig(), body))
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case env := <-proc.squareCh:
		assert.Equal(t, "ev-1", env.EventID)
	case <-time.After(2 * time.Second):
		t.Fatal("square notification was not dispatched")
	}
}

func TestSquareWebhook_BadSignatureIsRejected(t *testing.T) {
	proc := newStubProcessor()
	e := newWebhookServer(proc)

	body := `{"event_id":"ev-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", strings.NewReader(body))
	req.Header.Set("x-square-hmacsha256-signature", "bm90IGEgcmVhbCBzaWduYXR1cmU=")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, proc.squareCh)
}

func TestSquareWebhook_MissingEventIDIsRejected(t *testing.T) {
	proc := newStubProcessor()
	e := newWebhookServer(proc)

	body := `{"type":"inventory.count.updated"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", strings.NewReader(body))
	req.Header.Set("x-square-hmacsha256-signature", signBody(testConfig(), body))
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSquareWebhook_InvalidJSONIsRejected(t *testing.T) {
	proc := newStubProcessor()
	e := newWebhookServer(proc)

	body := `{broken`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", strings.NewReader(body))
	req.Header.Set("x-square-hmacsha256-signature", signBody(testConfig(), body))
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEbayWebhook_CorrectPathTokenAcksAndDispatches(t *testing.T) {
	proc := newStubProcessor()
	e := newWebhookServer(proc)

	body := `<Envelope><NotificationEventName>ItemRevised</NotificationEventName></Envelope>`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ebay/platform/secret-path", strings.NewReader(body))
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case raw := <-proc.ebayCh:
		assert.Equal(t, body, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("ebay notification was not dispatched")
	}
}

func TestEbayWebhook_WrongPathTokenIs404(t *testing.T) {
	proc := newStubProcessor()
	e := newWebhookServer(proc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ebay/platform/guessed", strings.NewReader("<Envelope/>"))
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, proc.ebayCh)
}
