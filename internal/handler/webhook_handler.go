package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"app/internal/channel/square"
	"app/internal/config"
	"app/internal/notification"

	"github.com/labstack/echo/v4"
)

// 受信から伝搬完了までの上限。通知のACKはこれを待たない。
const processTimeout = 2 * time.Minute

// webhook受信後の処理側。handlerはACKを返すだけで、適用は非同期。
type SyncProcessor interface {
	HandleSquareNotification(ctx context.Context, env notification.SquareEnvelope)
	HandleEbayNotification(ctx context.Context, raw []byte)
	ResyncAll(ctx context.Context) error
}

// /webhooks/* をまとめる
type WebhookHandler struct {
	sync   SyncProcessor
	cfg    config.Config
	logger *slog.Logger
}

// DI
func NewWebhookHandler(sync SyncProcessor, cfg config.Config, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{sync: sync, cfg: cfg, logger: logger}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/square", h.squareWebhook)
	e.POST("/webhooks/ebay/platform/:token", h.ebayWebhook)
}

type AckResponse struct {
	OK bool `json:"ok"`
}

// Square: 署名検証 → 外枠の解析 → ACK。適用は裏で行う。
// 署名はURL+生ボディに対するHMACなので、Bindより先に生ボディを読む。
func (h *WebhookHandler) squareWebhook(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	sig := c.Request().Header.Get("x-square-hmacsha256-signature")
	if !square.VerifySignature(h.cfg.SquareWebhookSignatureKey, h.cfg.SquareWebhookNotificationURL, raw, sig) {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
	}

	env, err := notification.ParseSquareEnvelope(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
	}
	if env.EventID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing event_id"})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.sync.HandleSquareNotification(ctx, env)
	}()

	return c.JSON(http.StatusOK, AckResponse{OK: true})
}

// eBay: 通知URLの秘匿パス片だけで受け付ける（署名スキームはない）。
func (h *WebhookHandler) ebayWebhook(c echo.Context) error {
	if c.Param("token") != h.cfg.EbayWebhookPathToken {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	}

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.sync.HandleEbayNotification(ctx, raw)
	}()

	return c.JSON(http.StatusOK, AckResponse{OK: true})
}
